package reference

import (
	"fmt"
	"strings"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

var knownArch = map[string]bool{
	"amd64":   true,
	"arm64":   true,
	"arm":     true,
	"386":     true,
	"ppc64le": true,
	"s390x":   true,
	"riscv64": true,
}

// ParsePlatforms parses a comma-separated platform spec such as
// "linux/amd64,linux/arm64" into OCI platform values. More than one entry
// selects the multi-platform build path.
func ParsePlatforms(spec string) ([]ocispec.Platform, error) {
	if strings.TrimSpace(spec) == "" {
		return nil, fmt.Errorf("platform spec is empty")
	}

	var platforms []ocispec.Platform
	seen := make(map[string]bool)

	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			return nil, fmt.Errorf("platform spec %q contains an empty entry", spec)
		}

		parts := strings.Split(entry, "/")
		if len(parts) < 2 || len(parts) > 3 {
			return nil, fmt.Errorf("invalid platform %q: expected os/arch[/variant]", entry)
		}

		p := ocispec.Platform{OS: parts[0], Architecture: parts[1]}
		if len(parts) == 3 {
			p.Variant = parts[2]
		}

		if p.OS != "linux" && p.OS != "windows" {
			return nil, fmt.Errorf("invalid platform %q: unsupported os %q", entry, p.OS)
		}
		if !knownArch[p.Architecture] {
			return nil, fmt.Errorf("invalid platform %q: unsupported architecture %q", entry, p.Architecture)
		}

		key := PlatformString(p)
		if seen[key] {
			continue
		}
		seen[key] = true
		platforms = append(platforms, p)
	}

	return platforms, nil
}

// PlatformString renders a platform back to os/arch[/variant] form.
func PlatformString(p ocispec.Platform) string {
	s := p.OS + "/" + p.Architecture
	if p.Variant != "" {
		s += "/" + p.Variant
	}
	return s
}

// FormatPlatforms renders platforms as the comma list the extended builder
// expects.
func FormatPlatforms(platforms []ocispec.Platform) string {
	parts := make([]string, len(platforms))
	for i, p := range platforms {
		parts[i] = PlatformString(p)
	}
	return strings.Join(parts, ",")
}
