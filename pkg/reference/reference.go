// Package reference computes and validates the image references a build run
// produces: the local name:tag pair and, when a registry is configured, the
// registry-qualified pair used for pushes.
package reference

import (
	"fmt"

	"github.com/google/go-containerregistry/pkg/name"
)

// Set holds every reference a single run applies to the built image. The
// commit reference pins the exact source revision; the tag reference is the
// moving alias.
type Set struct {
	Tag    string   // requested tag, e.g. "latest"
	Commit string   // short commit hash used as an immutable tag
	Local  []string // name:tag, name:commit
	Remote []string // registry:tag, registry:commit (empty without a registry)
}

// Compute builds the reference set for an image name, requested tag, short
// commit hash, and optional registry repository path. Every reference is
// validated as a well-formed image tag.
func Compute(image, tag, commit, registry string) (Set, error) {
	set := Set{Tag: tag, Commit: commit}

	for _, t := range []string{tag, commit} {
		ref := fmt.Sprintf("%s:%s", image, t)
		if _, err := name.NewTag(ref); err != nil {
			return Set{}, fmt.Errorf("invalid image reference %q: %w", ref, err)
		}
		set.Local = append(set.Local, ref)
	}

	if registry != "" {
		for _, t := range []string{tag, commit} {
			ref := fmt.Sprintf("%s:%s", registry, t)
			if _, err := name.NewTag(ref); err != nil {
				return Set{}, fmt.Errorf("invalid registry reference %q: %w", ref, err)
			}
			set.Remote = append(set.Remote, ref)
		}
	}

	return set, nil
}

// All returns local followed by remote references.
func (s Set) All() []string {
	all := make([]string, 0, len(s.Local)+len(s.Remote))
	all = append(all, s.Local...)
	all = append(all, s.Remote...)
	return all
}

// Primary returns the reference a user would run: the local name:tag.
func (s Set) Primary() string {
	if len(s.Local) == 0 {
		return ""
	}
	return s.Local[0]
}
