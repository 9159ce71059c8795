// Package engine defines the container engine capability the pipeline builds
// against. The real implementation lives in the docker subpackage; tests use
// in-memory fakes.
package engine

import (
	"context"
	"time"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// Request describes one image build.
type Request struct {
	// ContextDir is the build context (the source checkout).
	ContextDir string
	// Dockerfile is the path of the Dockerfile within the context.
	Dockerfile string
	// Tags are applied to the produced image. Multi-platform builds take
	// every tag in the single invocation; single-platform builds may apply
	// further tags via Tag afterwards.
	Tags []string
	// BuildArgs are injected as build-time arguments.
	BuildArgs map[string]string
	// NoCache forces a full rebuild.
	NoCache bool
	// Platforms selects the build targets. More than one entry requires the
	// extended builder.
	Platforms []ocispec.Platform
	// Push makes the extended builder push directly instead of loading the
	// result into the local image store. Single-platform builds ignore it;
	// their push is a separate step.
	Push bool
}

// RegistryAuth carries credentials for a push destination.
type RegistryAuth struct {
	Username string
	Password string
}

// Engine is the container engine capability.
type Engine interface {
	// Ping verifies the engine is reachable. Called before any mutation.
	Ping(ctx context.Context) error
	// MultiPlatform verifies the extended multi-platform builder is
	// available. Called before source acquisition when the platform spec
	// names more than one target.
	MultiPlatform(ctx context.Context) error
	// Build runs the image build and returns the image ID where the engine
	// reports one (the multi-platform path does not).
	Build(ctx context.Context, req Request) (string, error)
	// Tag applies an additional reference to an existing local image.
	Tag(ctx context.Context, src, target string) error
	// Push publishes a reference to its registry.
	Push(ctx context.Context, ref string, auth RegistryAuth) error
}

// Build-time argument names the upstream Dockerfile consumes.
const (
	ArgBuildDate = "BUILD_DATE"
	ArgVersion   = "VERSION"
	ArgRevision  = "REVISION"
)

// StandardBuildArgs returns the three build arguments every run injects:
// UTC build timestamp, requested tag, and short commit hash.
func StandardBuildArgs(tag, commit string, now time.Time) map[string]string {
	return map[string]string{
		ArgBuildDate: now.UTC().Format(time.RFC3339),
		ArgVersion:   tag,
		ArgRevision:  commit,
	}
}
