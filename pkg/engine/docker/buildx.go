package docker

import (
	"context"
	"fmt"
	"regexp"
	"sort"

	"github.com/Masterminds/semver/v3"

	"github.com/self21/self21ctl/pkg/engine"
	"github.com/self21/self21ctl/pkg/reference"
)

// minBuildxVersion is the oldest buildx release with stable multi-platform
// --push/--load semantics.
const minBuildxVersion = "0.10.0"

// buildxVersionRE pulls the release out of `docker buildx version` output,
// e.g. "github.com/docker/buildx v0.14.0 171fcbe".
var buildxVersionRE = regexp.MustCompile(`v?(\d+\.\d+\.\d+)`)

// MultiPlatform verifies the buildx plugin is installed and recent enough.
func (e *Engine) MultiPlatform(ctx context.Context) error {
	out, err := e.runner.Output(ctx, "docker", "buildx", "version")
	if err != nil {
		return fmt.Errorf("multi-platform builds require the docker buildx plugin: %w", err)
	}

	m := buildxVersionRE.FindStringSubmatch(out)
	if m == nil {
		return fmt.Errorf("unexpected buildx version output: %q", out)
	}
	v, err := semver.NewVersion(m[1])
	if err != nil {
		return fmt.Errorf("parsing buildx version %q: %w", m[1], err)
	}

	min := semver.MustParse(minBuildxVersion)
	if v.LessThan(min) {
		return fmt.Errorf("buildx %s is too old for multi-platform builds (need >= %s)", v, min)
	}

	e.logger.Debug("buildx available", "version", v.String())
	return nil
}

// buildx runs a multi-platform build through the buildx plugin. Without
// --push the result is loaded into the local store, which buildx only
// supports for a single platform variant at a time; the pipeline keeps
// multi-platform runs on the push path for that reason.
func (e *Engine) buildx(ctx context.Context, req engine.Request) error {
	dockerfile := req.Dockerfile
	if dockerfile == "" {
		dockerfile = "Dockerfile"
	}

	args := []string{
		"buildx", "build",
		"--platform", reference.FormatPlatforms(req.Platforms),
		"--file", dockerfile,
	}
	for _, tag := range req.Tags {
		args = append(args, "--tag", tag)
	}

	keys := make([]string, 0, len(req.BuildArgs))
	for k := range req.BuildArgs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "--build-arg", fmt.Sprintf("%s=%s", k, req.BuildArgs[k]))
	}

	if req.NoCache {
		args = append(args, "--no-cache")
	}
	if req.Push {
		args = append(args, "--push")
	} else {
		args = append(args, "--load")
	}
	args = append(args, ".")

	e.logger.Info("building multi-platform image",
		"platforms", reference.FormatPlatforms(req.Platforms), "push", req.Push)

	if err := e.runner.Run(ctx, req.ContextDir, "docker", args...); err != nil {
		return fmt.Errorf("buildx build: %w", err)
	}
	return nil
}
