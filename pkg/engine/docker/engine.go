// Package docker implements the engine capability against a local Docker
// daemon. Single-platform builds go through the Docker API; multi-platform
// builds shell out to the buildx plugin, which has no API surface.
package docker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/registry"
	"github.com/docker/docker/pkg/archive"

	"github.com/self21/self21ctl/pkg/engine"
	"github.com/self21/self21ctl/pkg/execx"
	"github.com/self21/self21ctl/pkg/reference"
)

// Engine drives a local Docker daemon.
type Engine struct {
	cli    DockerClient
	runner execx.Runner
	logger *slog.Logger
}

// NewEngine wraps a Docker API client. The runner is only exercised for
// buildx invocations.
func NewEngine(cli DockerClient, runner execx.Runner, logger *slog.Logger) *Engine {
	return &Engine{cli: cli, runner: runner, logger: logger}
}

// Close releases the underlying API client.
func (e *Engine) Close() error {
	return e.cli.Close()
}

// Ping verifies the daemon is reachable.
func (e *Engine) Ping(ctx context.Context) error {
	if _, err := e.cli.Ping(ctx); err != nil {
		return fmt.Errorf("docker daemon not accessible: %w", err)
	}
	return nil
}

// Build builds the image described by req. Requests naming more than one
// platform are routed to buildx.
func (e *Engine) Build(ctx context.Context, req engine.Request) (string, error) {
	if len(req.Platforms) > 1 {
		return "", e.buildx(ctx, req)
	}

	dockerfile := req.Dockerfile
	if dockerfile == "" {
		dockerfile = "Dockerfile"
	}
	dockerfilePath := filepath.Join(req.ContextDir, dockerfile)
	if _, err := os.Stat(dockerfilePath); err != nil {
		return "", fmt.Errorf("dockerfile not found at %s: %w", dockerfilePath, err)
	}

	e.logger.Info("building image", "tags", strings.Join(req.Tags, ", "))

	buildContext, err := archive.TarWithOptions(req.ContextDir, &archive.TarOptions{
		ExcludePatterns: excludePatterns(req.ContextDir),
	})
	if err != nil {
		return "", fmt.Errorf("creating build context: %w", err)
	}
	defer buildContext.Close()

	buildArgs := make(map[string]*string, len(req.BuildArgs))
	for k, v := range req.BuildArgs {
		val := v
		buildArgs[k] = &val
	}

	options := types.ImageBuildOptions{
		Dockerfile: dockerfile,
		Tags:       req.Tags,
		BuildArgs:  buildArgs,
		Remove:     true,
		NoCache:    req.NoCache,
	}
	if len(req.Platforms) == 1 {
		options.Platform = reference.PlatformString(req.Platforms[0])
	}

	resp, err := e.cli.ImageBuild(ctx, buildContext, options)
	if err != nil {
		return "", fmt.Errorf("building image: %w", err)
	}
	defer resp.Body.Close()

	imageID, err := e.streamBuildOutput(resp.Body)
	if err != nil {
		return "", err
	}

	e.logger.Info("built image", "id", imageID)
	return imageID, nil
}

// Tag applies target as an additional reference to the image at src.
func (e *Engine) Tag(ctx context.Context, src, target string) error {
	e.logger.Debug("tagging image", "source", src, "target", target)
	if err := e.cli.ImageTag(ctx, src, target); err != nil {
		return fmt.Errorf("tagging %s as %s: %w", src, target, err)
	}
	return nil
}

// Push publishes ref to its registry.
func (e *Engine) Push(ctx context.Context, ref string, auth engine.RegistryAuth) error {
	e.logger.Info("pushing image", "ref", ref)

	encoded, err := registry.EncodeAuthConfig(registry.AuthConfig{
		Username: auth.Username,
		Password: auth.Password,
	})
	if err != nil {
		return fmt.Errorf("encoding registry credentials: %w", err)
	}

	body, err := e.cli.ImagePush(ctx, ref, image.PushOptions{RegistryAuth: encoded})
	if err != nil {
		return fmt.Errorf("pushing %s: %w", ref, err)
	}
	defer body.Close()

	if err := e.streamPushOutput(body); err != nil {
		return fmt.Errorf("pushing %s: %w", ref, err)
	}
	return nil
}

// buildOutput is one JSON message on the daemon's build stream.
type buildOutput struct {
	Stream      string          `json:"stream"`
	Error       string          `json:"error"`
	ErrorDetail json.RawMessage `json:"errorDetail"`
	Aux         struct {
		ID string `json:"ID"`
	} `json:"aux"`
}

func (e *Engine) streamBuildOutput(reader io.Reader) (string, error) {
	decoder := json.NewDecoder(reader)
	var imageID string

	for {
		var output buildOutput
		if err := decoder.Decode(&output); err != nil {
			if err == io.EOF {
				break
			}
			return "", fmt.Errorf("decoding build output: %w", err)
		}

		if output.Error != "" {
			return "", fmt.Errorf("build error: %s", output.Error)
		}

		if output.Aux.ID != "" {
			imageID = output.Aux.ID
		}

		// Log build steps, filtering layer-progress noise.
		if output.Stream != "" {
			stream := strings.TrimSpace(output.Stream)
			if stream != "" && (strings.HasPrefix(stream, "Step") ||
				strings.HasPrefix(stream, "Successfully") ||
				strings.HasPrefix(stream, "---")) {
				e.logger.Debug("build output", "line", stream)
			}
		}
	}

	return imageID, nil
}

// pushOutput is one JSON message on the daemon's push stream.
type pushOutput struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

func (e *Engine) streamPushOutput(reader io.Reader) error {
	decoder := json.NewDecoder(reader)

	for {
		var output pushOutput
		if err := decoder.Decode(&output); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("decoding push output: %w", err)
		}

		if output.Error != "" {
			return fmt.Errorf("%s", output.Error)
		}
		if output.Status != "" {
			e.logger.Debug("push output", "status", output.Status)
		}
	}
}

// excludePatterns returns patterns to exclude from the build context.
func excludePatterns(contextDir string) []string {
	patterns := []string{
		".git",
		".gitignore",
		"node_modules",
		"__pycache__",
		"*.pyc",
		".env",
		".env.*",
	}

	dockerignore := filepath.Join(contextDir, ".dockerignore")
	if data, err := os.ReadFile(dockerignore); err == nil {
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if line != "" && !strings.HasPrefix(line, "#") {
				patterns = append(patterns, line)
			}
		}
	}

	return patterns
}
