// Package config holds the transient build configuration assembled from
// defaults, an optional YAML file, and command-line flags. Nothing here is
// persisted; the record lives for a single run.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Built-in defaults. The upstream media server repository and the fixed
// image name come from the self21 project.
const (
	DefaultImage     = "self21"
	DefaultTag       = "latest"
	DefaultBranch    = "master"
	DefaultSourceURL = "https://github.com/self21/self21.git"
	DefaultSourceDir = "self21"
	DefaultPlatform  = "linux/amd64"
)

// Config is the resolved configuration for one build run.
type Config struct {
	// Image is the local image name.
	Image string `yaml:"image" validate:"required"`
	// Tag is the moving image tag; the short commit hash is always applied
	// as a second, immutable tag.
	Tag string `yaml:"tag" validate:"required"`
	// Branch names the upstream branch to build.
	Branch string `yaml:"branch" validate:"required"`
	// SourceURL is the upstream git repository.
	SourceURL string `yaml:"source" validate:"required"`
	// SourceDir is where the checkout lives on disk.
	SourceDir string `yaml:"source_dir" validate:"required"`
	// Registry is the push destination repository path
	// (e.g. "registry.example/self21"). Required when Push is set.
	Registry string `yaml:"registry" validate:"required_if=Push true"`
	// Platform is the comma-separated platform spec. More than one entry
	// selects the multi-platform build path.
	Platform string `yaml:"platform" validate:"required"`

	Push    bool `yaml:"push"`
	NoCache bool `yaml:"no_cache"`
	Clean   bool `yaml:"clean"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Image:     DefaultImage,
		Tag:       DefaultTag,
		Branch:    DefaultBranch,
		SourceURL: DefaultSourceURL,
		SourceDir: DefaultSourceDir,
		Platform:  DefaultPlatform,
	}
}

// MultiPlatform reports whether the platform spec names more than one target.
func (c *Config) MultiPlatform() bool {
	return strings.Contains(c.Platform, ",")
}

// ValidationError represents a single configuration validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is the collection returned by Validate.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return "invalid configuration:\n  - " + strings.Join(msgs, "\n  - ")
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration. Violations are reported all at once so
// a user can fix every flag in a single pass.
func Validate(c *Config) error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}

	var errs ValidationErrors
	for _, fe := range verrs {
		errs = append(errs, ValidationError{
			Field:   strings.ToLower(fe.Field()),
			Message: messageFor(fe),
		})
	}
	return errs
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "required_if":
		return "is required when push is enabled"
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}

// RegistryAuth carries registry credentials. Credentials come only from the
// environment (CI-injected secrets), never from flags.
type RegistryAuth struct {
	Username string
	Password string
}

// Empty reports whether no credentials are configured. Pushes proceed with
// ambient auth in that case.
func (a RegistryAuth) Empty() bool {
	return a.Username == "" && a.Password == ""
}

// AuthFromEnv reads registry credentials from the environment. The SELF21_
// pair wins; the CI_ pair matches what common CI runners inject.
func AuthFromEnv() RegistryAuth {
	auth := RegistryAuth{
		Username: os.Getenv("SELF21_REGISTRY_USER"),
		Password: os.Getenv("SELF21_REGISTRY_PASSWORD"),
	}
	if auth.Empty() {
		auth = RegistryAuth{
			Username: os.Getenv("CI_REGISTRY_USER"),
			Password: os.Getenv("CI_REGISTRY_PASSWORD"),
		}
	}
	return auth
}
