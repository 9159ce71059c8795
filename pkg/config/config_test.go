package config

import (
	"strings"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Image != "self21" {
		t.Errorf("default image = %q, want self21", cfg.Image)
	}
	if cfg.Tag != "latest" {
		t.Errorf("default tag = %q, want latest", cfg.Tag)
	}
	if cfg.Branch != "master" {
		t.Errorf("default branch = %q, want master", cfg.Branch)
	}
	if cfg.Platform != "linux/amd64" {
		t.Errorf("default platform = %q, want linux/amd64", cfg.Platform)
	}
	if cfg.Push || cfg.NoCache || cfg.Clean {
		t.Error("boolean flags should default to off")
	}
}

func TestValidate_Defaults(t *testing.T) {
	cfg := Default()
	if err := Validate(&cfg); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestValidate_PushRequiresRegistry(t *testing.T) {
	cfg := Default()
	cfg.Push = true

	err := Validate(&cfg)
	if err == nil {
		t.Fatal("expected error for push without registry")
	}
	if !strings.Contains(err.Error(), "registry") {
		t.Errorf("expected registry in error, got %q", err.Error())
	}

	cfg.Registry = "registry.example/self21"
	if err := Validate(&cfg); err != nil {
		t.Errorf("push with registry should validate: %v", err)
	}
}

func TestValidate_MissingRequired(t *testing.T) {
	cfg := Default()
	cfg.Image = ""
	cfg.Tag = ""

	err := Validate(&cfg)
	if err == nil {
		t.Fatal("expected error for empty image and tag")
	}

	verrs, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}
	if len(verrs) != 2 {
		t.Errorf("expected 2 violations, got %d: %v", len(verrs), verrs)
	}
}

func TestMultiPlatform(t *testing.T) {
	cfg := Default()
	if cfg.MultiPlatform() {
		t.Error("single platform should not be multi")
	}

	cfg.Platform = "linux/amd64,linux/arm64"
	if !cfg.MultiPlatform() {
		t.Error("comma list should be multi")
	}
}

func TestRegistryAuth_Empty(t *testing.T) {
	if !(RegistryAuth{}).Empty() {
		t.Error("zero auth should be empty")
	}
	if (RegistryAuth{Username: "ci"}).Empty() {
		t.Error("auth with username should not be empty")
	}
}

func TestAuthFromEnv(t *testing.T) {
	t.Setenv("SELF21_REGISTRY_USER", "builder")
	t.Setenv("SELF21_REGISTRY_PASSWORD", "s3cret")

	auth := AuthFromEnv()
	if auth.Username != "builder" || auth.Password != "s3cret" {
		t.Errorf("AuthFromEnv() = %+v", auth)
	}
}

func TestAuthFromEnv_CIFallback(t *testing.T) {
	t.Setenv("SELF21_REGISTRY_USER", "")
	t.Setenv("SELF21_REGISTRY_PASSWORD", "")
	t.Setenv("CI_REGISTRY_USER", "ci-user")
	t.Setenv("CI_REGISTRY_PASSWORD", "ci-pass")

	auth := AuthFromEnv()
	if auth.Username != "ci-user" || auth.Password != "ci-pass" {
		t.Errorf("AuthFromEnv() = %+v, want CI fallback", auth)
	}
}
