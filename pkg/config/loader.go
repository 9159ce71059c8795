package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// LoadFile reads a YAML defaults file over the built-in defaults. Flags are
// applied on top by the caller, so precedence is defaults < file < flags.
// Environment variables in string values are expanded.
func LoadFile(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	expandEnvVars(&cfg)
	return cfg, nil
}

// LoadEnvFile loads a dotenv file into the process environment. CI pipelines
// use this to hand registry credentials to the run. A missing file is only
// an error when the path was explicitly requested.
func LoadEnvFile(path string, explicit bool) error {
	if err := godotenv.Load(path); err != nil {
		if os.IsNotExist(err) && !explicit {
			return nil
		}
		return fmt.Errorf("loading env file %s: %w", path, err)
	}
	return nil
}

// expandEnvVars expands environment variables in string fields.
func expandEnvVars(c *Config) {
	c.Image = os.ExpandEnv(c.Image)
	c.Tag = os.ExpandEnv(c.Tag)
	c.Branch = os.ExpandEnv(c.Branch)
	c.SourceURL = os.ExpandEnv(c.SourceURL)
	c.SourceDir = os.ExpandEnv(c.SourceDir)
	c.Registry = os.ExpandEnv(c.Registry)
	c.Platform = os.ExpandEnv(c.Platform)
}
