package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/self21/self21ctl/pkg/config"
	"github.com/self21/self21ctl/pkg/engine"
	"github.com/self21/self21ctl/pkg/engine/docker"
	"github.com/self21/self21ctl/pkg/execx"
	"github.com/self21/self21ctl/pkg/logging"
	"github.com/self21/self21ctl/pkg/output"
	"github.com/self21/self21ctl/pkg/pipeline"
	"github.com/self21/self21ctl/pkg/reference"
	"github.com/self21/self21ctl/pkg/source"
)

var (
	flagName      string
	flagTag       string
	flagBranch    string
	flagPush      bool
	flagRegistry  string
	flagPlatform  string
	flagNoCache   bool
	flagClean     bool
	flagSource    string
	flagSrcDir    string
	flagConfig    string
	flagEnvFile   string
	flagLogLevel  string
	flagLogFormat string
	flagLogFile   string
	flagQuiet     bool
)

func init() {
	f := rootCmd.Flags()
	f.StringVarP(&flagName, "name", "n", config.DefaultImage, "Image name")
	f.StringVarP(&flagTag, "tag", "t", config.DefaultTag, "Image tag (also injected as the VERSION build arg)")
	f.StringVarP(&flagBranch, "branch", "b", config.DefaultBranch, "Source branch to build")
	f.BoolVarP(&flagPush, "push", "p", false, "Push the built image to the registry")
	f.StringVarP(&flagRegistry, "registry", "r", "", "Registry repository for tagging and pushing (e.g. registry.example/self21)")
	f.StringVar(&flagPlatform, "platform", config.DefaultPlatform, "Target platform(s), comma-separated (e.g. linux/amd64,linux/arm64)")
	f.BoolVar(&flagNoCache, "no-cache", false, "Build without using the layer cache")
	f.BoolVar(&flagClean, "clean", false, "Remove the source checkout after a successful run")
	f.StringVar(&flagSource, "source", config.DefaultSourceURL, "Upstream repository URL")
	f.StringVar(&flagSrcDir, "src-dir", config.DefaultSourceDir, "Checkout directory")
	f.StringVarP(&flagConfig, "config", "c", "", "Config file (YAML); flags override its values")
	f.StringVar(&flagEnvFile, "env-file", ".env", "Env file with registry credentials")
	f.StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	f.StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")
	f.StringVar(&flagLogFile, "log-file", "", "Also write logs to this file (rotated)")
	f.BoolVarP(&flagQuiet, "quiet", "q", false, "Suppress banner and summary output")
}

// resolveConfig layers defaults, the optional config file, and explicitly set
// flags, in that order.
func resolveConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	if flagConfig != "" {
		loaded, err := config.LoadFile(flagConfig)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("name") {
		cfg.Image = flagName
	}
	if flags.Changed("tag") {
		cfg.Tag = flagTag
	}
	if flags.Changed("branch") {
		cfg.Branch = flagBranch
	}
	if flags.Changed("push") {
		cfg.Push = flagPush
	}
	if flags.Changed("registry") {
		cfg.Registry = flagRegistry
	}
	if flags.Changed("platform") {
		cfg.Platform = flagPlatform
	}
	if flags.Changed("no-cache") {
		cfg.NoCache = flagNoCache
	}
	if flags.Changed("clean") {
		cfg.Clean = flagClean
	}
	if flags.Changed("source") {
		cfg.SourceURL = flagSource
	}
	if flags.Changed("src-dir") {
		cfg.SourceDir = flagSrcDir
	}
	return cfg, nil
}

func newLogger() *slog.Logger {
	lcfg := logging.DefaultConfig()
	lcfg.Level = logging.ParseLevel(flagLogLevel)
	lcfg.Format = logging.ParseFormat(flagLogFormat)
	if flagLogFile != "" {
		lcfg.Output = io.MultiWriter(os.Stderr, logging.NewFileSink(flagLogFile))
	}
	return logging.NewStructuredLogger(lcfg)
}

func runBuild(cmd *cobra.Command) error {
	if err := config.LoadEnvFile(flagEnvFile, cmd.Flags().Changed("env-file")); err != nil {
		return err
	}

	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	logger := newLogger()

	var printer *output.Printer
	if !flagQuiet {
		printer = output.New()
		printer.Banner(version)
		printer.Info("Preparing build",
			"image", cfg.Image, "tag", cfg.Tag, "branch", cfg.Branch)
	}

	cli, err := docker.NewDockerClient()
	if err != nil {
		return fmt.Errorf("creating docker client: %w", err)
	}
	eng := docker.NewEngine(cli,
		execx.NewShellRunner(logging.WithComponent(logger, "exec")),
		logging.WithComponent(logger, "engine"))
	defer eng.Close()

	src := source.New(cfg.SourceURL, cfg.Branch, cfg.SourceDir,
		logging.WithComponent(logger, "source"))

	auth := config.AuthFromEnv()
	orch := pipeline.New(pipeline.Options{
		Engine: eng,
		Source: src,
		Logger: logging.WithComponent(logger, "pipeline"),
		Auth:   engine.RegistryAuth{Username: auth.Username, Password: auth.Password},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := orch.Run(ctx, cfg)
	if err != nil {
		return err
	}

	if printer != nil {
		printer.Info("Build complete",
			"commit", result.Commit,
			"duration", result.Duration.Round(time.Millisecond).String())
		printer.Summary(imageSummaries(result))
		if local := result.Refs.Primary(); local != "" && hasLocalImage(result) {
			printer.RunInstructions(local)
		}
	}
	return nil
}

// hasLocalImage reports whether the run left images in the local store. A
// multi-platform push build goes straight to the registry.
func hasLocalImage(result *pipeline.Result) bool {
	return !(len(result.Platforms) > 1 && len(result.Pushed) > 0)
}

func imageSummaries(result *pipeline.Result) []output.ImageSummary {
	platform := reference.FormatPlatforms(result.Platforms)
	pushed := make(map[string]bool, len(result.Pushed))
	for _, ref := range result.Pushed {
		pushed[ref] = true
	}

	var summaries []output.ImageSummary
	if hasLocalImage(result) {
		for _, ref := range result.Refs.Local {
			summaries = append(summaries, output.ImageSummary{
				Ref: ref, Kind: "local", Platform: platform, State: "built",
			})
		}
	}
	for _, ref := range result.Refs.Remote {
		state := "tagged"
		if pushed[ref] {
			state = "pushed"
		}
		summaries = append(summaries, output.ImageSummary{
			Ref: ref, Kind: "registry", Platform: platform, State: state,
		})
	}
	return summaries
}
