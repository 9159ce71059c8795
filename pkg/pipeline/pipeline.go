// Package pipeline sequences a build-and-publish run: precondition checks,
// source acquisition under an advisory lock, image build, registry tagging,
// push, and optional checkout cleanup. Any step failing aborts the run and
// leaves the checkout in place for diagnosis.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/self21/self21ctl/pkg/config"
	"github.com/self21/self21ctl/pkg/engine"
	"github.com/self21/self21ctl/pkg/reference"
	"github.com/self21/self21ctl/pkg/source"
)

// DefaultLockTimeout bounds how long a run waits for a concurrent run against
// the same checkout directory.
const DefaultLockTimeout = 10 * time.Second

// Source is the capability that materializes the upstream checkout.
type Source interface {
	// Dir returns the checkout path.
	Dir() string
	// Ensure clones the checkout or brings an existing one up to date.
	Ensure(ctx context.Context) error
	// Head returns the short hash of the current commit.
	Head() (string, error)
	// Remove deletes the checkout.
	Remove() error
}

// Options wires an Orchestrator.
type Options struct {
	Engine      engine.Engine
	Source      Source
	Logger      *slog.Logger
	Auth        engine.RegistryAuth
	LockTimeout time.Duration
	// Now stamps the BUILD_DATE argument; defaults to time.Now.
	Now func() time.Time
}

// Orchestrator runs the build pipeline.
type Orchestrator struct {
	engine      engine.Engine
	source      Source
	logger      *slog.Logger
	auth        engine.RegistryAuth
	lockTimeout time.Duration
	now         func() time.Time
}

// Result summarizes a completed run.
type Result struct {
	RunID     string
	Commit    string
	ImageID   string
	Refs      reference.Set
	Platforms []ocispec.Platform
	Pushed    []string
	Cleaned   bool
	Duration  time.Duration
}

// New creates an Orchestrator from options, applying defaults.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		engine:      opts.Engine,
		source:      opts.Source,
		logger:      opts.Logger,
		auth:        opts.Auth,
		lockTimeout: opts.LockTimeout,
		now:         opts.Now,
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.lockTimeout == 0 {
		o.lockTimeout = DefaultLockTimeout
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o
}

// Run executes one build-and-publish run for cfg. Rerunning with the same
// configuration converges on the same outcome: the checkout is reused, the
// image rebuilt, and references reapplied.
func (o *Orchestrator) Run(ctx context.Context, cfg config.Config) (*Result, error) {
	start := o.now()
	result := &Result{RunID: uuid.NewString()}
	logger := o.logger.With("run_id", result.RunID)

	if err := config.Validate(&cfg); err != nil {
		return nil, err
	}

	platforms, err := reference.ParsePlatforms(cfg.Platform)
	if err != nil {
		return nil, err
	}
	result.Platforms = platforms
	multi := len(platforms) > 1

	logger.Info("starting run",
		"image", cfg.Image, "tag", cfg.Tag, "branch", cfg.Branch,
		"platforms", reference.FormatPlatforms(platforms),
		"push", cfg.Push, "clean", cfg.Clean)

	// Fail fast before touching the checkout.
	if err := o.engine.Ping(ctx); err != nil {
		return nil, err
	}
	if multi {
		if err := o.engine.MultiPlatform(ctx); err != nil {
			return nil, err
		}
	}

	err = source.WithLock(o.source.Dir(), o.lockTimeout, func() error {
		return o.locked(ctx, cfg, platforms, logger, result)
	})
	if err != nil {
		return nil, err
	}

	result.Duration = o.now().Sub(start)
	logger.Info("run complete",
		"commit", result.Commit, "pushed", len(result.Pushed),
		"cleaned", result.Cleaned, "duration", result.Duration.Round(time.Millisecond))
	return result, nil
}

// locked is the portion of the run serialized against concurrent runs on the
// same checkout: acquisition through cleanup.
func (o *Orchestrator) locked(ctx context.Context, cfg config.Config, platforms []ocispec.Platform, logger *slog.Logger, result *Result) error {
	if err := o.source.Ensure(ctx); err != nil {
		return err
	}

	commit, err := o.source.Head()
	if err != nil {
		return err
	}
	result.Commit = commit

	refs, err := reference.Compute(cfg.Image, cfg.Tag, commit, cfg.Registry)
	if err != nil {
		return err
	}
	result.Refs = refs

	req := engine.Request{
		ContextDir: o.source.Dir(),
		Tags:       refs.Local,
		BuildArgs:  engine.StandardBuildArgs(cfg.Tag, commit, o.now()),
		NoCache:    cfg.NoCache,
		Platforms:  platforms,
	}
	multi := len(platforms) > 1
	if multi {
		if cfg.Push {
			// buildx pushes every tag it is given, so a push build carries
			// only the registry-qualified references.
			req.Tags = refs.Remote
			req.Push = true
		} else {
			// A loaded multi-platform build gets every reference up front;
			// there is no separate tag step on this path.
			req.Tags = refs.All()
		}
	}

	imageID, err := o.engine.Build(ctx, req)
	if err != nil {
		return err
	}
	result.ImageID = imageID

	if multi {
		if cfg.Push {
			result.Pushed = refs.Remote
		}
	} else {
		// Registry references are separate tags on the locally built image;
		// the push is its own step.
		for i, remote := range refs.Remote {
			if err := o.engine.Tag(ctx, refs.Local[i], remote); err != nil {
				return err
			}
		}
		if cfg.Push {
			for _, remote := range refs.Remote {
				if err := o.engine.Push(ctx, remote, o.auth); err != nil {
					return err
				}
				result.Pushed = append(result.Pushed, remote)
			}
		}
	}

	// Cleanup only after a fully successful run, so failures keep the
	// checkout around for inspection.
	if cfg.Clean {
		logger.Info("removing checkout", "dir", o.source.Dir())
		if err := o.source.Remove(); err != nil {
			return fmt.Errorf("removing checkout: %w", err)
		}
		result.Cleaned = true
	}

	return nil
}
