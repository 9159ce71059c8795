// Package source manages the local checkout of the upstream self21
// repository. The checkout is an explicit resource: URL, branch, and path
// travel together, and every mutation goes through this package.
package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/self21/self21ctl/pkg/logging"
)

// Checkout is a local working copy of the upstream repository pinned to a
// branch. Acquisition is idempotent: an existing checkout is updated in
// place, never re-cloned.
type Checkout struct {
	url    string
	branch string
	path   string
	logger *slog.Logger
}

// New creates a Checkout resource. Nothing touches the filesystem until
// Ensure is called.
func New(url, branch, path string, logger *slog.Logger) *Checkout {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &Checkout{
		url:    url,
		branch: branch,
		path:   path,
		logger: logging.WithComponent(logger, "source"),
	}
}

// Dir returns the checkout path.
func (c *Checkout) Dir() string {
	return c.path
}

// Exists reports whether a checkout is already present on disk.
func (c *Checkout) Exists() bool {
	_, err := os.Stat(filepath.Join(c.path, ".git"))
	return err == nil
}

// Ensure leaves the working tree at the tip of the requested branch: a
// shallow single-branch clone when the checkout is absent, a fetch plus
// fast-forward when it is present. On error the checkout stays in its prior
// consistent state.
func (c *Checkout) Ensure(ctx context.Context) error {
	if c.Exists() {
		return c.update(ctx)
	}
	return c.clone(ctx)
}

// Head returns the short (7-char) commit hash of the working tree.
func (c *Checkout) Head() (string, error) {
	repo, err := git.PlainOpen(c.path)
	if err != nil {
		return "", fmt.Errorf("opening checkout %s: %w", c.path, err)
	}
	ref, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolving HEAD: %w", err)
	}
	return ref.Hash().String()[:7], nil
}

// Remove deletes the checkout directory.
func (c *Checkout) Remove() error {
	c.logger.Info("removing checkout", "path", c.path)
	if err := os.RemoveAll(c.path); err != nil {
		return fmt.Errorf("removing checkout %s: %w", c.path, err)
	}
	return nil
}

func (c *Checkout) clone(ctx context.Context) error {
	c.logger.Info("cloning source", "url", c.url, "branch", c.branch, "path", c.path)

	_, err := git.PlainCloneContext(ctx, c.path, false, &git.CloneOptions{
		URL:           c.url,
		ReferenceName: plumbing.NewBranchReferenceName(c.branch),
		SingleBranch:  true,
		Depth:         1,
	})
	if err != nil {
		// A failed clone must not leave a half-populated directory behind,
		// or the next run would treat it as an existing checkout.
		_ = os.RemoveAll(c.path)
		return fmt.Errorf("cloning %s (branch %s): %w", c.url, c.branch, err)
	}
	return nil
}

func (c *Checkout) update(ctx context.Context) error {
	c.logger.Info("updating checkout", "branch", c.branch, "path", c.path)

	repo, err := git.PlainOpen(c.path)
	if err != nil {
		return fmt.Errorf("opening checkout %s: %w", c.path, err)
	}

	if err := c.fetch(ctx, repo); err != nil {
		return err
	}
	if err := c.checkoutBranch(repo); err != nil {
		return err
	}

	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("opening worktree: %w", err)
	}

	err = wt.PullContext(ctx, &git.PullOptions{
		RemoteName:    "origin",
		ReferenceName: plumbing.NewBranchReferenceName(c.branch),
		SingleBranch:  true,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("fast-forwarding %s: %w", c.branch, err)
	}
	return nil
}

func (c *Checkout) fetch(ctx context.Context, repo *git.Repository) error {
	refspec := gitconfig.RefSpec(fmt.Sprintf("+refs/heads/%s:refs/remotes/origin/%s", c.branch, c.branch))

	err := repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: "origin",
		RefSpecs:   []gitconfig.RefSpec{refspec},
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("fetching %s: %w", c.branch, err)
	}
	return nil
}

// checkoutBranch switches the worktree to the requested branch, creating a
// local branch from the remote-tracking ref when the checkout was made for a
// different branch.
func (c *Checkout) checkoutBranch(repo *git.Repository) error {
	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("opening worktree: %w", err)
	}

	branchRef := plumbing.NewBranchReferenceName(c.branch)
	err = wt.Checkout(&git.CheckoutOptions{Branch: branchRef})
	if err == nil {
		return nil
	}

	remoteRef, resolveErr := repo.Reference(plumbing.NewRemoteReferenceName("origin", c.branch), true)
	if resolveErr != nil {
		return fmt.Errorf("branch %s not found: %w", c.branch, err)
	}

	err = wt.Checkout(&git.CheckoutOptions{
		Branch: branchRef,
		Hash:   remoteRef.Hash(),
		Create: true,
	})
	if err != nil {
		return fmt.Errorf("checking out %s: %w", c.branch, err)
	}
	return nil
}
