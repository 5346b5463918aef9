package git

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/gitpkg/pkg/errors"
	"github.com/matzehuels/gitpkg/pkg/observability"
)

// Fetch refspecs. Branches are pruned so deleted branches disappear; tags
// are treated as append-only.
const (
	headsRefspec = "+refs/heads/*:refs/heads/*"
	tagsRefspec  = "+refs/tags/*:refs/tags/*"
)

// CLI implements Accessor with the git binary.
type CLI struct {
	exec   Executor
	logger *log.Logger
}

// NewCLI creates a CLI accessor. A nil executor uses ExecExecutor and a nil
// logger uses log.Default().
func NewCLI(exec Executor, logger *log.Logger) *CLI {
	if exec == nil {
		exec = &ExecExecutor{}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &CLI{exec: exec, logger: logger}
}

var _ Accessor = (*CLI)(nil)

func (c *CLI) run(ctx context.Context, op, repo, ref, dir string, args ...string) ([]byte, error) {
	c.logger.Debug("git", "args", strings.Join(args, " "), "dir", dir)
	hooks := observability.Git()
	hooks.OnCommand(ctx, op, repo)
	start := time.Now()
	out, err := c.exec.Run(ctx, dir, args...)
	hooks.OnCommandComplete(ctx, op, repo, time.Since(start), err)
	if err != nil {
		return out, &errors.GitError{
			Op:     op,
			Repo:   repo,
			Ref:    ref,
			Output: strings.TrimSpace(string(out)),
			Err:    err,
		}
	}
	return out, nil
}

// CloneBare creates a bare clone. A partially written destination is
// removed on failure so the next attempt starts clean.
func (c *CLI) CloneBare(ctx context.Context, location, dest string) (*Repo, error) {
	if err := errors.ValidateLocation(location); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return nil, &errors.GitError{Op: "clone", Repo: location, Err: err}
	}
	if _, err := c.run(ctx, "clone", location, "", "", "clone", "--bare", "--quiet", "--", location, dest); err != nil {
		_ = os.RemoveAll(dest)
		return nil, err
	}
	return &Repo{Location: location, Path: dest}, nil
}

// Open returns a handle to an existing bare clone.
func (c *CLI) Open(location, dest string) (*Repo, error) {
	fi, err := os.Stat(filepath.Join(dest, "HEAD"))
	if err != nil || fi.IsDir() {
		return nil, &errors.GitError{Op: "open", Repo: dest, Err: fmt.Errorf("not a bare repository")}
	}
	return &Repo{Location: location, Path: dest}, nil
}

// Fetch updates branches (with pruning) and tags from the clone's origin.
func (c *CLI) Fetch(ctx context.Context, repo *Repo) error {
	if _, err := c.run(ctx, "fetch", repo.Location, "", repo.Path,
		"fetch", "--quiet", "--prune", "--update-head-ok", "origin", headsRefspec); err != nil {
		return err
	}
	_, err := c.run(ctx, "fetch", repo.Location, "", repo.Path,
		"fetch", "--quiet", "--no-prune", "origin", tagsRefspec)
	return err
}

// ResolveRef resolves ref to a full commit id with rev-parse.
func (c *CLI) ResolveRef(ctx context.Context, repo *Repo, ref string) (string, bool, error) {
	if ref == "" || strings.HasPrefix(ref, "-") {
		return "", false, nil
	}
	out, err := c.exec.Run(ctx, repo.Path, "rev-parse", "--verify", "--quiet", ref+"^{commit}")
	if err != nil {
		// --quiet exits non-zero without output for unknown revisions.
		if ctx.Err() == nil && strings.TrimSpace(string(out)) == "" {
			return "", false, nil
		}
		return "", false, &errors.GitError{
			Op:     "rev-parse",
			Repo:   repo.Location,
			Ref:    ref,
			Output: strings.TrimSpace(string(out)),
			Err:    err,
		}
	}
	sha := strings.TrimSpace(string(out))
	if len(sha) != 40 || !IsCommitID(sha) {
		return "", false, &errors.GitError{
			Op:     "rev-parse",
			Repo:   repo.Location,
			Ref:    ref,
			Output: sha,
			Err:    fmt.Errorf("unexpected rev-parse output"),
		}
	}
	return sha, true, nil
}

// CreateWorktree adds a detached worktree. --force lets git reuse the
// registration of a worktree whose directory was deleted by hand.
func (c *CLI) CreateWorktree(ctx context.Context, repo *Repo, sha, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return &errors.GitError{Op: "worktree add", Repo: repo.Location, Ref: sha, Err: err}
	}
	_, err := c.run(ctx, "worktree add", repo.Location, sha, repo.Path,
		"worktree", "add", "--detach", "--force", "--quiet", dest, sha)
	return err
}

// RemoveWorktree removes a worktree. A directory git no longer knows about
// is deleted directly and the stale metadata pruned.
func (c *CLI) RemoveWorktree(ctx context.Context, repo *Repo, dest string) error {
	if _, err := c.run(ctx, "worktree remove", repo.Location, dest, repo.Path,
		"worktree", "remove", "--force", dest); err == nil {
		return nil
	}
	if err := os.RemoveAll(dest); err != nil {
		return &errors.GitError{Op: "worktree remove", Repo: repo.Location, Ref: dest, Err: err}
	}
	_, err := c.run(ctx, "worktree prune", repo.Location, "", repo.Path, "worktree", "prune")
	return err
}
