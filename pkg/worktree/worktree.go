// Package worktree maps every resolved (source, commit) pair to exactly one
// checked-out working tree shared by all dependencies that need it.
//
// # Entries
//
// Each key has one [Entry] that moves from [Pending] to [Ready] exactly
// once. The first caller for a key inserts a Pending entry and creates the
// worktree; concurrent callers for the same key wait on the entry instead
// of creating a second one. Callers for a Ready entry return its path
// immediately.
//
//	cache := worktree.New(acc, layout, logger)
//	path, err := cache.Materialize(ctx, repo, commit)
//
// A directory left by an earlier process at the target path is adopted when
// it is a worktree checked out at the expected commit, and replaced
// otherwise.
//
// # Serialization
//
// git keeps worktree metadata per repository, so creations and removals
// against one bare clone are serialized with each other and with fetches of
// that clone through [cache.Layout.RepoLock]. Different clones proceed in
// parallel.
// The map lock is never held while git runs.
//
// # Failure
//
// A failed creation is delivered to every waiter as an
// [*errors.WorktreeCreationError] and the entry is dropped, so a later call
// may retry.
package worktree

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/gitpkg/pkg/cache"
	"github.com/matzehuels/gitpkg/pkg/errors"
	"github.com/matzehuels/gitpkg/pkg/git"
	"github.com/matzehuels/gitpkg/pkg/observability"
)

// State is the lifecycle state of an entry.
type State int

const (
	Pending State = iota
	Ready
)

func (s State) String() string {
	if s == Ready {
		return "ready"
	}
	return "pending"
}

// Key identifies a worktree.
type Key struct {
	Source string // cache.SourceKey of the location
	Commit string
}

func (k Key) String() string { return k.Source + "@" + k.Commit }

// Entry is a worktree known to the cache.
type Entry struct {
	Source string // location as given by the first caller
	Commit string
	Path   string
	State  State

	done chan struct{}
	err  error
}

// Stats counts cache activity.
type Stats struct {
	Created int // worktrees created with git
	Reused  int // calls served by an existing entry
	Adopted int // directories from an earlier process taken over
}

// Cache owns the worktrees under a cache layout.
type Cache struct {
	git    git.Accessor
	layout cache.Layout
	logger *log.Logger

	mu      sync.Mutex
	entries map[Key]*Entry
	stats   Stats
}

// New creates an empty worktree cache. A nil logger uses log.Default().
func New(acc git.Accessor, layout cache.Layout, logger *log.Logger) *Cache {
	if logger == nil {
		logger = log.Default()
	}
	return &Cache{
		git:     acc,
		layout:  layout,
		logger:  logger,
		entries: make(map[Key]*Entry),
	}
}

// KeyFor returns the cache key of a location at a commit.
func KeyFor(location, commit string) Key {
	return Key{Source: cache.SourceKey(location), Commit: commit}
}

// Materialize returns the path of the worktree of repo at commit, creating
// it on first use. commit must be a full commit id.
func (c *Cache) Materialize(ctx context.Context, repo *git.Repo, commit string) (string, error) {
	key := KeyFor(repo.Location, commit)

	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		c.stats.Reused++
		c.mu.Unlock()
		observability.Cache().OnCacheHit(ctx, observability.KeyTypeWorktree)
		select {
		case <-e.done:
			if e.err != nil {
				return "", e.err
			}
			return e.Path, nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	e := &Entry{
		Source: repo.Location,
		Commit: commit,
		Path:   c.layout.WorktreePath(repo.Location, commit),
		State:  Pending,
		done:   make(chan struct{}),
	}
	c.entries[key] = e
	c.mu.Unlock()
	observability.Cache().OnCacheMiss(ctx, observability.KeyTypeWorktree)

	adopted, err := c.create(ctx, repo, e)

	c.mu.Lock()
	if err != nil {
		e.err = &errors.WorktreeCreationError{Source: repo.Location, Commit: commit, Path: e.Path, Err: err}
		delete(c.entries, key)
	} else {
		e.State = Ready
		if adopted {
			c.stats.Adopted++
		} else {
			c.stats.Created++
		}
	}
	close(e.done)
	c.mu.Unlock()

	if e.err != nil {
		c.logger.Error("worktree creation failed", "source", repo.Location, "commit", commit, "error", err)
		return "", e.err
	}
	observability.Cache().OnCacheSet(ctx, observability.KeyTypeWorktree, 0)
	return e.Path, nil
}

// create runs under the clone's layout lock, which fetches take as well.
func (c *Cache) create(ctx context.Context, repo *git.Repo, e *Entry) (adopted bool, err error) {
	lock := c.layout.RepoLock(repo.Path)
	lock.Lock()
	defer lock.Unlock()
	if err := ctx.Err(); err != nil {
		return false, err
	}

	if _, err := os.Stat(e.Path); err == nil {
		head, ok, err := c.git.ResolveRef(ctx, &git.Repo{Location: repo.Location, Path: e.Path}, git.Head)
		if err == nil && ok && head == e.Commit {
			c.logger.Debug("adopting worktree", "path", e.Path)
			return true, nil
		}
		c.logger.Warn("replacing stale worktree", "path", e.Path)
		if err := c.git.RemoveWorktree(ctx, repo, e.Path); err != nil {
			return false, err
		}
	}

	c.logger.Debug("creating worktree", "source", repo.Location, "commit", e.Commit, "path", e.Path)
	if err := c.git.CreateWorktree(ctx, repo, e.Commit, e.Path); err != nil {
		_ = os.RemoveAll(e.Path)
		return false, err
	}
	return false, nil
}

// Lookup returns the entry for a key, if any.
func (c *Cache) Lookup(key Key) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return Entry{}, false
	}
	return e.snapshot(), true
}

func (e *Entry) snapshot() Entry {
	return Entry{Source: e.Source, Commit: e.Commit, Path: e.Path, State: e.State}
}

// Entries lists all entries sorted by key.
func (c *Cache) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]Key, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	out := make([]Entry, len(keys))
	for i, k := range keys {
		out[i] = c.entries[k].snapshot()
	}
	return out
}

// Stats returns counters accumulated since New.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Remove deletes the worktree of repo at commit, whether or not this cache
// created it. Pending entries are left alone.
func (c *Cache) Remove(ctx context.Context, repo *git.Repo, commit string) error {
	key := KeyFor(repo.Location, commit)
	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		if e.State == Pending {
			c.mu.Unlock()
			return errors.New(errors.ErrCodeInvalidInput, "worktree %s is being created", key)
		}
		delete(c.entries, key)
	}
	c.mu.Unlock()

	path := c.layout.WorktreePath(repo.Location, commit)
	lock := c.layout.RepoLock(repo.Path)
	lock.Lock()
	defer lock.Unlock()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return c.git.RemoveWorktree(ctx, repo, path)
}

// Clean removes every worktree directory of repo except the listed
// commits and returns the removed paths.
func (c *Cache) Clean(ctx context.Context, repo *git.Repo, keep ...string) ([]string, error) {
	dir := filepath.Dir(c.layout.WorktreePath(repo.Location, "x"))
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	keepSet := make(map[string]bool, len(keep))
	for _, k := range keep {
		keepSet[k] = true
	}
	var removed []string
	for _, de := range entries {
		if !de.IsDir() || keepSet[de.Name()] {
			continue
		}
		if err := c.Remove(ctx, repo, de.Name()); err != nil {
			return removed, err
		}
		removed = append(removed, filepath.Join(dir, de.Name()))
	}
	return removed, nil
}
