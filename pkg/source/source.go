// Package source keeps one bare clone per distinct source location and
// fetches each at most once per run.
//
// A run is the lifetime of a [Cache] or the span between two calls to
// [Cache.NewRun]. Within a run the first call to [Cache.EnsureFresh] for a
// source fetches it; later calls return immediately. A source cloned in the
// run counts as fresh. Ref listings are memoized for the run.
//
// Two manifest names for the same location share a clone: entries are keyed
// by [cache.SourceKey].
//
// Each source has its own mutex serializing its first clone and first fetch;
// distinct sources proceed in parallel. Transient fetch and clone failures
// (see [git.IsTransient]) are retried once; a final failure is reported as an
// [*errors.SourceUnreachableError].
package source

import (
	"context"
	"os"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/matzehuels/gitpkg/pkg/cache"
	"github.com/matzehuels/gitpkg/pkg/errors"
	"github.com/matzehuels/gitpkg/pkg/git"
	"github.com/matzehuels/gitpkg/pkg/manifest"
	"github.com/matzehuels/gitpkg/pkg/observability"
)

// attempts is the number of tries for a clone or fetch: one retry.
const attempts = 2

// Cache manages bare clones under a cache layout.
type Cache struct {
	git    git.Accessor
	layout cache.Layout
	logger *log.Logger

	mu      sync.Mutex
	run     string
	entries map[string]*entry
	stats   Stats
}

type entry struct {
	mu    sync.Mutex
	repo  *git.Repo
	fresh string // run id of the last clone or fetch

	// refs is read without mu; it is replaced, never modified.
	refs atomic.Pointer[listing]
}

type listing struct {
	run  string
	refs []git.Ref
}

// Stats counts git work done by a Cache.
type Stats struct {
	Clones   int
	Fetches  int
	Listings int
}

// New creates a source cache. A nil logger uses log.Default().
func New(acc git.Accessor, layout cache.Layout, logger *log.Logger) *Cache {
	if logger == nil {
		logger = log.Default()
	}
	return &Cache{
		git:     acc,
		layout:  layout,
		logger:  logger,
		run:     uuid.NewString(),
		entries: make(map[string]*entry),
	}
}

// NewRun starts a new run: every source becomes eligible for one more
// fetch. It returns the run id.
func (c *Cache) NewRun() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.run = uuid.NewString()
	return c.run
}

// RunID returns the current run id.
func (c *Cache) RunID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.run
}

// Stats returns counters accumulated since New.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *Cache) entry(src manifest.Source) (*entry, string) {
	key := cache.SourceKey(src.Location)
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		e = &entry{}
		c.entries[key] = e
	}
	return e, c.run
}

func (c *Cache) count(f func(*Stats)) {
	c.mu.Lock()
	f(&c.stats)
	c.mu.Unlock()
}

// GetOrClone returns the bare clone for src, cloning it when missing.
func (c *Cache) GetOrClone(ctx context.Context, src manifest.Source) (*git.Repo, error) {
	e, run := c.entry(src)
	e.mu.Lock()
	defer e.mu.Unlock()
	return c.getOrClone(ctx, src, e, run)
}

func (c *Cache) getOrClone(ctx context.Context, src manifest.Source, e *entry, run string) (*git.Repo, error) {
	if e.repo != nil {
		return e.repo, nil
	}
	dest := c.layout.SourcePath(src.Location)
	if _, err := os.Stat(dest); err == nil {
		repo, err := c.git.Open(src.Location, dest)
		if err == nil {
			observability.Cache().OnCacheHit(ctx, observability.KeyTypeSource)
			e.repo = repo
			return repo, nil
		}
		c.logger.Warn("discarding unusable clone", "source", src.Name, "path", dest, "error", err)
		if err := os.RemoveAll(dest); err != nil {
			return nil, &errors.SourceUnreachableError{Source: src.Name, Location: src.Location, Err: err}
		}
	}

	observability.Cache().OnCacheMiss(ctx, observability.KeyTypeSource)
	c.logger.Info("cloning source", "source", src.Name, "location", src.Location, "run", run)
	var repo *git.Repo
	err := c.retry(ctx, "clone", src, func() error {
		var err error
		repo, err = c.git.CloneBare(ctx, src.Location, dest)
		return err
	})
	if err != nil {
		return nil, err
	}
	c.count(func(s *Stats) { s.Clones++ })
	e.repo = repo
	e.fresh = run
	return repo, nil
}

// EnsureFresh returns the clone for src after fetching it, unless it was
// already cloned or fetched in the current run.
func (c *Cache) EnsureFresh(ctx context.Context, src manifest.Source) (*git.Repo, error) {
	e, run := c.entry(src)
	e.mu.Lock()
	defer e.mu.Unlock()
	return c.ensureFresh(ctx, src, e, run)
}

func (c *Cache) ensureFresh(ctx context.Context, src manifest.Source, e *entry, run string) (*git.Repo, error) {
	repo, err := c.getOrClone(ctx, src, e, run)
	if err != nil {
		return nil, err
	}
	if e.fresh == run {
		return repo, nil
	}
	c.logger.Debug("fetching source", "source", src.Name, "run", run)
	lock := c.layout.RepoLock(repo.Path)
	lock.Lock()
	err = c.retry(ctx, "fetch", src, func() error { return c.git.Fetch(ctx, repo) })
	lock.Unlock()
	if err != nil {
		return nil, err
	}
	c.count(func(s *Stats) { s.Fetches++ })
	e.fresh = run
	return repo, nil
}

// Refs returns the refs of src as of its fetch in the current run.
// Once listed, refs are served without taking the source lock.
// The returned slice must not be modified.
func (c *Cache) Refs(ctx context.Context, src manifest.Source) ([]git.Ref, error) {
	e, run := c.entry(src)
	if l := e.refs.Load(); l != nil && l.run == run {
		observability.Cache().OnCacheHit(ctx, observability.KeyTypeRefs)
		return l.refs, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if l := e.refs.Load(); l != nil && l.run == run {
		observability.Cache().OnCacheHit(ctx, observability.KeyTypeRefs)
		return l.refs, nil
	}
	observability.Cache().OnCacheMiss(ctx, observability.KeyTypeRefs)
	repo, err := c.ensureFresh(ctx, src, e, run)
	if err != nil {
		return nil, err
	}
	refs, err := c.git.ListRefs(ctx, repo)
	if err != nil {
		return nil, err
	}
	if refs == nil {
		refs = []git.Ref{}
	}
	c.count(func(s *Stats) { s.Listings++ })
	e.refs.Store(&listing{run: run, refs: refs})
	return refs, nil
}

// ResolveCommit resolves an arbitrary revision in src, typically a commit
// that is not the tip of any ref. The clone is fetched first.
func (c *Cache) ResolveCommit(ctx context.Context, src manifest.Source, rev string) (string, bool, error) {
	repo, err := c.EnsureFresh(ctx, src)
	if err != nil {
		return "", false, err
	}
	return c.git.ResolveRef(ctx, repo, rev)
}

// retry runs fn once more when it fails transiently and converts the final
// failure into a SourceUnreachableError.
func (c *Cache) retry(ctx context.Context, op string, src manifest.Source, fn func() error) error {
	tries := 0
	err := cache.Retry(ctx, attempts, func() error {
		tries++
		err := fn()
		if git.IsTransient(err) && tries < attempts {
			c.logger.Warn("transient git failure, retrying", "op", op, "source", src.Name, "error", err)
			observability.Git().OnRetry(ctx, op, src.Location, err)
			return cache.Retryable(err)
		}
		return err
	})
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return &errors.SourceUnreachableError{Source: src.Name, Location: src.Location, Err: err}
}

// Ensure returns a clone of src that contains commit. The clone is fetched
// only when the commit is missing, so pinned commits need no ref listing.
func (c *Cache) Ensure(ctx context.Context, src manifest.Source, commit string) (*git.Repo, error) {
	e, run := c.entry(src)
	e.mu.Lock()
	defer e.mu.Unlock()
	repo, err := c.getOrClone(ctx, src, e, run)
	if err != nil {
		return nil, err
	}
	if _, ok, err := c.git.ResolveRef(ctx, repo, commit); err == nil && ok {
		return repo, nil
	}
	return c.ensureFresh(ctx, src, e, run)
}
