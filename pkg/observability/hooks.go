// Package observability provides hooks for metrics, tracing, and logging.
//
// This package enables optional instrumentation without adding hard dependencies
// on specific observability backends. Consumers can register hooks at startup
// to receive events about resolution runs, cache operations, and git commands.
//
// # Architecture
//
// The package uses a simple hooks pattern:
//   - Define hook interfaces for different event categories
//   - Provide no-op default implementations
//   - Allow registration of custom implementations at startup
//
// The Prometheus backend lives in the metrics subpackage so the core
// packages never import a metrics client.
//
// # Usage
//
// Register hooks at application startup:
//
//	func main() {
//	    m := metrics.New()
//	    observability.SetResolveHooks(m)
//	    observability.SetCacheHooks(m)
//	    observability.SetGitHooks(m)
//	    // ... run application
//	}
//
// Libraries call hooks to emit events:
//
//	observability.Resolve().OnResolveStart(ctx, len(deps))
//	// ... resolve ...
//	observability.Resolve().OnResolveComplete(ctx, nodes, duration, err)
package observability

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// Resolve Hooks
// =============================================================================

// ResolveHooks receives events from the resolver.
type ResolveHooks interface {
	// OnResolveStart marks the beginning of a run over the given number of
	// direct dependencies.
	OnResolveStart(ctx context.Context, direct int)

	// OnLevel is called once per fixed-point iteration with the number of
	// distinct (source, constraint) keys resolved in it.
	OnLevel(ctx context.Context, level, keys int)

	// OnResolveComplete marks the end of a run.
	OnResolveComplete(ctx context.Context, nodes int, duration time.Duration, err error)
}

// =============================================================================
// Cache Hooks
// =============================================================================

// CacheHooks receives events from cache operations.
type CacheHooks interface {
	// OnCacheHit records a cache hit.
	OnCacheHit(ctx context.Context, keyType string)

	// OnCacheMiss records a cache miss.
	OnCacheMiss(ctx context.Context, keyType string)

	// OnCacheSet records a cache write.
	OnCacheSet(ctx context.Context, keyType string, size int)
}

// Cache key types reported by the caches.
const (
	KeyTypeSource   = "source"
	KeyTypeRefs     = "refs"
	KeyTypeWorktree = "worktree"
	KeyTypeExtract  = "extract"
)

// =============================================================================
// Git Hooks
// =============================================================================

// GitHooks receives events from git subprocesses.
type GitHooks interface {
	// OnCommand records a git command about to run.
	OnCommand(ctx context.Context, op, repo string)

	// OnCommandComplete records a finished git command.
	OnCommandComplete(ctx context.Context, op, repo string, duration time.Duration, err error)

	// OnRetry records a retried transient failure.
	OnRetry(ctx context.Context, op, repo string, err error)
}

// =============================================================================
// No-op Implementations
// =============================================================================

// NoopResolveHooks is a no-op implementation of ResolveHooks.
type NoopResolveHooks struct{}

func (NoopResolveHooks) OnResolveStart(context.Context, int)                          {}
func (NoopResolveHooks) OnLevel(context.Context, int, int)                            {}
func (NoopResolveHooks) OnResolveComplete(context.Context, int, time.Duration, error) {}

// NoopCacheHooks is a no-op implementation of CacheHooks.
type NoopCacheHooks struct{}

func (NoopCacheHooks) OnCacheHit(context.Context, string)      {}
func (NoopCacheHooks) OnCacheMiss(context.Context, string)     {}
func (NoopCacheHooks) OnCacheSet(context.Context, string, int) {}

// NoopGitHooks is a no-op implementation of GitHooks.
type NoopGitHooks struct{}

func (NoopGitHooks) OnCommand(context.Context, string, string) {}
func (NoopGitHooks) OnCommandComplete(context.Context, string, string, time.Duration, error) {
}
func (NoopGitHooks) OnRetry(context.Context, string, string, error) {}

// =============================================================================
// Global Hook Registry
// =============================================================================

var (
	resolveHooks ResolveHooks = NoopResolveHooks{}
	cacheHooks   CacheHooks   = NoopCacheHooks{}
	gitHooks     GitHooks     = NoopGitHooks{}
	hooksMu      sync.RWMutex
)

// SetResolveHooks registers custom resolve hooks.
// This should be called once at application startup before any resolution.
func SetResolveHooks(h ResolveHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		resolveHooks = h
	}
}

// SetCacheHooks registers custom cache hooks.
// This should be called once at application startup before any cache operations.
func SetCacheHooks(h CacheHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		cacheHooks = h
	}
}

// SetGitHooks registers custom git hooks.
// This should be called once at application startup before any git operations.
func SetGitHooks(h GitHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		gitHooks = h
	}
}

// Resolve returns the registered resolve hooks.
func Resolve() ResolveHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return resolveHooks
}

// Cache returns the registered cache hooks.
func Cache() CacheHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return cacheHooks
}

// Git returns the registered git hooks.
func Git() GitHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return gitHooks
}

// Reset restores all hooks to their no-op defaults.
// This is primarily useful for testing.
func Reset() {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	resolveHooks = NoopResolveHooks{}
	cacheHooks = NoopCacheHooks{}
	gitHooks = NoopGitHooks{}
}
