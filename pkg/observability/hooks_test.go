package observability

import (
	"context"
	"testing"
	"time"
)

func TestNoopHooksDoNotPanic(t *testing.T) {
	ctx := context.Background()

	// Resolve hooks
	r := NoopResolveHooks{}
	r.OnResolveStart(ctx, 3)
	r.OnLevel(ctx, 0, 3)
	r.OnResolveComplete(ctx, 5, time.Second, nil)

	// Cache hooks
	c := NoopCacheHooks{}
	c.OnCacheHit(ctx, KeyTypeWorktree)
	c.OnCacheMiss(ctx, KeyTypeRefs)
	c.OnCacheSet(ctx, KeyTypeExtract, 1024)

	// Git hooks
	g := NoopGitHooks{}
	g.OnCommand(ctx, "fetch", "/tmp/repo.git")
	g.OnCommandComplete(ctx, "fetch", "/tmp/repo.git", time.Second, nil)
	g.OnRetry(ctx, "fetch", "/tmp/repo.git", nil)
}

func TestGlobalHooksRegistry(t *testing.T) {
	// Reset to known state
	Reset()

	// Verify defaults are noop
	if _, ok := Resolve().(NoopResolveHooks); !ok {
		t.Error("Resolve() should return NoopResolveHooks by default")
	}
	if _, ok := Cache().(NoopCacheHooks); !ok {
		t.Error("Cache() should return NoopCacheHooks by default")
	}
	if _, ok := Git().(NoopGitHooks); !ok {
		t.Error("Git() should return NoopGitHooks by default")
	}

	// Set custom hooks
	customResolve := &testResolveHooks{}
	SetResolveHooks(customResolve)
	if Resolve() != customResolve {
		t.Error("SetResolveHooks should set custom hooks")
	}

	customCache := &testCacheHooks{}
	SetCacheHooks(customCache)
	if Cache() != customCache {
		t.Error("SetCacheHooks should set custom hooks")
	}

	customGit := &testGitHooks{}
	SetGitHooks(customGit)
	if Git() != customGit {
		t.Error("SetGitHooks should set custom hooks")
	}

	// Reset and verify
	Reset()
	if _, ok := Resolve().(NoopResolveHooks); !ok {
		t.Error("Reset() should restore NoopResolveHooks")
	}
	if _, ok := Git().(NoopGitHooks); !ok {
		t.Error("Reset() should restore NoopGitHooks")
	}
}

func TestSetNilHooksIsIgnored(t *testing.T) {
	Reset()

	custom := &testResolveHooks{}
	SetResolveHooks(custom)

	// Setting nil should be ignored
	SetResolveHooks(nil)

	if Resolve() != custom {
		t.Error("SetResolveHooks(nil) should be ignored")
	}

	Reset()
}

// Test implementations
type testResolveHooks struct{ NoopResolveHooks }
type testCacheHooks struct{ NoopCacheHooks }
type testGitHooks struct{ NoopGitHooks }
