package source

import (
	"context"
	stderrors "errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/matzehuels/gitpkg/pkg/cache"
	"github.com/matzehuels/gitpkg/pkg/errors"
	"github.com/matzehuels/gitpkg/pkg/git"
	"github.com/matzehuels/gitpkg/pkg/git/gittest"
	"github.com/matzehuels/gitpkg/pkg/manifest"
)

const location = "https://github.com/org/resources.git"

var (
	shaA = strings.Repeat("a", 40)
	shaB = strings.Repeat("b", 40)
)

func init() {
	cache.RetryDelay = time.Millisecond
}

func setup(t *testing.T) (*Cache, *gittest.Fake, cache.Layout) {
	t.Helper()
	layout, err := cache.NewLayout(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	fake := gittest.New()
	fake.SetRemote(location, &gittest.Remote{Refs: []git.Ref{
		{Name: "HEAD", Commit: shaA},
		{Name: "refs/heads/main", Commit: shaA},
		{Name: "refs/tags/v1.0.0", Commit: shaA},
	}})
	return New(fake, layout, nil), fake, layout
}

func TestGetOrCloneClonesOnce(t *testing.T) {
	c, fake, layout := setup(t)
	ctx := context.Background()
	src := manifest.Source{Name: "community", Location: location}

	repo, err := c.GetOrClone(ctx, src)
	if err != nil {
		t.Fatalf("GetOrClone: %v", err)
	}
	if repo.Path != layout.SourcePath(location) {
		t.Errorf("Path = %q, want %q", repo.Path, layout.SourcePath(location))
	}

	// A second name for the same location shares the clone.
	alias := manifest.Source{Name: "mirror", Location: "https://GitHub.com/org/resources/"}
	again, err := c.GetOrClone(ctx, alias)
	if err != nil {
		t.Fatal(err)
	}
	if again != repo {
		t.Error("aliases of one location should share a clone")
	}
	if n := fake.Calls("clone"); n != 1 {
		t.Errorf("clone calls = %d, want 1", n)
	}
}

func TestEnsureFreshFetchesOncePerRun(t *testing.T) {
	c, fake, _ := setup(t)
	ctx := context.Background()
	src := manifest.Source{Name: "community", Location: location}

	// Fresh clones are not fetched again in the same run.
	for i := 0; i < 3; i++ {
		if _, err := c.EnsureFresh(ctx, src); err != nil {
			t.Fatal(err)
		}
	}
	if n := fake.Calls("fetch"); n != 0 {
		t.Errorf("fetch calls after clone = %d, want 0", n)
	}

	c.NewRun()
	for i := 0; i < 3; i++ {
		if _, err := c.EnsureFresh(ctx, src); err != nil {
			t.Fatal(err)
		}
	}
	if n := fake.Calls("fetch"); n != 1 {
		t.Errorf("fetch calls in second run = %d, want 1", n)
	}
	if s := c.Stats(); s.Clones != 1 || s.Fetches != 1 {
		t.Errorf("Stats = %+v", s)
	}
}

func TestEnsureFreshConcurrent(t *testing.T) {
	c, fake, _ := setup(t)
	ctx := context.Background()
	src := manifest.Source{Name: "community", Location: location}
	if _, err := c.GetOrClone(ctx, src); err != nil {
		t.Fatal(err)
	}
	c.NewRun()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Refs(ctx, src); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
	if n := fake.Calls("fetch"); n != 1 {
		t.Errorf("fetch calls = %d, want 1", n)
	}
	if n := fake.Calls("ls-refs"); n != 1 {
		t.Errorf("ls-refs calls = %d, want 1", n)
	}
}

func TestRefsSeeNewTagsAfterNewRun(t *testing.T) {
	c, fake, _ := setup(t)
	ctx := context.Background()
	src := manifest.Source{Name: "community", Location: location}

	refs, err := c.Refs(ctx, src)
	if err != nil {
		t.Fatal(err)
	}
	if len(refs) != 3 {
		t.Fatalf("refs = %v", refs)
	}

	fake.SetRemote(location, &gittest.Remote{Refs: []git.Ref{
		{Name: "HEAD", Commit: shaB},
		{Name: "refs/heads/main", Commit: shaB},
		{Name: "refs/tags/v1.0.0", Commit: shaA},
		{Name: "refs/tags/v1.1.0", Commit: shaB},
	}})

	// Same run: memoized.
	refs, _ = c.Refs(ctx, src)
	if len(refs) != 3 {
		t.Errorf("refs changed within a run: %v", refs)
	}

	c.NewRun()
	refs, err = c.Refs(ctx, src)
	if err != nil {
		t.Fatal(err)
	}
	if len(refs) != 4 {
		t.Errorf("refs after NewRun = %v", refs)
	}
}

func TestReopenExistingClone(t *testing.T) {
	c, fake, layout := setup(t)
	ctx := context.Background()
	src := manifest.Source{Name: "community", Location: location}
	if _, err := c.GetOrClone(ctx, src); err != nil {
		t.Fatal(err)
	}

	second := New(fake, layout, nil)
	if _, err := second.EnsureFresh(ctx, src); err != nil {
		t.Fatal(err)
	}
	if n := fake.Calls("clone"); n != 1 {
		t.Errorf("clone calls = %d, want 1", n)
	}
	if n := fake.Calls("fetch"); n != 1 {
		t.Errorf("a reopened clone should be fetched once, got %d", n)
	}
}

func TestTransientFetchIsRetriedOnce(t *testing.T) {
	c, fake, _ := setup(t)
	ctx := context.Background()
	src := manifest.Source{Name: "community", Location: location}
	if _, err := c.GetOrClone(ctx, src); err != nil {
		t.Fatal(err)
	}
	c.NewRun()

	fake.Fail("fetch", gittest.Transient("fetch"))
	if _, err := c.EnsureFresh(ctx, src); err != nil {
		t.Fatalf("EnsureFresh after one transient failure: %v", err)
	}
	if n := fake.Calls("fetch"); n != 2 {
		t.Errorf("fetch calls = %d, want 2", n)
	}
}

func TestUnreachable(t *testing.T) {
	tests := []struct {
		name     string
		failures []error
		calls    int
	}{
		{"transient twice", []error{gittest.Transient("fetch"), gittest.Transient("fetch")}, 2},
		{"permanent", []error{&errors.GitError{Op: "fetch", Output: "fatal: Authentication failed"}}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, fake, _ := setup(t)
			ctx := context.Background()
			src := manifest.Source{Name: "community", Location: location}
			if _, err := c.GetOrClone(ctx, src); err != nil {
				t.Fatal(err)
			}
			c.NewRun()

			fake.Fail("fetch", tt.failures...)
			_, err := c.EnsureFresh(ctx, src)
			var su *errors.SourceUnreachableError
			if !stderrors.As(err, &su) {
				t.Fatalf("err = %v, want SourceUnreachableError", err)
			}
			if su.Source != "community" || su.Location != location {
				t.Errorf("err = %+v", su)
			}
			if !errors.Is(err, errors.ErrCodeSourceUnreachable) {
				t.Error("errors.Is should match SOURCE_UNREACHABLE")
			}
			if n := fake.Calls("fetch"); n != tt.calls {
				t.Errorf("fetch calls = %d, want %d", n, tt.calls)
			}
		})
	}
}

func TestCloneMissingRemote(t *testing.T) {
	c, _, layout := setup(t)
	src := manifest.Source{Name: "gone", Location: "https://example.com/missing.git"}
	_, err := c.GetOrClone(context.Background(), src)
	if !errors.Is(err, errors.ErrCodeSourceUnreachable) {
		t.Fatalf("err = %v, want SOURCE_UNREACHABLE", err)
	}
	if _, statErr := os.Stat(layout.SourcePath(src.Location)); !os.IsNotExist(statErr) {
		t.Error("failed clone left a directory behind")
	}
}

func TestResolveCommit(t *testing.T) {
	c, _, _ := setup(t)
	src := manifest.Source{Name: "community", Location: location}
	sha, ok, err := c.ResolveCommit(context.Background(), src, "v1.0.0")
	if err != nil || !ok || sha != shaA {
		t.Errorf("ResolveCommit = %q, %v, %v", sha, ok, err)
	}
}

func TestNewRunChangesID(t *testing.T) {
	c, _, _ := setup(t)
	first := c.RunID()
	if second := c.NewRun(); second == first || c.RunID() != second {
		t.Errorf("run ids: %q then %q", first, second)
	}
}

func TestEnsureFetchesOnlyForMissingCommits(t *testing.T) {
	c, fake, layout := setup(t)
	ctx := context.Background()
	src := manifest.Source{Name: "community", Location: location}
	if _, err := c.GetOrClone(ctx, src); err != nil {
		t.Fatal(err)
	}

	next := New(fake, layout, nil)
	if _, err := next.Ensure(ctx, src, shaA); err != nil {
		t.Fatal(err)
	}
	if n := fake.Calls("fetch"); n != 0 {
		t.Errorf("fetch calls for a present commit = %d, want 0", n)
	}
	if _, err := next.Ensure(ctx, src, shaB); err != nil {
		t.Fatal(err)
	}
	if n := fake.Calls("fetch"); n != 1 {
		t.Errorf("fetch calls for a missing commit = %d, want 1", n)
	}
}

func TestRefsMemoizedWithoutSourceLock(t *testing.T) {
	c, _, _ := setup(t)
	ctx := context.Background()
	src := manifest.Source{Name: "community", Location: location}
	if _, err := c.Refs(ctx, src); err != nil {
		t.Fatal(err)
	}

	e, _ := c.entry(src)
	e.mu.Lock()
	defer e.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		_, err := c.Refs(ctx, src)
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(time.Second):
		t.Fatal("memoized Refs blocked on the source lock")
	}
}

func TestFetchWaitsForRepoLock(t *testing.T) {
	c, fake, layout := setup(t)
	ctx := context.Background()
	src := manifest.Source{Name: "community", Location: location}
	repo, err := c.GetOrClone(ctx, src)
	if err != nil {
		t.Fatal(err)
	}
	c.NewRun()

	lock := layout.RepoLock(repo.Path)
	lock.Lock()
	done := make(chan error, 1)
	go func() {
		_, err := c.EnsureFresh(ctx, src)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	if n := fake.Calls("fetch"); n != 0 {
		t.Errorf("fetch ran while the clone was locked (%d calls)", n)
	}
	lock.Unlock()
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if n := fake.Calls("fetch"); n != 1 {
		t.Errorf("fetch calls = %d, want 1", n)
	}
}
