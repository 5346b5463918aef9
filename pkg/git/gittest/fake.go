// Package gittest provides an in-memory git.Accessor for tests.
//
// A [Fake] serves remotes described as ref lists plus file contents per
// commit. Clones and worktrees are real directories so callers that stat
// or read them behave as with the git binary; everything else is memory.
package gittest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/matzehuels/gitpkg/pkg/errors"
	"github.com/matzehuels/gitpkg/pkg/git"
)

// Remote is an upstream repository.
type Remote struct {
	Refs  []git.Ref
	Files map[string]map[string]string // commit -> path -> content
}

// Fake implements git.Accessor.
type Fake struct {
	// CreateDelay slows CreateWorktree down so tests can observe
	// concurrent callers.
	CreateDelay time.Duration

	mu        sync.Mutex
	remotes   map[string]*Remote
	clones    map[string][]git.Ref // clone path -> refs as of last fetch
	worktrees map[string]string    // worktree path -> commit
	failures  map[string][]error
	calls     map[string]int
	active    map[string]int // repo path -> creations in flight
	maxActive map[string]int
}

// New returns an empty Fake.
func New() *Fake {
	return &Fake{
		remotes:   make(map[string]*Remote),
		clones:    make(map[string][]git.Ref),
		worktrees: make(map[string]string),
		failures:  make(map[string][]error),
		calls:     make(map[string]int),
		active:    make(map[string]int),
		maxActive: make(map[string]int),
	}
}

var _ git.Accessor = (*Fake)(nil)

// SetRemote installs or replaces the remote served at location.
func (f *Fake) SetRemote(location string, r *Remote) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.remotes[location] = r
}

// Fail queues errors returned by the next calls of op ("clone", "fetch",
// "ls-refs", "rev-parse", "worktree add", "worktree remove").
func (f *Fake) Fail(op string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = append(f.failures[op], errs...)
}

// Calls returns how often op was invoked.
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// MaxConcurrentCreates returns the largest number of CreateWorktree calls
// observed in flight at once for the clone at path.
func (f *Fake) MaxConcurrentCreates(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxActive[path]
}

// Worktrees lists live worktree paths, sorted.
func (f *Fake) Worktrees() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for p := range f.worktrees {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// begin records a call and pops a queued failure. Callers hold f.mu.
func (f *Fake) begin(op string) error {
	f.calls[op]++
	if q := f.failures[op]; len(q) > 0 {
		f.failures[op] = q[1:]
		return q[0]
	}
	return nil
}

// Transient returns a GitError that git.IsTransient classifies as a network
// failure.
func Transient(op string) error {
	return &errors.GitError{Op: op, Output: "fatal: unable to access: Could not resolve host: example.com", Err: fmt.Errorf("exit status 128")}
}

func (f *Fake) CloneBare(ctx context.Context, location, dest string) (*git.Repo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("clone"); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r, ok := f.remotes[location]
	if !ok {
		return nil, &errors.GitError{Op: "clone", Repo: location, Output: "fatal: repository '" + location + "' does not exist", Err: fmt.Errorf("exit status 128")}
	}
	if err := os.MkdirAll(dest, 0755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(dest, "HEAD"), []byte("ref: refs/heads/main\n"), 0644); err != nil {
		return nil, err
	}
	f.clones[dest] = append([]git.Ref(nil), r.Refs...)
	return &git.Repo{Location: location, Path: dest}, nil
}

func (f *Fake) Open(location, dest string) (*git.Repo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["open"]++
	if _, err := os.Stat(filepath.Join(dest, "HEAD")); err != nil {
		return nil, &errors.GitError{Op: "open", Repo: dest, Err: err}
	}
	if _, ok := f.clones[dest]; !ok {
		// A clone left by an earlier Fake: adopt the remote's current state.
		if r, ok := f.remotes[location]; ok {
			f.clones[dest] = append([]git.Ref(nil), r.Refs...)
		}
	}
	return &git.Repo{Location: location, Path: dest}, nil
}

func (f *Fake) Fetch(ctx context.Context, repo *git.Repo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("fetch"); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	r, ok := f.remotes[repo.Location]
	if !ok {
		return &errors.GitError{Op: "fetch", Repo: repo.Location, Output: "fatal: remote gone", Err: fmt.Errorf("exit status 128")}
	}
	f.clones[repo.Path] = append([]git.Ref(nil), r.Refs...)
	return nil
}

func (f *Fake) ListRefs(ctx context.Context, repo *git.Repo) ([]git.Ref, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("ls-refs"); err != nil {
		return nil, err
	}
	refs := append([]git.Ref(nil), f.clones[repo.Path]...)
	sort.Slice(refs, func(i, j int) bool { return refs[i].Name < refs[j].Name })
	return refs, nil
}

func (f *Fake) ResolveRef(ctx context.Context, repo *git.Repo, ref string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("rev-parse"); err != nil {
		return "", false, err
	}
	if commit, ok := f.worktrees[repo.Path]; ok && ref == git.Head {
		return commit, true, nil
	}
	for _, r := range f.clones[repo.Path] {
		if r.Name == ref || r.ShortName() == ref {
			return r.Commit, true, nil
		}
	}
	if !git.IsCommitID(ref) {
		return "", false, nil
	}
	var match string
	ref = strings.ToLower(ref)
	for _, r := range f.clones[repo.Path] {
		if strings.HasPrefix(r.Commit, ref) {
			match = r.Commit
		}
	}
	for commit := range f.remotes[repo.Location].files() {
		if strings.HasPrefix(commit, ref) {
			if match != "" && match != commit {
				return "", false, &errors.GitError{Op: "rev-parse", Repo: repo.Location, Ref: ref, Output: "error: short object ID is ambiguous", Err: fmt.Errorf("exit status 128")}
			}
			match = commit
		}
	}
	return match, match != "", nil
}

func (r *Remote) files() map[string]map[string]string {
	if r == nil {
		return nil
	}
	return r.Files
}

func (f *Fake) CreateWorktree(ctx context.Context, repo *git.Repo, sha, dest string) error {
	f.mu.Lock()
	failure := f.begin("worktree add")
	f.active[repo.Path]++
	if f.active[repo.Path] > f.maxActive[repo.Path] {
		f.maxActive[repo.Path] = f.active[repo.Path]
	}
	files := f.remotes[repo.Location].files()[sha]
	delay := f.CreateDelay
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.active[repo.Path]--
		f.mu.Unlock()
	}()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if failure != nil {
		return failure
	}
	if err := os.MkdirAll(dest, 0755); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dest, ".git"), []byte("gitdir: "+repo.Path+"\n"), 0644); err != nil {
		return err
	}
	for p, content := range files {
		full := filepath.Join(dest, filepath.FromSlash(p))
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(full, []byte(content), 0644); err != nil {
			return err
		}
	}

	f.mu.Lock()
	f.worktrees[dest] = sha
	f.mu.Unlock()
	return nil
}

func (f *Fake) RemoveWorktree(ctx context.Context, repo *git.Repo, dest string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("worktree remove"); err != nil {
		return err
	}
	delete(f.worktrees, dest)
	return os.RemoveAll(dest)
}
