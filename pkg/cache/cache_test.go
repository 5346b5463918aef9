package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var errTransient = errors.New("connection reset by peer")

func init() {
	RetryDelay = time.Millisecond
}

func TestHash(t *testing.T) {
	h1 := Hash([]byte("hello"))
	h2 := Hash([]byte("hello"))
	if h1 != h2 {
		t.Error("Hash should be deterministic")
	}

	if h1 == Hash([]byte("world")) {
		t.Error("Different inputs should produce different hashes")
	}

	if len(h1) != 64 {
		t.Errorf("Hash length should be 64, got %d", len(h1))
	}
}

func TestSourceKey(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		same bool
	}{
		{"trailing .git", "https://github.com/org/res.git", "https://github.com/org/res", true},
		{"trailing slash", "https://github.com/org/res/", "https://github.com/org/res", true},
		{"host case", "https://GitHub.com/org/res", "https://github.com/org/res", true},
		{"scp-like vs ssh", "git@github.com:org/res.git", "ssh://git@github.com/org/res", true},
		{"local clean", "/srv/git/res/../res", "/srv/git/res", true},
		{"different repos", "https://github.com/org/a", "https://github.com/org/b", false},
		{"path case kept", "https://github.com/Org/res", "https://github.com/org/res", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ka, kb := SourceKey(tt.a), SourceKey(tt.b)
			if (ka == kb) != tt.same {
				t.Errorf("SourceKey(%q)=%q, SourceKey(%q)=%q, same=%v want %v", tt.a, ka, tt.b, kb, ka == kb, tt.same)
			}
		})
	}
}

func TestSlug(t *testing.T) {
	s := Slug("https://github.com/org/community-resources.git")
	if !strings.HasPrefix(s, "community-resources-") {
		t.Errorf("Slug = %q, want community-resources- prefix", s)
	}
	if strings.ContainsAny(s, `/\:@`) {
		t.Errorf("Slug %q contains unsafe characters", s)
	}
	if s != Slug("https://github.com/org/community-resources") {
		t.Error("Slug should be stable across equivalent locations")
	}
	if s == Slug("https://gitlab.com/org/community-resources") {
		t.Error("Slug should differ for different hosts")
	}
}

func TestExtractKey(t *testing.T) {
	k1 := ExtractKey("https://x/r.git", "abc", "agents/a.md")
	k2 := ExtractKey("https://x/r", "abc", "agents/a.md")
	if k1 != k2 {
		t.Error("ExtractKey should normalize the location")
	}
	if k1 == ExtractKey("https://x/r", "abd", "agents/a.md") {
		t.Error("ExtractKey should depend on commit")
	}
	if !strings.HasPrefix(k1, "extract:") {
		t.Errorf("ExtractKey = %q, want extract: prefix", k1)
	}
}

func TestLayout(t *testing.T) {
	root := filepath.Join(t.TempDir(), "cache")
	l, err := NewLayout(root)
	if err != nil {
		t.Fatalf("NewLayout: %v", err)
	}

	src := l.SourcePath("https://github.com/org/res.git")
	if filepath.Dir(src) != l.SourcesDir() || !strings.HasSuffix(src, ".git") {
		t.Errorf("SourcePath = %q", src)
	}

	wt := l.WorktreePath("https://github.com/org/res.git", "0123456789abcdef0123456789abcdef01234567")
	if err := os.MkdirAll(wt, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(wt, "a.md"), []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(src, 0755); err != nil {
		t.Fatal(err)
	}

	infos, err := l.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("List returned %d entries, want 2", len(infos))
	}
	var found bool
	for _, info := range infos {
		if info.Path == wt {
			found = true
			if info.Files != 1 || info.Size != 5 {
				t.Errorf("worktree info = %+v, want 1 file of 5 bytes", info)
			}
		}
	}
	if !found {
		t.Error("worktree missing from List")
	}

	if err := l.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	infos, err = l.List()
	if err != nil || len(infos) != 0 {
		t.Errorf("List after Clear = %v, %v; want empty", infos, err)
	}
}

func TestRetryableError(t *testing.T) {
	if Retryable(nil) != nil {
		t.Error("Retryable(nil) should return nil")
	}

	err := Retryable(errTransient)
	if !IsRetryable(err) {
		t.Error("IsRetryable should return true for wrapped error")
	}
	if err.Error() != errTransient.Error() {
		t.Errorf("Error message should be preserved: %s", err.Error())
	}
	if IsRetryable(errTransient) {
		t.Error("IsRetryable should return false for unwrapped error")
	}
}

func TestRetry(t *testing.T) {
	ctx := context.Background()
	errFatal := errors.New("repository not found")

	tests := []struct {
		name      string
		attempts  int
		errs      []error
		wantCalls int
		wantErr   error
	}{
		{"success first try", 2, []error{nil}, 1, nil},
		{"non-retryable stops", 2, []error{errFatal}, 1, errFatal},
		{"one retry then success", 2, []error{Retryable(errTransient), nil}, 2, nil},
		{"exhausted unwraps", 2, []error{Retryable(errTransient), Retryable(errTransient)}, 2, errTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := Retry(ctx, tt.attempts, func() error {
				e := tt.errs[calls]
				calls++
				return e
			})
			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
			if err != tt.wantErr {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRetryContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, 3, func() error {
		return Retryable(errTransient)
	})
	if err != context.Canceled {
		t.Errorf("Should return context error: %v", err)
	}
}

func TestIsLocalAndAnchor(t *testing.T) {
	tests := []struct {
		location string
		local    bool
		anchored string
	}{
		{"https://github.com/org/r.git", false, "https://github.com/org/r.git"},
		{"git@github.com:org/r.git", false, "git@github.com:org/r.git"},
		{"file:///srv/r", false, "file:///srv/r"},
		{"../shared", true, "/work/shared"},
		{"./vendor/r", true, "/work/project/vendor/r"},
		{"/abs/r", true, "/abs/r"},
	}
	for _, tt := range tests {
		if got := IsLocal(tt.location); got != tt.local {
			t.Errorf("IsLocal(%q) = %v, want %v", tt.location, got, tt.local)
		}
		if got := Anchor(tt.location, "/work/project"); got != tt.anchored {
			t.Errorf("Anchor(%q) = %q, want %q", tt.location, got, tt.anchored)
		}
	}
	if got := Anchor("../x", ""); got != "../x" {
		t.Errorf("Anchor without base = %q", got)
	}
}

func TestRepoLockSharedAcrossCopies(t *testing.T) {
	l, err := NewLayout(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	copied := l
	path := l.SourcePath("https://github.com/org/res.git")

	if l.RepoLock(path) != copied.RepoLock(path) {
		t.Error("copies of a layout should share repository locks")
	}
	if l.RepoLock(path) == l.RepoLock(l.SourcePath("https://github.com/org/other.git")) {
		t.Error("distinct clones should have distinct locks")
	}

	other, err := NewLayout(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if other.RepoLock(path) == l.RepoLock(path) {
		t.Error("separate layouts should not share locks")
	}
}
