// Package git is the only component that talks to git.
//
// The [Accessor] interface covers everything the resolver needs from a
// repository: bare clones, fetches, ref listing and resolution, and linked
// worktrees. [CLI] implements it by invoking the git binary through an
// [Executor], except for [CLI.ListRefs] which reads the bare repository
// in-process with go-git.
//
// Every failure is returned as an [*errors.GitError] carrying the operation,
// the repository and git's own output. This package never retries; callers
// use [IsTransient] to decide whether a failure is worth a second attempt.
package git

import (
	"context"
	"strings"
)

// Ref names a commit in a repository.
type Ref struct {
	Name   string // full ref name: "HEAD", "refs/heads/main", "refs/tags/v1.0.0"
	Commit string // full commit id; annotated tags are peeled
}

const (
	tagPrefix    = "refs/tags/"
	branchPrefix = "refs/heads/"

	// Head is the name of the default-branch ref.
	Head = "HEAD"
)

// IsTag reports whether the ref is a tag.
func (r Ref) IsTag() bool { return strings.HasPrefix(r.Name, tagPrefix) }

// IsBranch reports whether the ref is a branch.
func (r Ref) IsBranch() bool { return strings.HasPrefix(r.Name, branchPrefix) }

// ShortName returns the ref name without its refs/tags/ or refs/heads/ prefix.
func (r Ref) ShortName() string {
	switch {
	case r.IsTag():
		return strings.TrimPrefix(r.Name, tagPrefix)
	case r.IsBranch():
		return strings.TrimPrefix(r.Name, branchPrefix)
	}
	return r.Name
}

// TagRef builds the full name of a tag.
func TagRef(name string) string { return tagPrefix + name }

// BranchRef builds the full name of a branch.
func BranchRef(name string) string { return branchPrefix + name }

// Repo is a handle to a local bare clone.
type Repo struct {
	Location string // remote URL or path the clone was made from
	Path     string // directory of the bare repository
}

// Accessor is the set of git operations used by the caches and the resolver.
//
// Implementations must be safe for concurrent use on distinct repositories.
// Operations that mutate one repository (Fetch, CreateWorktree,
// RemoveWorktree) are serialized by the callers; the source and worktree
// caches share one lock per clone for this.
type Accessor interface {
	// CloneBare creates a bare clone of location in dest.
	CloneBare(ctx context.Context, location, dest string) (*Repo, error)

	// Open returns a handle to an existing bare clone at dest.
	Open(location, dest string) (*Repo, error)

	// Fetch updates all branches and tags from the remote.
	Fetch(ctx context.Context, repo *Repo) error

	// ResolveRef resolves any revision (ref name, tag, full or abbreviated
	// commit) to a full commit id. ok is false when it does not exist.
	ResolveRef(ctx context.Context, repo *Repo, ref string) (sha string, ok bool, err error)

	// ListRefs returns HEAD, all branches and all tags, sorted by name.
	ListRefs(ctx context.Context, repo *Repo) ([]Ref, error)

	// CreateWorktree checks out sha as a detached linked worktree at dest.
	CreateWorktree(ctx context.Context, repo *Repo, sha, dest string) error

	// RemoveWorktree deletes a linked worktree and its metadata.
	RemoveWorktree(ctx context.Context, repo *Repo, dest string) error
}

// IsCommitID reports whether s looks like a full or abbreviated commit id
// (7 to 40 lower- or upper-case hex characters).
func IsCommitID(s string) bool {
	if len(s) < 7 || len(s) > 40 {
		return false
	}
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
