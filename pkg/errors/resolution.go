package errors

import (
	"fmt"
	"strings"
)

// GitError reports a failed git subprocess or an unparseable git output.
type GitError struct {
	Op     string // git operation, e.g. "clone", "fetch", "worktree add"
	Repo   string // repository path or location the command ran against
	Ref    string // ref, commit or path the operation targeted (optional)
	Output string // trimmed combined output of the command
	Err    error
}

func (e *GitError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "git %s", e.Op)
	if e.Ref != "" {
		fmt.Fprintf(&b, " %s", e.Ref)
	}
	if e.Repo != "" {
		fmt.Fprintf(&b, " (%s)", e.Repo)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if e.Output != "" {
		fmt.Fprintf(&b, ": %s", e.Output)
	}
	return b.String()
}

func (e *GitError) Unwrap() error { return e.Err }

func (e *GitError) Code() Code { return ErrCodeGit }

// SourceUnreachableError is returned when a source cannot be cloned or
// fetched after the single transient retry.
type SourceUnreachableError struct {
	Source   string
	Location string
	Err      error
}

func (e *SourceUnreachableError) Error() string {
	return fmt.Sprintf("source %q (%s) unreachable: %v", e.Source, e.Location, e.Err)
}

func (e *SourceUnreachableError) Unwrap() error { return e.Err }

func (e *SourceUnreachableError) Code() Code { return ErrCodeSourceUnreachable }

// NoMatchingVersionError is returned when no ref of a source satisfies a
// constraint. Nearest lists the closest available refs for diagnostics.
type NoMatchingVersionError struct {
	Source     string
	Constraint string
	Nearest    []string
}

func (e *NoMatchingVersionError) Error() string {
	msg := fmt.Sprintf("no version of source %q matches %q", e.Source, e.Constraint)
	if len(e.Nearest) > 0 {
		msg += fmt.Sprintf(" (available: %s)", strings.Join(e.Nearest, ", "))
	}
	return msg
}

func (e *NoMatchingVersionError) Code() Code { return ErrCodeNoMatchingVersion }

// AmbiguousVersionError signals an internal invariant violation: one
// (source, constraint) pair produced two different commits.
type AmbiguousVersionError struct {
	Source     string
	Constraint string
	Commits    []string
}

func (e *AmbiguousVersionError) Error() string {
	return fmt.Sprintf("internal: constraint %q on source %q resolved to several commits: %s",
		e.Constraint, e.Source, strings.Join(e.Commits, ", "))
}

func (e *AmbiguousVersionError) Code() Code { return ErrCodeAmbiguousVersion }

// DependencyCycleError lists the full cycle, first node repeated at the end.
type DependencyCycleError struct {
	Path []string
}

func (e *DependencyCycleError) Error() string {
	return "dependency cycle: " + strings.Join(e.Path, " -> ")
}

func (e *DependencyCycleError) Code() Code { return ErrCodeDependencyCycle }

// VersionConflictError is returned when one logical resource resolves to
// incompatible commits. Versions holds one "name@commit (ref)" entry per
// contributing node.
type VersionConflictError struct {
	Resource string
	Versions []string
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("version conflict for %s: %s", e.Resource, strings.Join(e.Versions, ", "))
}

func (e *VersionConflictError) Code() Code { return ErrCodeVersionConflict }

// PathCollisionError is returned when distinct nodes share an install path.
type PathCollisionError struct {
	Path  string
	Nodes []string
}

func (e *PathCollisionError) Error() string {
	return fmt.Sprintf("install path %q claimed by %s", e.Path, strings.Join(e.Nodes, ", "))
}

func (e *PathCollisionError) Code() Code { return ErrCodePathCollision }

// WorktreeCreationError is fatal for every dependent of the commit.
type WorktreeCreationError struct {
	Source string
	Commit string
	Path   string
	Err    error
}

func (e *WorktreeCreationError) Error() string {
	return fmt.Sprintf("create worktree for %s@%s at %s: %v", e.Source, e.Commit, e.Path, e.Err)
}

func (e *WorktreeCreationError) Unwrap() error { return e.Err }

func (e *WorktreeCreationError) Code() Code { return ErrCodeWorktreeCreationFailed }

// LockfileStaleError is returned in frozen mode when a pinned commit no
// longer satisfies the manifest, or when a required pin is missing.
type LockfileStaleError struct {
	Name       string
	Constraint string
	Commit     string
	Reason     string
}

func (e *LockfileStaleError) Error() string {
	if e.Commit == "" {
		return fmt.Sprintf("lockfile stale for %q: %s", e.Name, e.Reason)
	}
	return fmt.Sprintf("lockfile stale for %q: pinned %s does not satisfy %q: %s",
		e.Name, e.Commit, e.Constraint, e.Reason)
}

func (e *LockfileStaleError) Code() Code { return ErrCodeLockfileStale }
