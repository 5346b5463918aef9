// Package version parses version specifiers and selects the ref that best
// satisfies them.
//
// # Constraints
//
// A [Constraint] is one of four kinds:
//
//   - [Unconstrained]: "", "*" or "latest"; selects the default branch (HEAD)
//   - [Exact]: a tag name, a full version such as "v1.2.0", or a commit id
//   - [Branch]: a branch name; selects refs/heads/<name>
//   - [Range]: a semver range such as "^1.0", "~1.4" or ">=1.2, <2"
//
// [Parse] infers the kind from a free-form manifest version string.
// [ParseBranch] and [ParseRev] build explicit variants for the manifest's
// branch and rev fields, which bypass inference.
//
// # Selection
//
// [Select] is a pure function of a constraint and a ref list. It never
// touches git, which keeps resolution rules testable with literal slices:
//
//	refs := []git.Ref{
//	    {Name: "refs/tags/v1.0.0", Commit: "aaa..."},
//	    {Name: "refs/tags/v1.2.0", Commit: "bbb..."},
//	    {Name: "refs/tags/v2.0.0", Commit: "ccc..."},
//	}
//	ref, _ := version.Select(version.MustParse("^1.0"), refs) // refs/tags/v1.2.0
//
// Ranges consider tags only. Tags that are not semantic versions are
// skipped. Among equal versions ("v1.2.0" and "1.2.0") the lexically
// smallest ref name wins, so selection never depends on input order.
//
// [Satisfies] re-checks a previously selected (ref, commit) pair against a
// constraint without a ref list. The resolver uses it to decide whether a
// lockfile pin can be reused.
package version
