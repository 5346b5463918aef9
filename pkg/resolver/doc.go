// Package resolver turns a manifest, and optionally a lockfile, into a
// deterministic installation plan.
//
// # Algorithm
//
// Resolution is a frontier loop over dependency requests. The first
// frontier is the manifest's dependencies in declaration order. Each
// iteration runs two phases:
//
//  1. Collection: every request contributes a (source, constraint) key.
//     Keys already resolved in this run, and requests served by a lockfile
//     pin, are skipped.
//  2. Resolution: the remaining distinct keys are resolved in parallel
//     against each source's refs (fetched once per run) with
//     [version.Select]. Results are memoized for the run.
//
// The resolved requests are added to a [graph.Builder]. New nodes are
// materialized in the worktree cache and scanned for transitive
// declarations ([resource.Extractor]); those form the next frontier. A
// request already processed is never queued again, so the loop reaches a
// fixed point even when resources declare each other.
//
// # Frozen resolution
//
// With a lockfile and without [Options.Update], a dependency whose pinned
// (ref, commit) still satisfies its manifest constraint reuses the pinned
// commit without listing refs. A pin that no longer satisfies the
// constraint is an [*errors.LockfileStaleError]; so is a missing pin when
// [Options.Locked] is set.
//
// # Determinism
//
// Parallel work only fills slices indexed by request. Nodes, the plan and
// the lockfile are assembled by ordered loops, and when several tasks fail
// the error of the first one in request order is returned. Resolving the
// same manifest against the same refs twice yields identical results.
//
// # Failure
//
// Every error is fatal. Sibling tasks of a failing task run to completion,
// but no result is returned.
package resolver
