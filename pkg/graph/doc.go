// Package graph builds the installation graph of a resolution run.
//
// Nodes are resolved resources; an edge points from a resource to a
// resource it declares as a dependency. The package sits between the
// resolver, which discovers nodes level by level, and the plan, which needs
// them in dependency order:
//
//   - [Builder]: accumulates direct and transitive nodes while resolving
//   - [Graph]: the validated, acyclic result with [Graph.Order]
//   - pkg/dag.DAG: the underlying structure used for cycles and ordering
//
// # Identity
//
// A resource is identified by its normalized source location and its path
// inside the repository. Two declarations of the same resource are merged:
//
//   - A transitive declaration of a resource that the manifest also lists
//     directly links to the direct node. The direct entry's name, tool,
//     version and install path win; this is never a conflict.
//   - Transitive-only declarations that resolve to the same commit share a
//     node. Different commits are a [errors.VersionConflictError].
//   - Two direct entries for one resource must resolve to the same commit.
//
// # Validation
//
// [Builder.Build] rejects, in order: dependency cycles
// ([errors.DependencyCycleError], full path), version conflicts and
// install path collisions ([errors.PathCollisionError]).
//
// # Install paths
//
// A node installs to its explicit target when one is set, otherwise to
// <tool dir>/<kind>/<basename>:
//
//	graph.InstallPath("claude-code", manifest.KindAgent, "agents/reviewer.md", "")
//	// .claude/agents/reviewer.md
//
// # Serialization
//
// [WriteGraph] and [MarshalGraph] emit a node-link JSON document for
// tooling; pkg/render/nodelink renders the same graph as DOT or SVG.
//
// # Concurrency
//
// A Builder is not safe for concurrent use; the resolver feeds it from a
// single goroutine between parallel phases. A built Graph is read-only.
package graph
