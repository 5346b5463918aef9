// Package pkg provides the libraries behind gitpkg, a package manager that
// installs resources straight from git repositories.
//
// # Overview
//
// A manifest (gitpkg.toml) names git sources and the resources to take from
// them. Resolution turns every version constraint into a commit, follows the
// dependencies each resource declares in its own front matter, and produces
// an installation plan plus a lockfile (gitpkg.lock) that pins the result.
//
// The packages, bottom up:
//
//  1. [errors] - Error codes and the typed errors of resolution
//  2. [git] - Git accessor over the git binary, with an in-memory fake in gittest
//  3. [cache] - Cache directory layout, key normalization and retries
//  4. [version] - Constraint parsing and version selection over refs
//  5. [manifest] - Manifest and lockfile models
//  6. [source] - Bare clones, fetched at most once per run
//  7. [worktree] - One shared checkout per (source, commit)
//  8. [resource] - Dependency declarations read from resource files
//  9. [graph] - Dependency graph, conflict and cycle detection, install order
//  10. [resolver] - The fixed-point resolver and frozen (lockfile) mode
//
// Supporting packages: [dag] and [dag/transform] for generic graph
// operations, [render/nodelink] for DOT and SVG output, [observability] for
// hooks and Prometheus metrics, and [buildinfo] for version information.
//
// # Architecture
//
// The data flow of a resolve:
//
//	gitpkg.toml (+ gitpkg.lock)
//	         ↓
//	    [resolver] level by level:
//	         ├─ [source] fetch / list refs
//	         ├─ [version] select commit
//	         ├─ [worktree] materialize commit
//	         └─ [resource] read declared dependencies
//	         ↓
//	    [graph] build, check, order
//	         ↓
//	    plan + gitpkg.lock
//
// # Quick Start
//
//	m, _ := manifest.Load("gitpkg.toml")
//	layout, _ := cache.NewLayout(cacheDir)
//	r, _ := resolver.New(git.NewCLI(nil, nil), layout, nil)
//	res, err := r.Resolve(ctx, m, nil, resolver.Options{})
//	if err != nil {
//	    return err
//	}
//	for _, p := range res.Plan {
//	    fmt.Println(p.Name, p.Commit, p.InstallPath)
//	}
package pkg
