package resolver

import (
	"context"
	stderrors "errors"
	"fmt"
	"path"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/gitpkg/pkg/cache"
	"github.com/matzehuels/gitpkg/pkg/errors"
	"github.com/matzehuels/gitpkg/pkg/git"
	"github.com/matzehuels/gitpkg/pkg/graph"
	"github.com/matzehuels/gitpkg/pkg/manifest"
	"github.com/matzehuels/gitpkg/pkg/observability"
	"github.com/matzehuels/gitpkg/pkg/resource"
	"github.com/matzehuels/gitpkg/pkg/source"
	"github.com/matzehuels/gitpkg/pkg/version"
	"github.com/matzehuels/gitpkg/pkg/worktree"
)

// Resolver runs resolutions against shared caches.
//
// The caches outlive a single run: a long-lived Resolver reuses clones,
// worktrees and parsed files, while every call to Resolve starts a new
// source run so refs are fetched at most once per call.
type Resolver struct {
	Sources   *source.Cache
	Worktrees *worktree.Cache
	Extractor *resource.Extractor
	Logger    *log.Logger
}

// New creates a Resolver with fresh caches rooted at layout.
// A nil logger uses log.Default().
func New(acc git.Accessor, layout cache.Layout, logger *log.Logger) (*Resolver, error) {
	if logger == nil {
		logger = log.Default()
	}
	extractor, err := resource.NewExtractor(resource.DefaultMemoSize, logger)
	if err != nil {
		return nil, fmt.Errorf("create extractor: %w", err)
	}
	return &Resolver{
		Sources:   source.New(acc, layout, logger),
		Worktrees: worktree.New(acc, layout, logger),
		Extractor: extractor,
		Logger:    logger,
	}, nil
}

// request is one dependency to resolve: a manifest entry or a declaration
// found in a resolved resource.
type request struct {
	name       string
	parent     string // empty for manifest entries
	kind       manifest.Kind
	src        manifest.Source // location anchored for git
	location   string          // location as written
	path       string
	constraint version.Constraint
	tool       string
	target     string

	srcKey   string
	resolved version.Resolved
	pinned   bool
}

// key identifies the (source, constraint) pair a request resolves through.
func (rq *request) key() string {
	return rq.srcKey + "|" + rq.constraint.Key()
}

// dedupKey identifies a transitive declaration across levels.
func (rq *request) dedupKey() string {
	return strings.Join([]string{rq.parent, rq.srcKey, rq.path, rq.constraint.Key(), rq.tool}, "|")
}

func (rq *request) node() graph.Node {
	return graph.Node{
		Name:       rq.name,
		Kind:       rq.kind,
		Source:     rq.src.Name,
		Location:   rq.location,
		Path:       rq.path,
		Tool:       rq.tool,
		Target:     rq.target,
		Constraint: rq.constraint,
		Resolved:   rq.resolved,
	}
}

// run holds the state of one Resolve call.
type run struct {
	*Resolver
	opts  Options
	lock  *manifest.Lockfile
	memo  map[string]version.Resolved
	nodes *graph.Builder

	// per node: the request it was created from and its worktree
	origin       map[string]*request
	materialized map[string]string
	queued       map[string]bool

	stats Stats
}

// Resolve resolves m into an installation plan. lock may be nil.
func (r *Resolver) Resolve(ctx context.Context, m *manifest.Manifest, lock *manifest.Lockfile, opts Options) (result *Result, err error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	if m == nil {
		return nil, errors.New(errors.ErrCodeInvalidManifest, "manifest is nil")
	}

	start := time.Now()
	runID := r.Sources.NewRun()
	before := r.Worktrees.Stats()
	observability.Resolve().OnResolveStart(ctx, len(m.Dependencies))
	defer func() {
		nodes := 0
		if result != nil {
			nodes = len(result.Plan)
		}
		observability.Resolve().OnResolveComplete(ctx, nodes, time.Since(start), err)
	}()

	rn := &run{
		Resolver:     r,
		opts:         opts,
		lock:         lock,
		memo:         make(map[string]version.Resolved),
		nodes:        graph.NewBuilder(),
		origin:       make(map[string]*request),
		materialized: make(map[string]string),
		queued:       make(map[string]bool),
	}
	if opts.Update {
		rn.lock = nil
	}

	frontier, err := rn.directRequests(m)
	if err != nil {
		return nil, err
	}
	r.Logger.Debug("resolution started", "run", runID, "dependencies", len(frontier))

	for len(frontier) > 0 {
		rn.stats.Levels++
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		keys, err := rn.collect(frontier)
		if err != nil {
			return nil, err
		}
		observability.Resolve().OnLevel(ctx, rn.stats.Levels, len(keys))
		if err := rn.resolveKeys(ctx, keys, frontier); err != nil {
			return nil, err
		}
		expand, err := rn.addNodes(frontier)
		if err != nil {
			return nil, err
		}
		decls, err := rn.materialize(ctx, expand)
		if err != nil {
			return nil, err
		}
		frontier, err = rn.next(expand, decls)
		if err != nil {
			return nil, err
		}
		r.Logger.Debug("level resolved", "level", rn.stats.Levels, "keys", len(keys), "new", len(expand), "next", len(frontier))
	}

	g, err := rn.nodes.Build()
	if err != nil {
		return nil, err
	}

	after := r.Worktrees.Stats()
	rn.stats.WorktreesCreated = after.Created - before.Created
	rn.stats.WorktreesReused = (after.Reused - before.Reused) + (after.Adopted - before.Adopted)
	rn.stats.Duration = time.Since(start)

	result = &Result{
		Plan:     rn.plan(g),
		Lockfile: rn.lockfile(m, g),
		Graph:    g,
		Stats:    rn.stats,
	}
	r.Logger.Info("resolved dependencies",
		"resources", len(result.Plan),
		"levels", rn.stats.Levels,
		"pinned", rn.stats.Pinned,
		"worktrees", rn.stats.WorktreesCreated,
		"duration", rn.stats.Duration)
	return result, nil
}

// =============================================================================
// Phase 1: Collection
// =============================================================================

func (rn *run) directRequests(m *manifest.Manifest) ([]*request, error) {
	out := make([]*request, 0, len(m.Dependencies))
	for _, d := range m.Dependencies {
		src, ok := m.Source(d.Source)
		if !ok {
			return nil, errors.New(errors.ErrCodeInvalidManifest, "dependency %q: unknown source %q", d.Name, d.Source)
		}
		c, err := d.Constraint()
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidVersion, err, "dependency %q", d.Name)
		}
		anchored := manifest.Source{Name: src.Name, Location: cache.Anchor(src.Location, rn.opts.BaseDir)}
		out = append(out, &request{
			name:       d.Name,
			kind:       d.Kind,
			src:        anchored,
			location:   src.Location,
			path:       cleanPath(d.Path),
			constraint: c,
			tool:       d.Tool,
			target:     d.Target,
			srcKey:     cache.SourceKey(anchored.Location),
		})
	}
	return out, nil
}

func cleanPath(p string) string {
	return path.Clean(strings.TrimPrefix(strings.TrimSpace(p), "./"))
}

// collect applies lockfile pins and memoized results, and returns the
// distinct keys left to resolve, in request order.
func (rn *run) collect(frontier []*request) ([]*request, error) {
	var keys []*request
	pending := map[string]bool{}
	for _, rq := range frontier {
		if rq.parent != "" {
			// Direct declarations win over transitive ones.
			if n, ok := rn.nodes.Lookup(rq.srcKey, rq.path); ok && n.Direct {
				rq.resolved = n.Resolved
				continue
			}
		}
		ok, err := rn.applyPin(rq)
		if err != nil {
			return nil, err
		}
		if ok {
			continue
		}
		k := rq.key()
		if res, ok := rn.memo[k]; ok {
			rq.resolved = res
			continue
		}
		if !pending[k] {
			pending[k] = true
			keys = append(keys, rq)
		}
	}
	return keys, nil
}

// applyPin reports whether rq was served by the lockfile.
func (rn *run) applyPin(rq *request) (bool, error) {
	if rn.lock == nil {
		return false, nil
	}
	var (
		pin   *manifest.LockedResource
		found bool
	)
	if rq.parent == "" {
		pin, found = rn.lock.Lookup(rq.name)
		if found && (cache.SourceKey(cache.Anchor(pin.URL, rn.opts.BaseDir)) != rq.srcKey || cleanPath(pin.Path) != rq.path) {
			// The entry now points elsewhere and is resolved as a new one.
			found = false
		}
	} else {
		pin, found = rn.lock.LookupTransitive(rq.location, rq.path)
	}

	if !found {
		if rn.opts.Locked {
			return false, &errors.LockfileStaleError{Name: rq.displayName(), Constraint: rq.constraint.String(), Reason: "missing from lockfile"}
		}
		return false, nil
	}
	if !version.Satisfies(rq.constraint, pin.Ref, pin.ResolvedCommit) {
		return false, &errors.LockfileStaleError{
			Name:       rq.displayName(),
			Constraint: rq.constraint.String(),
			Commit:     pin.ResolvedCommit,
			Reason:     "run with --update to re-resolve",
		}
	}

	rq.resolved = version.Resolved{Source: rq.srcKey, Commit: pin.ResolvedCommit, Ref: pin.Ref}
	rq.pinned = true
	rn.stats.Pinned++
	return true, nil
}

func (rq *request) displayName() string {
	if rq.parent == "" {
		return rq.name
	}
	return rq.parent + " -> " + rq.path
}

// =============================================================================
// Phase 2: Resolution
// =============================================================================

// resolveKeys resolves each distinct key in parallel and fills every
// request of the frontier.
func (rn *run) resolveKeys(ctx context.Context, keys, frontier []*request) error {
	results := make([]version.Resolved, len(keys))
	errs := make([]error, len(keys))

	var g errgroup.Group
	g.SetLimit(rn.opts.Jobs)
	for i, rq := range keys {
		g.Go(func() error {
			results[i], errs[i] = rn.resolveOne(ctx, rq)
			return nil
		})
	}
	_ = g.Wait()
	if err := firstError(errs); err != nil {
		return err
	}

	for i, rq := range keys {
		k := rq.key()
		if prev, ok := rn.memo[k]; ok && prev.Commit != results[i].Commit {
			return &errors.AmbiguousVersionError{
				Source:     rq.src.Name,
				Constraint: rq.constraint.String(),
				Commits:    sortedPair(prev.Commit, results[i].Commit),
			}
		}
		rn.memo[k] = results[i]
		rn.stats.Resolved++
	}
	for _, rq := range frontier {
		if res, ok := rn.memo[rq.key()]; ok && !rq.pinned && rq.resolved.Commit == "" {
			rq.resolved = res
		}
	}
	return nil
}

func (rn *run) resolveOne(ctx context.Context, rq *request) (version.Resolved, error) {
	refs, err := rn.Sources.Refs(ctx, rq.src)
	if err != nil {
		return version.Resolved{}, err
	}
	ref, err := version.Select(rq.constraint, refs)
	if err == nil {
		return version.Resolved{Source: rq.srcKey, Commit: ref.Commit, Ref: ref.Name}, nil
	}

	var nm *errors.NoMatchingVersionError
	if stderrors.As(err, &nm) && rq.constraint.IsCommit() {
		// A commit that is not the tip of any ref.
		commit, ok, rerr := rn.Sources.ResolveCommit(ctx, rq.src, rq.constraint.Raw)
		if rerr != nil {
			return version.Resolved{}, rerr
		}
		if ok {
			return version.Resolved{Source: rq.srcKey, Commit: commit}, nil
		}
	}

	var amb *errors.AmbiguousVersionError
	switch {
	case stderrors.As(err, &nm):
		nm.Source = rq.src.Name
	case stderrors.As(err, &amb):
		amb.Source = rq.src.Name
	}
	return version.Resolved{}, err
}

func firstError(errs []error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func sortedPair(a, b string) []string {
	s := []string{a, b}
	sort.Strings(s)
	return s
}

// =============================================================================
// Phase 3: Graph extraction
// =============================================================================

// addNodes records the frontier in the graph and returns the names of the
// nodes it created. Requests for resources already in the graph only add
// edges.
func (rn *run) addNodes(frontier []*request) ([]string, error) {
	var created []string
	for _, rq := range frontier {
		n := rq.node()
		if rq.parent == "" {
			if err := rn.nodes.AddDirect(n); err != nil {
				return nil, err
			}
			rn.origin[rq.name] = rq
			created = append(created, rq.name)
			continue
		}
		_, existed := rn.nodes.Lookup(rq.srcKey, rq.path)
		name, err := rn.nodes.AddTransitive(rq.parent, n)
		if err != nil {
			return nil, err
		}
		if !existed {
			rn.origin[name] = rq
			created = append(created, name)
		}
	}
	return created, nil
}

// materialize checks out every new node and reads its declarations.
func (rn *run) materialize(ctx context.Context, names []string) ([][]resource.Declaration, error) {
	paths := make([]string, len(names))
	decls := make([][]resource.Declaration, len(names))
	errs := make([]error, len(names))

	var g errgroup.Group
	g.SetLimit(rn.opts.Jobs)
	for i, name := range names {
		rq := rn.origin[name]
		g.Go(func() error {
			paths[i], decls[i], errs[i] = rn.materializeOne(ctx, rq)
			return nil
		})
	}
	_ = g.Wait()
	if err := firstError(errs); err != nil {
		return nil, err
	}
	for i, name := range names {
		rn.materialized[name] = paths[i]
	}
	return decls, nil
}

func (rn *run) materializeOne(ctx context.Context, rq *request) (string, []resource.Declaration, error) {
	repo, err := rn.Sources.Ensure(ctx, rq.src, rq.resolved.Commit)
	if err != nil {
		return "", nil, err
	}
	wt, err := rn.Worktrees.Materialize(ctx, repo, rq.resolved.Commit)
	if err != nil {
		return "", nil, err
	}
	decls, err := rn.Extractor.Extract(ctx, rq.src.Location, rq.resolved.Commit, wt, rq.path)
	if err != nil {
		return "", nil, err
	}
	return wt, decls, nil
}

// next turns the declarations of the given nodes into the next frontier.
// Declarations inherit the declaring node's source, and its version and
// tool when they leave them unset.
func (rn *run) next(names []string, decls [][]resource.Declaration) ([]*request, error) {
	var out []*request
	for i, name := range names {
		parent := rn.origin[name]
		for _, d := range decls[i] {
			c := parent.constraint
			if d.Version != "" {
				var err error
				if c, err = version.Parse(d.Version); err != nil {
					return nil, errors.Wrap(errors.ErrCodeInvalidVersion, err, "%s declares %s", name, d.Path)
				}
			}
			tool := d.Tool
			if tool == "" {
				tool = parent.tool
			}
			rq := &request{
				name:       graph.DefaultName(d.Path),
				parent:     name,
				kind:       d.Kind,
				src:        parent.src,
				location:   parent.location,
				path:       d.Path,
				constraint: c,
				tool:       tool,
				srcKey:     parent.srcKey,
			}
			if k := rq.dedupKey(); !rn.queued[k] {
				rn.queued[k] = true
				out = append(out, rq)
			}
		}
	}
	return out, nil
}

// =============================================================================
// Output
// =============================================================================

func (rn *run) plan(g *graph.Graph) []PlanEntry {
	order := g.Order()
	plan := make([]PlanEntry, 0, len(order))
	for _, n := range order {
		plan = append(plan, PlanEntry{
			Name:             n.Name,
			Kind:             n.Kind,
			Source:           n.Source,
			Location:         n.Location,
			Path:             n.Path,
			Commit:           n.Resolved.Commit,
			Ref:              n.Resolved.Ref,
			MaterializedPath: rn.materialized[n.Name],
			InstallPath:      n.InstallPath,
			DeclaredBy:       n.DeclaredBy,
			Direct:           n.Direct,
		})
	}
	return plan
}

// lockfile lists sources in manifest order, direct resources in manifest
// order and transitive resources in plan order.
func (rn *run) lockfile(m *manifest.Manifest, g *graph.Graph) *manifest.Lockfile {
	lf := &manifest.Lockfile{Version: manifest.LockfileVersion}
	for _, s := range m.Sources {
		lf.Sources = append(lf.Sources, manifest.LockedSource{Name: s.Name, URL: s.Location})
	}
	var transitive []manifest.LockedResource
	for _, n := range g.Order() {
		if !n.Direct {
			transitive = append(transitive, locked(g, n))
		}
	}
	for _, n := range g.Nodes() {
		if n.Direct {
			lf.Resources = append(lf.Resources, locked(g, n))
		}
	}
	lf.Resources = append(lf.Resources, transitive...)
	return lf
}

func locked(g *graph.Graph, n *graph.Node) manifest.LockedResource {
	v := ""
	if n.Constraint.Kind != version.Unconstrained {
		v = n.Constraint.Raw
	}
	return manifest.LockedResource{
		Name:           n.Name,
		Kind:           string(n.Kind),
		Source:         n.Source,
		URL:            n.Location,
		Path:           n.Path,
		Version:        v,
		Ref:            n.Resolved.Ref,
		ResolvedCommit: n.Resolved.Commit,
		Tool:           n.Tool,
		InstallPath:    n.InstallPath,
		DeclaredBy:     n.DeclaredBy,
		Dependencies:   slices.Clone(g.Dependencies(n.Name)),
	}
}
