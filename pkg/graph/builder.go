package graph

import (
	"fmt"
	"slices"

	"github.com/matzehuels/gitpkg/pkg/dag"
	"github.com/matzehuels/gitpkg/pkg/errors"
)

// Builder accumulates nodes during resolution. Direct nodes must all be
// added before the first transitive node.
type Builder struct {
	nodes  map[string]*Node
	decl   []string
	edges  [][2]string
	direct map[string][]string // resource id -> direct node names
	trans  map[string]string   // resource id -> transitive node name

	// occurrences of transitive-only resources, for conflict reporting
	seen map[string][]occurrence
	ids  []string // resource ids in first-seen order

	sealed bool
}

type occurrence struct {
	parent string
	node   Node
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{
		nodes:  make(map[string]*Node),
		direct: make(map[string][]string),
		trans:  make(map[string]string),
		seen:   make(map[string][]occurrence),
	}
}

// AddDirect adds a node declared in the manifest. Its install path is
// computed when not already set.
func (b *Builder) AddDirect(n Node) error {
	if b.sealed {
		return errors.New(errors.ErrCodeInternal, "direct node %q added after transitive nodes", n.Name)
	}
	if n.Name == "" {
		n.Name = DefaultName(n.Path)
	}
	if _, dup := b.nodes[n.Name]; dup {
		return errors.New(errors.ErrCodeInvalidManifest, "duplicate dependency %q", n.Name)
	}
	n.Direct = true
	n.DeclaredBy = ""
	if n.InstallPath == "" {
		n.InstallPath = InstallPath(n.Tool, n.Kind, n.Path, n.Target)
	}
	id := n.ResourceID()
	if _, ok := b.direct[id]; !ok {
		b.ids = append(b.ids, id)
	}
	b.direct[id] = append(b.direct[id], n.Name)
	b.add(&n)
	return nil
}

// AddTransitive records that parent declares n and returns the name of
// the node that now represents the resource. When the resource is already
// in the graph the existing node is returned and n is only recorded for
// conflict checking.
func (b *Builder) AddTransitive(parent string, n Node) (string, error) {
	if _, ok := b.nodes[parent]; !ok {
		return "", errors.New(errors.ErrCodeInternal, "unknown parent %q", parent)
	}
	b.sealed = true
	n.Direct = false
	n.DeclaredBy = parent
	id := n.ResourceID()

	if names, ok := b.direct[id]; ok {
		b.link(parent, names[0])
		return names[0], nil
	}

	if _, ok := b.seen[id]; !ok {
		b.ids = append(b.ids, id)
	}
	b.seen[id] = append(b.seen[id], occurrence{parent: parent, node: n})

	if name, ok := b.trans[id]; ok {
		b.link(parent, name)
		return name, nil
	}

	n.Name = b.uniqueName(n)
	if n.InstallPath == "" {
		n.InstallPath = InstallPath(n.Tool, n.Kind, n.Path, n.Target)
	}
	b.trans[id] = n.Name
	b.add(&n)
	b.link(parent, n.Name)
	return n.Name, nil
}

// Has reports whether a node name is taken.
func (b *Builder) Has(name string) bool {
	_, ok := b.nodes[name]
	return ok
}

// Lookup returns the node representing a resource, if any.
func (b *Builder) Lookup(sourceKey, path string) (*Node, bool) {
	id := ResourceID(sourceKey, path)
	if names, ok := b.direct[id]; ok {
		return b.nodes[names[0]], true
	}
	if name, ok := b.trans[id]; ok {
		return b.nodes[name], true
	}
	return nil, false
}

func (b *Builder) add(n *Node) {
	b.nodes[n.Name] = n
	b.decl = append(b.decl, n.Name)
}

func (b *Builder) link(from, to string) {
	e := [2]string{from, to}
	if !slices.Contains(b.edges, e) {
		b.edges = append(b.edges, e)
	}
}

// uniqueName keeps the default name when free, otherwise qualifies it by
// kind and then by a counter.
func (b *Builder) uniqueName(n Node) string {
	name := n.Name
	if name == "" {
		name = DefaultName(n.Path)
	}
	if !b.Has(name) {
		return name
	}
	qualified := fmt.Sprintf("%s-%s", name, n.Kind)
	if !b.Has(qualified) {
		return qualified
	}
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s-%d", qualified, i)
		if !b.Has(candidate) {
			return candidate
		}
	}
}

// Build validates the accumulated nodes and returns the graph.
func (b *Builder) Build() (*Graph, error) {
	d := dag.New(nil)
	for _, name := range b.decl {
		if err := d.AddNode(dag.Node{ID: name}); err != nil {
			return nil, fmt.Errorf("add node %s: %w", name, err)
		}
	}
	for _, e := range b.edges {
		if err := d.AddEdge(dag.Edge{From: e[0], To: e[1]}); err != nil {
			return nil, fmt.Errorf("add edge %s -> %s: %w", e[0], e[1], err)
		}
	}

	if cycle := d.FindCycle(); cycle != nil {
		return nil, &errors.DependencyCycleError{Path: cycle}
	}
	if err := b.checkConflicts(); err != nil {
		return nil, err
	}
	if err := b.checkCollisions(); err != nil {
		return nil, err
	}

	order, err := d.TopoSort()
	if err != nil {
		return nil, err
	}
	return &Graph{
		dag:   d,
		nodes: b.nodes,
		order: order,
		decl:  slices.Clone(b.decl),
	}, nil
}

func (b *Builder) checkConflicts() error {
	for _, id := range b.ids {
		var contributors []*Node
		if names, ok := b.direct[id]; ok {
			for _, name := range names {
				contributors = append(contributors, b.nodes[name])
			}
		} else {
			for i := range b.seen[id] {
				occ := b.seen[id][i].node
				occ.Name = b.trans[id]
				if occ.DeclaredBy != "" {
					occ.Name = occ.DeclaredBy + " -> " + occ.Name
				}
				contributors = append(contributors, &occ)
			}
		}

		commits := map[string]bool{}
		for _, n := range contributors {
			commits[n.Resolved.Commit] = true
		}
		if len(commits) < 2 {
			continue
		}
		versions := make([]string, len(contributors))
		for i, n := range contributors {
			versions[i] = n.label()
		}
		return &errors.VersionConflictError{Resource: displayID(contributors[0]), Versions: versions}
	}
	return nil
}

func (b *Builder) checkCollisions() error {
	claimed := map[string][]string{}
	var paths []string
	for _, name := range b.decl {
		p := b.nodes[name].InstallPath
		if _, ok := claimed[p]; !ok {
			paths = append(paths, p)
		}
		claimed[p] = append(claimed[p], name)
	}
	for _, p := range paths {
		if len(claimed[p]) > 1 {
			return &errors.PathCollisionError{Path: p, Nodes: claimed[p]}
		}
	}
	return nil
}

func displayID(n *Node) string {
	src := n.Source
	if src == "" {
		src = n.Resolved.Source
	}
	return src + ":" + n.Path
}
