package graph

import (
	"path"
	"strings"

	"github.com/matzehuels/gitpkg/pkg/dag"
	"github.com/matzehuels/gitpkg/pkg/manifest"
	"github.com/matzehuels/gitpkg/pkg/version"
)

// Node is one resolved resource.
type Node struct {
	Name        string
	Kind        manifest.Kind
	Source      string // source name as declared in the manifest
	Location    string // source location as declared in the manifest
	Path        string // repository-root relative
	Tool        string
	Target      string
	Constraint  version.Constraint
	Resolved    version.Resolved
	InstallPath string
	DeclaredBy  string // parent node name, empty for direct nodes
	Direct      bool
}

// ResourceID identifies the logical resource independent of the name or
// the commit it resolved to.
func (n *Node) ResourceID() string {
	return ResourceID(n.Resolved.Source, n.Path)
}

// ResourceID joins a normalized source key and a repository path.
func ResourceID(sourceKey, p string) string {
	return sourceKey + "//" + path.Clean(strings.TrimPrefix(p, "./"))
}

// Metadata keys set on exported DAG nodes.
const (
	MetaKind        = "kind"
	MetaSource      = "source"
	MetaPath        = "path"
	MetaCommit      = "commit"
	MetaRef         = "ref"
	MetaInstallPath = "install_path"
	MetaDirect      = "direct"
)

func (n *Node) meta() dag.Metadata {
	m := dag.Metadata{
		MetaKind:        string(n.Kind),
		MetaSource:      n.Source,
		MetaPath:        n.Path,
		MetaCommit:      n.Resolved.Commit,
		MetaInstallPath: n.InstallPath,
		MetaDirect:      n.Direct,
	}
	if n.Resolved.Ref != "" {
		m[MetaRef] = n.Resolved.Ref
	}
	return m
}

// label renders a node for conflict messages.
func (n *Node) label() string {
	s := n.Name + "@" + shortCommit(n.Resolved.Commit)
	if n.Resolved.Ref != "" {
		s += " (" + n.Resolved.Ref + ")"
	}
	return s
}

func shortCommit(sha string) string {
	if len(sha) > 12 {
		return sha[:12]
	}
	return sha
}

// InstallPath computes where a resource installs. An explicit target wins.
func InstallPath(tool string, kind manifest.Kind, resourcePath, target string) string {
	if target != "" {
		return path.Clean(target)
	}
	if tool == "" {
		tool = manifest.DefaultTool
	}
	dir, ok := manifest.ToolDir(tool)
	if !ok {
		dir = "." + tool
	}
	return path.Join(dir, string(kind), path.Base(resourcePath))
}

// DefaultName derives a node name from a resource path: the basename
// without its extension.
func DefaultName(resourcePath string) string {
	base := path.Base(resourcePath)
	if ext := path.Ext(base); ext != "" && ext != base {
		base = strings.TrimSuffix(base, ext)
	}
	return base
}

// Graph is a validated, acyclic installation graph.
type Graph struct {
	dag   *dag.DAG
	nodes map[string]*Node
	order []string
	decl  []string
}

// Node returns a node by name.
func (g *Graph) Node(name string) (*Node, bool) {
	n, ok := g.nodes[name]
	return n, ok
}

// Nodes returns nodes in declaration order: direct nodes as listed in the
// manifest, then transitive nodes as discovered.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, len(g.decl))
	for i, name := range g.decl {
		out[i] = g.nodes[name]
	}
	return out
}

// Order returns nodes topologically sorted: every node appears after all of
// its dependencies. Ties follow declaration order.
func (g *Graph) Order() []*Node {
	out := make([]*Node, len(g.order))
	for i, name := range g.order {
		out[i] = g.nodes[name]
	}
	return out
}

// Dependencies returns the names a node depends on, in declaration order.
func (g *Graph) Dependencies(name string) []string {
	return g.dag.Children(name)
}

// Dependents returns the names depending on a node.
func (g *Graph) Dependents(name string) []string {
	return g.dag.Parents(name)
}

// DAG returns a copy of the graph for rendering and transforms. Node
// metadata carries the kind, source, commit, ref and install path.
func (g *Graph) DAG() *dag.DAG {
	out := dag.New(nil)
	for _, n := range g.Nodes() {
		_ = out.AddNode(dag.Node{ID: n.Name, Meta: n.meta()})
	}
	for _, e := range g.dag.Edges() {
		_ = out.AddEdge(dag.Edge{From: e.From, To: e.To})
	}
	return out
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.decl)
}
