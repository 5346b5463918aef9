package graph

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/matzehuels/gitpkg/pkg/errors"
	"github.com/matzehuels/gitpkg/pkg/manifest"
	"github.com/matzehuels/gitpkg/pkg/version"
)

const (
	repo  = "https://github.com/org/resources"
	other = "https://github.com/org/other"
)

func sha(c byte) string { return strings.Repeat(string(c), 40) }

func node(name string, kind manifest.Kind, path string, commit byte) Node {
	return Node{
		Name:     name,
		Kind:     kind,
		Source:   "community",
		Location: repo,
		Path:     path,
		Resolved: version.Resolved{Source: repo, Commit: sha(commit), Ref: "refs/tags/v1.0.0"},
	}
}

func names(nodes []*Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Name
	}
	return out
}

func TestInstallPath(t *testing.T) {
	tests := []struct {
		tool, path, target string
		kind               manifest.Kind
		want               string
	}{
		{"", "agents/reviewer.md", "", manifest.KindAgent, ".claude/agents/reviewer.md"},
		{"claude-code", "x/y/style.md", "", manifest.KindSnippet, ".claude/snippets/style.md"},
		{"opencode", "cmd.md", "", manifest.KindCommand, ".opencode/commands/cmd.md"},
		{"agpm", "servers/db.json", "", manifest.KindMCPServer, ".agpm/mcp-servers/db.json"},
		{"opencode", "a.md", "docs/./a.md", manifest.KindAgent, "docs/a.md"},
	}
	for _, tt := range tests {
		if got := InstallPath(tt.tool, tt.kind, tt.path, tt.target); got != tt.want {
			t.Errorf("InstallPath(%q, %s, %q, %q) = %q, want %q", tt.tool, tt.kind, tt.path, tt.target, got, tt.want)
		}
	}
}

func TestDefaultName(t *testing.T) {
	for in, want := range map[string]string{
		"agents/reviewer.md": "reviewer",
		"hooks/pre.json":     "pre",
		"scripts/run":        "run",
		".hidden":            ".hidden",
	} {
		if got := DefaultName(in); got != want {
			t.Errorf("DefaultName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBuildOrder(t *testing.T) {
	b := NewBuilder()
	mustDirect(t, b, node("app", manifest.KindAgent, "agents/app.md", 'a'))
	mustDirect(t, b, node("solo", manifest.KindSnippet, "snippets/solo.md", 'a'))
	lib := mustTransitive(t, b, "app", node("", manifest.KindSnippet, "snippets/lib.md", 'a'))
	mustTransitive(t, b, lib, node("", manifest.KindSnippet, "snippets/base.md", 'a'))

	g, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got, want := names(g.Order()), []string{"solo", "base", "lib", "app"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Order = %v, want %v", got, want)
	}
	if got, want := names(g.Nodes()), []string{"app", "solo", "lib", "base"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Nodes = %v, want %v", got, want)
	}
	n, _ := g.Node("base")
	if n.DeclaredBy != "lib" || n.Direct || n.InstallPath != ".claude/snippets/base.md" {
		t.Errorf("base = %+v", n)
	}
	if deps := g.Dependencies("app"); !reflect.DeepEqual(deps, []string{"lib"}) {
		t.Errorf("Dependencies(app) = %v", deps)
	}
}

func TestOrderPlacesDependenciesFirst(t *testing.T) {
	b := NewBuilder()
	mustDirect(t, b, node("a", manifest.KindAgent, "a.md", 'a'))
	mustDirect(t, b, node("b", manifest.KindAgent, "b.md", 'a'))
	c := mustTransitive(t, b, "a", node("", manifest.KindSnippet, "c.md", 'a'))
	mustTransitive(t, b, "b", node("", manifest.KindSnippet, "c.md", 'a'))
	mustTransitive(t, b, c, node("", manifest.KindSnippet, "d.md", 'a'))

	g, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	pos := map[string]int{}
	for i, n := range g.Order() {
		pos[n.Name] = i
	}
	for _, n := range g.Nodes() {
		for _, dep := range g.Dependencies(n.Name) {
			if pos[dep] >= pos[n.Name] {
				t.Errorf("%s ordered before its dependency %s", n.Name, dep)
			}
		}
	}
	if got := g.Dependents("c"); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("Dependents(c) = %v", got)
	}
}

func TestDirectWinsOverTransitive(t *testing.T) {
	b := NewBuilder()
	direct := node("my-style", manifest.KindSnippet, "snippets/style.md", 'a')
	direct.Tool = "opencode"
	mustDirect(t, b, direct)
	mustDirect(t, b, node("app", manifest.KindAgent, "agents/app.md", 'a'))

	// Different commit: still linked to the direct node, no conflict.
	name := mustTransitive(t, b, "app", node("", manifest.KindSnippet, "./snippets/style.md", 'b'))
	if name != "my-style" {
		t.Errorf("AddTransitive = %q, want my-style", name)
	}
	g, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if g.Len() != 2 {
		t.Errorf("Len = %d, want 2", g.Len())
	}
	n, _ := g.Node("my-style")
	if n.Resolved.Commit != sha('a') || n.InstallPath != ".opencode/snippets/style.md" {
		t.Errorf("direct customizations lost: %+v", n)
	}
}

func TestTransitiveConflict(t *testing.T) {
	b := NewBuilder()
	mustDirect(t, b, node("a", manifest.KindAgent, "a.md", 'a'))
	mustDirect(t, b, node("b", manifest.KindAgent, "b.md", 'a'))
	mustTransitive(t, b, "a", node("", manifest.KindSnippet, "shared.md", 'a'))
	mustTransitive(t, b, "b", node("", manifest.KindSnippet, "shared.md", 'c'))

	_, err := b.Build()
	var vc *errors.VersionConflictError
	if !stderrors.As(err, &vc) {
		t.Fatalf("err = %v, want VersionConflictError", err)
	}
	if vc.Resource != "community:shared.md" || len(vc.Versions) != 2 {
		t.Errorf("conflict = %+v", vc)
	}
	if !strings.HasPrefix(vc.Versions[0], "a -> shared@") || !strings.HasPrefix(vc.Versions[1], "b -> shared@") {
		t.Errorf("contributors = %v", vc.Versions)
	}
}

func TestDirectConflict(t *testing.T) {
	b := NewBuilder()
	one := node("one", manifest.KindAgent, "agents/x.md", 'a')
	two := node("two", manifest.KindAgent, "agents/x.md", 'b')
	two.Target = "alt/x.md"
	mustDirect(t, b, one)
	mustDirect(t, b, two)
	if _, err := b.Build(); !errors.Is(err, errors.ErrCodeVersionConflict) {
		t.Errorf("err = %v, want VERSION_CONFLICT", err)
	}
}

func TestSameResourceDifferentSources(t *testing.T) {
	b := NewBuilder()
	mustDirect(t, b, node("a", manifest.KindAgent, "a.md", 'a'))
	x := node("", manifest.KindSnippet, "s.md", 'b')
	y := node("", manifest.KindSnippet, "s.md", 'c')
	y.Resolved.Source = other
	y.Target = "other/s.md"
	first := mustTransitive(t, b, "a", x)
	second := mustTransitive(t, b, "a", y)
	if first == second {
		t.Fatalf("distinct resources share node %q", first)
	}
	if second != "s-snippets" {
		t.Errorf("disambiguated name = %q", second)
	}
	if _, err := b.Build(); err != nil {
		t.Errorf("Build: %v", err)
	}
}

func TestPathCollision(t *testing.T) {
	b := NewBuilder()
	mustDirect(t, b, node("x", manifest.KindAgent, "one/helper.md", 'a'))
	mustDirect(t, b, node("y", manifest.KindAgent, "two/helper.md", 'a'))
	_, err := b.Build()
	var pc *errors.PathCollisionError
	if !stderrors.As(err, &pc) {
		t.Fatalf("err = %v, want PathCollisionError", err)
	}
	if pc.Path != ".claude/agents/helper.md" || !reflect.DeepEqual(pc.Nodes, []string{"x", "y"}) {
		t.Errorf("collision = %+v", pc)
	}
}

func TestCycle(t *testing.T) {
	b := NewBuilder()
	mustDirect(t, b, node("a", manifest.KindAgent, "a.md", 'a'))
	bb := mustTransitive(t, b, "a", node("", manifest.KindAgent, "b.md", 'a'))
	cc := mustTransitive(t, b, bb, node("", manifest.KindAgent, "c.md", 'a'))
	mustTransitive(t, b, cc, node("", manifest.KindAgent, "a.md", 'a'))

	_, err := b.Build()
	var dc *errors.DependencyCycleError
	if !stderrors.As(err, &dc) {
		t.Fatalf("err = %v, want DependencyCycleError", err)
	}
	if want := []string{"a", "b", "c", "a"}; !reflect.DeepEqual(dc.Path, want) {
		t.Errorf("cycle = %v, want %v", dc.Path, want)
	}
}

func TestSelfDependency(t *testing.T) {
	b := NewBuilder()
	mustDirect(t, b, node("a", manifest.KindAgent, "a.md", 'a'))
	mustTransitive(t, b, "a", node("", manifest.KindAgent, "a.md", 'a'))
	if _, err := b.Build(); !errors.Is(err, errors.ErrCodeDependencyCycle) {
		t.Errorf("err = %v, want DEPENDENCY_CYCLE", err)
	}
}

func TestBuilderMisuse(t *testing.T) {
	b := NewBuilder()
	mustDirect(t, b, node("a", manifest.KindAgent, "a.md", 'a'))
	if err := b.AddDirect(node("a", manifest.KindAgent, "b.md", 'a')); err == nil {
		t.Error("duplicate direct name accepted")
	}
	if _, err := b.AddTransitive("missing", node("", manifest.KindAgent, "c.md", 'a')); err == nil {
		t.Error("unknown parent accepted")
	}
	mustTransitive(t, b, "a", node("", manifest.KindAgent, "c.md", 'a'))
	if err := b.AddDirect(node("late", manifest.KindAgent, "d.md", 'a')); err == nil {
		t.Error("direct node accepted after transitive nodes")
	}
	if n, ok := b.Lookup(repo, "./c.md"); !ok || n.Name != "c" {
		t.Errorf("Lookup = %v, %v", n, ok)
	}
}

func TestWriteGraph(t *testing.T) {
	b := NewBuilder()
	mustDirect(t, b, node("app", manifest.KindAgent, "agents/app.md", 'a'))
	mustTransitive(t, b, "app", node("", manifest.KindSnippet, "snippets/lib.md", 'b'))
	g, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}

	data, err := MarshalGraph(g)
	if err != nil {
		t.Fatal(err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(doc.Nodes) != 2 || doc.Nodes[0].ID != "lib" || doc.Nodes[0].DeclaredBy != "app" {
		t.Errorf("nodes = %+v", doc.Nodes)
	}
	if !reflect.DeepEqual(doc.Edges, []DocumentEdge{{From: "app", To: "lib"}}) {
		t.Errorf("edges = %+v", doc.Edges)
	}

	path := filepath.Join(t.TempDir(), "graph.json")
	if err := WriteGraphFile(g, path); err != nil {
		t.Fatal(err)
	}
	onDisk, _ := os.ReadFile(path)
	if !bytes.Equal(onDisk, data) {
		t.Error("WriteGraphFile and MarshalGraph differ")
	}
}

func TestDAGCopy(t *testing.T) {
	b := NewBuilder()
	mustDirect(t, b, node("app", manifest.KindAgent, "agents/app.md", 'a'))
	mustTransitive(t, b, "app", node("", manifest.KindSnippet, "snippets/lib.md", 'b'))
	g, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	d := g.DAG()
	d.RemoveEdge("app", "lib")
	if len(g.Dependencies("app")) != 1 {
		t.Error("DAG() must return a copy")
	}
	n, _ := d.Node("lib")
	if n.Meta[MetaCommit] != sha('b') || n.Meta[MetaKind] != "snippets" {
		t.Errorf("meta = %v", n.Meta)
	}
}

func mustDirect(t *testing.T, b *Builder, n Node) {
	t.Helper()
	if err := b.AddDirect(n); err != nil {
		t.Fatalf("AddDirect(%s): %v", n.Name, err)
	}
}

func mustTransitive(t *testing.T, b *Builder, parent string, n Node) string {
	t.Helper()
	name, err := b.AddTransitive(parent, n)
	if err != nil {
		t.Fatalf("AddTransitive(%s, %s): %v", parent, n.Path, err)
	}
	return name
}
