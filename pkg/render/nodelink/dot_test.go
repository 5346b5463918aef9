package nodelink

import (
	"context"
	"strings"
	"testing"

	"github.com/matzehuels/gitpkg/pkg/dag"
	"github.com/matzehuels/gitpkg/pkg/graph"
)

func TestToDOT_Basic(t *testing.T) {
	g := dag.New(nil)
	_ = g.AddNode(dag.Node{ID: "a"})
	_ = g.AddNode(dag.Node{ID: "b"})
	_ = g.AddEdge(dag.Edge{From: "a", To: "b"})

	dot := ToDOT(g, Options{})

	if !strings.Contains(dot, "digraph G") {
		t.Error("ToDOT() output missing digraph declaration")
	}
	if !strings.Contains(dot, `"a"`) || !strings.Contains(dot, `"b"`) {
		t.Error("ToDOT() output missing nodes")
	}
	if !strings.Contains(dot, `"a" -> "b"`) {
		t.Error("ToDOT() output missing edge")
	}
}

func TestToDOT_Detailed(t *testing.T) {
	g := dag.New(nil)
	_ = g.AddNode(dag.Node{
		ID: "reviewer",
		Meta: dag.Metadata{
			graph.MetaKind:   "agents",
			graph.MetaCommit: strings.Repeat("b", 40),
			graph.MetaRef:    "refs/tags/v1.2.0",
			graph.MetaDirect: true,
		},
	})

	dot := ToDOT(g, Options{Detailed: true})

	if !strings.Contains(dot, "kind: agents") {
		t.Error("detailed output missing kind")
	}
	if !strings.Contains(dot, "commit: bbbbbbbbbbbb\\n") {
		t.Errorf("detailed output should shorten the commit:\n%s", dot)
	}
	if strings.Contains(dot, "direct:") {
		t.Error("direct flag is conveyed by style, not label")
	}
	if strings.Contains(dot, "dashed") {
		t.Error("direct node should not be dashed")
	}
}

func TestToDOT_Transitive(t *testing.T) {
	g := dag.New(nil)
	_ = g.AddNode(dag.Node{ID: "helper", Meta: dag.Metadata{graph.MetaDirect: false}})

	dot := ToDOT(g, Options{})

	if !strings.Contains(dot, "dashed") || !strings.Contains(dot, "lightgrey") {
		t.Errorf("transitive node should be dashed and grey:\n%s", dot)
	}
}

func TestFmtLabel(t *testing.T) {
	n := dag.Node{ID: "style", Meta: dag.Metadata{graph.MetaPath: "snippets/style.md"}}
	if got := fmtLabel(n, false); got != "style" {
		t.Errorf("fmtLabel(simple) = %q", got)
	}
	if got := fmtLabel(n, true); got != "style\npath: snippets/style.md" {
		t.Errorf("fmtLabel(detailed) = %q", got)
	}
	if got := fmtLabel(dag.Node{ID: "bare"}, true); got != "bare" {
		t.Errorf("fmtLabel(no meta) = %q", got)
	}
}

func TestNormalizeViewBox(t *testing.T) {
	in := []byte(`<svg width="10pt" height="20pt" viewBox="0.00 0.00 100.50 200.00" xmlns="http://www.w3.org/2000/svg"><g/></svg>`)
	out := string(normalizeViewBox(in))
	if !strings.Contains(out, `viewBox="0 0 100.50 200.00" width="100" height="200"`) {
		t.Errorf("normalizeViewBox = %s", out)
	}
	if got := normalizeViewBox([]byte("<svg>")); string(got) != "<svg>" {
		t.Errorf("no viewBox should pass through, got %s", got)
	}
}

func TestRenderSVG(t *testing.T) {
	g := dag.New(nil)
	_ = g.AddNode(dag.Node{ID: "a"})
	_ = g.AddNode(dag.Node{ID: "b"})
	_ = g.AddEdge(dag.Edge{From: "a", To: "b"})

	svg, err := RenderSVG(context.Background(), ToDOT(g, Options{}))
	if err != nil {
		t.Fatalf("RenderSVG: %v", err)
	}
	if !strings.Contains(string(svg), "<svg") {
		t.Error("output is not SVG")
	}
}
