package graph

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Document is the node-link JSON form of a Graph.
type Document struct {
	Nodes []DocumentNode `json:"nodes"`
	Edges []DocumentEdge `json:"edges"`
}

// DocumentNode is one node of a Document.
type DocumentNode struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	Source      string `json:"source"`
	Path        string `json:"path"`
	Constraint  string `json:"constraint"`
	Commit      string `json:"commit"`
	Ref         string `json:"ref,omitempty"`
	InstallPath string `json:"install_path"`
	DeclaredBy  string `json:"declared_by,omitempty"`
	Direct      bool   `json:"direct,omitempty"`
}

// DocumentEdge points from a dependent to its dependency.
type DocumentEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// =============================================================================
// Graph Serialization API
// =============================================================================

// ToDocument converts a graph to its serialized form. Nodes are in
// dependency order.
func ToDocument(g *Graph) Document {
	doc := Document{Nodes: []DocumentNode{}, Edges: []DocumentEdge{}}
	for _, n := range g.Order() {
		doc.Nodes = append(doc.Nodes, DocumentNode{
			ID:          n.Name,
			Kind:        string(n.Kind),
			Source:      n.Source,
			Path:        n.Path,
			Constraint:  n.Constraint.String(),
			Commit:      n.Resolved.Commit,
			Ref:         n.Resolved.Ref,
			InstallPath: n.InstallPath,
			DeclaredBy:  n.DeclaredBy,
			Direct:      n.Direct,
		})
	}
	for _, n := range g.Nodes() {
		for _, dep := range g.Dependencies(n.Name) {
			doc.Edges = append(doc.Edges, DocumentEdge{From: n.Name, To: dep})
		}
	}
	return doc
}

// MarshalGraph converts a graph to indented JSON bytes.
func MarshalGraph(g *Graph) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteGraph(g, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteGraphFile writes a graph to a JSON file.
// The file is created with 0644 permissions.
func WriteGraphFile(g *Graph, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	return WriteGraph(g, f)
}

// WriteGraph writes a graph as JSON to an io.Writer.
func WriteGraph(g *Graph, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(ToDocument(g)); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return nil
}
