package resource

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/matzehuels/gitpkg/pkg/errors"
	"github.com/matzehuels/gitpkg/pkg/manifest"
)

func TestParseMarkdown(t *testing.T) {
	content := strings.Join([]string{
		"---",
		"name: reviewer",
		"dependencies:",
		"  agents:",
		"    - path: ./helper.md",
		"      tool: opencode",
		"  snippets:",
		"    - path: snippets/style.md",
		"      version: ^1.0",
		"    - path: ../shared/base.md",
		"---",
		"# Reviewer",
		"",
		"---",
		"A horizontal rule in the body is not frontmatter.",
	}, "\r\n")

	got, err := Parse("agents/reviewer.md", []byte(content))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := []Declaration{
		{Kind: manifest.KindAgent, Path: "agents/helper.md", Tool: "opencode"},
		{Kind: manifest.KindSnippet, Path: "snippets/style.md", Version: "^1.0"},
		{Kind: manifest.KindSnippet, Path: "shared/base.md"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Parse =\n%+v\nwant\n%+v", got, want)
	}
}

func TestParseJSON(t *testing.T) {
	content := `{
	"mcpServers": {"db": {"command": "db-server"}},
	"dependencies": {
		"scripts": [{"path": "scripts/setup.sh", "version": "v2.0.0"}],
		"hooks": [{"path": "./pre.json"}]
	}
}`
	got, err := Parse("mcp-servers/db.json", []byte(content))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := []Declaration{
		{Kind: manifest.KindScript, Path: "scripts/setup.sh", Version: "v2.0.0"},
		{Kind: manifest.KindHook, Path: "mcp-servers/pre.json"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Parse = %+v, want %+v", got, want)
	}
}

func TestParseNoDeclarations(t *testing.T) {
	tests := []struct {
		name, path, content string
	}{
		{"plain markdown", "a.md", "# Title\n\nbody\n"},
		{"frontmatter without deps", "a.md", "---\nname: a\n---\nbody"},
		{"empty frontmatter", "a.md", "---\n---\nbody"},
		{"json array", "a.json", `[1, 2]`},
		{"empty json", "a.json", "  "},
		{"json without deps", "a.json", `{"name": "x"}`},
		{"script", "run.sh", "#!/bin/sh\n---\ndependencies: nope\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.path, []byte(tt.content))
			if err != nil || len(got) != 0 {
				t.Errorf("Parse = %+v, %v", got, err)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name, path, content string
		code                errors.Code
	}{
		{"unterminated", "a.md", "---\ndependencies:\n", errors.ErrCodeInvalidManifest},
		{"bad yaml", "a.md", "---\ndependencies: [\n---\n", errors.ErrCodeInvalidManifest},
		{"bad json", "a.json", `{"dependencies": `, errors.ErrCodeInvalidManifest},
		{"unknown kind", "a.md", "---\ndependencies:\n  widgets:\n    - path: w.md\n---\n", errors.ErrCodeInvalidManifest},
		{"unknown tool", "a.md", "---\ndependencies:\n  agents:\n    - path: b.md\n      tool: vim\n---\n", errors.ErrCodeInvalidManifest},
		{"escapes repo", "a.md", "---\ndependencies:\n  agents:\n    - path: ../../b.md\n---\n", errors.ErrCodeInvalidPath},
		{"absolute", "a.md", "---\ndependencies:\n  agents:\n    - path: /etc/passwd\n---\n", errors.ErrCodeInvalidPath},
		{"empty path", "a.md", "---\ndependencies:\n  agents:\n    - version: ^1\n---\n", errors.ErrCodeInvalidPath},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.path, []byte(tt.content))
			if !errors.Is(err, tt.code) {
				t.Errorf("err = %v, want %s", err, tt.code)
			}
		})
	}
}

func TestResolvePath(t *testing.T) {
	tests := []struct {
		declaring, declared, want string
		ok                        bool
	}{
		{"agents/a.md", "snippets/s.md", "snippets/s.md", true},
		{"agents/a.md", "./b.md", "agents/b.md", true},
		{"agents/deep/a.md", "../b.md", "agents/b.md", true},
		{"a.md", "./x/../b.md", "b.md", true},
		{"a.md", "../b.md", "", false},
		{"a.md", "./", "", false},
		{"agents/a.md", "x/../../b.md", "", false},
	}
	for _, tt := range tests {
		got, err := ResolvePath(tt.declaring, tt.declared)
		if (err == nil) != tt.ok || got != tt.want {
			t.Errorf("ResolvePath(%q, %q) = %q, %v; want %q (ok=%v)", tt.declaring, tt.declared, got, err, tt.want, tt.ok)
		}
	}
}

func TestExtractorMemoizes(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "agents", "a.md")
	if err := os.MkdirAll(filepath.Dir(file), 0755); err != nil {
		t.Fatal(err)
	}
	content := "---\ndependencies:\n  snippets:\n    - path: s.md\n---\n"
	if err := os.WriteFile(file, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	x, err := NewExtractor(0, nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	commit := strings.Repeat("a", 40)
	first, err := x.Extract(ctx, "https://x/r", commit, dir, "agents/a.md")
	if err != nil || len(first) != 1 {
		t.Fatalf("Extract = %+v, %v", first, err)
	}

	// The memo answers without reading the file again.
	if err := os.Remove(file); err != nil {
		t.Fatal(err)
	}
	second, err := x.Extract(ctx, "https://x/r", commit, dir, "agents/a.md")
	if err != nil || !reflect.DeepEqual(first, second) {
		t.Errorf("memoized Extract = %+v, %v", second, err)
	}
	if x.Len() != 1 {
		t.Errorf("Len = %d, want 1", x.Len())
	}

	// Another commit is another key.
	if _, err := x.Extract(ctx, "https://x/r", strings.Repeat("b", 40), dir, "agents/a.md"); !errors.Is(err, errors.ErrCodeInvalidPath) {
		t.Errorf("missing file err = %v, want INVALID_PATH", err)
	}
}
