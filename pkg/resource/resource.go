// Package resource reads the transitive dependency declarations embedded
// in resource files.
//
// Markdown resources declare dependencies in YAML frontmatter, JSON
// resources in a top-level "dependencies" object. Both use the same shape,
// keyed by kind:
//
//	---
//	dependencies:
//	  snippets:
//	    - path: snippets/style.md
//	      version: ^1.0
//	  agents:
//	    - path: ./helper.md
//	      tool: opencode
//	---
//
// Paths are relative to the repository root unless they start with "./"
// or "../", in which case they are relative to the declaring file.
// Declarations are returned in canonical kind order, then list order.
package resource

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	lru "github.com/hashicorp/golang-lru/v2"
	"gopkg.in/yaml.v3"

	"github.com/matzehuels/gitpkg/pkg/cache"
	"github.com/matzehuels/gitpkg/pkg/errors"
	"github.com/matzehuels/gitpkg/pkg/manifest"
	"github.com/matzehuels/gitpkg/pkg/observability"
)

// DefaultMemoSize is the number of parsed files kept in memory.
const DefaultMemoSize = 1024

// Declaration is one transitive dependency declared by a resource.
type Declaration struct {
	Kind    manifest.Kind
	Path    string // repository-root relative, cleaned
	Version string // empty inherits from the declaring resource
	Tool    string // empty inherits from the declaring resource
}

type rawDeclaration struct {
	Path    string `yaml:"path" json:"path"`
	Version string `yaml:"version" json:"version"`
	Tool    string `yaml:"tool" json:"tool"`
}

type header struct {
	Dependencies map[string][]rawDeclaration `yaml:"dependencies" json:"dependencies"`
}

// Extractor reads declarations from materialized worktrees. Results are
// memoized per (source, commit, path); commits are immutable so entries
// never go stale.
type Extractor struct {
	memo   *lru.Cache[string, []Declaration]
	logger *log.Logger
}

// NewExtractor creates an Extractor holding up to size parsed files.
// A nil logger uses log.Default().
func NewExtractor(size int, logger *log.Logger) (*Extractor, error) {
	if size <= 0 {
		size = DefaultMemoSize
	}
	if logger == nil {
		logger = log.Default()
	}
	memo, err := lru.New[string, []Declaration](size)
	if err != nil {
		return nil, err
	}
	return &Extractor{memo: memo, logger: logger}, nil
}

// Extract returns the declarations of the resource at resourcePath inside
// the worktree of location at commit.
func (x *Extractor) Extract(ctx context.Context, location, commit, worktree, resourcePath string) ([]Declaration, error) {
	key := cache.ExtractKey(location, commit, resourcePath)
	if decls, ok := x.memo.Get(key); ok {
		observability.Cache().OnCacheHit(ctx, observability.KeyTypeExtract)
		return decls, nil
	}
	observability.Cache().OnCacheMiss(ctx, observability.KeyTypeExtract)

	full := filepath.Join(worktree, filepath.FromSlash(resourcePath))
	data, err := os.ReadFile(full)
	if os.IsNotExist(err) {
		return nil, errors.New(errors.ErrCodeInvalidPath, "%s not found at %s", resourcePath, shortCommit(commit))
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidPath, err, "read %s", resourcePath)
	}
	decls, err := Parse(resourcePath, data)
	if err != nil {
		return nil, err
	}
	x.logger.Debug("extracted declarations", "path", resourcePath, "commit", shortCommit(commit), "count", len(decls))
	x.memo.Add(key, decls)
	observability.Cache().OnCacheSet(ctx, observability.KeyTypeExtract, len(data))
	return decls, nil
}

// Len returns the number of memoized files.
func (x *Extractor) Len() int {
	return x.memo.Len()
}

// Parse extracts declarations from the content of the file at
// resourcePath. The file type is chosen by extension: .json files are
// decoded as JSON, .md and .markdown files as frontmatter; anything else
// declares nothing.
func Parse(resourcePath string, data []byte) ([]Declaration, error) {
	var h header
	switch strings.ToLower(path.Ext(resourcePath)) {
	case ".json":
		// Only objects can carry a dependencies key.
		if trimmed := bytes.TrimSpace(data); len(trimmed) == 0 || trimmed[0] != '{' {
			return nil, nil
		}
		if err := json.Unmarshal(data, &h); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "parse %s", resourcePath)
		}
	case ".md", ".markdown":
		front, ok, err := frontmatter(data)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "parse %s", resourcePath)
		}
		if !ok {
			return nil, nil
		}
		if err := yaml.Unmarshal(front, &h); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "parse frontmatter of %s", resourcePath)
		}
	default:
		return nil, nil
	}
	return declarations(resourcePath, h)
}

func declarations(resourcePath string, h header) ([]Declaration, error) {
	for name := range h.Dependencies {
		if _, ok := manifest.ParseKind(name); !ok {
			return nil, errors.New(errors.ErrCodeInvalidManifest, "%s: unknown dependency kind %q", resourcePath, name)
		}
	}
	var out []Declaration
	for _, kind := range manifest.Kinds {
		for _, raw := range h.Dependencies[string(kind)] {
			p, err := ResolvePath(resourcePath, raw.Path)
			if err != nil {
				return nil, errors.Wrap(errors.ErrCodeInvalidPath, err, "%s: dependency %q", resourcePath, raw.Path)
			}
			if raw.Tool != "" {
				if _, ok := manifest.ToolDir(raw.Tool); !ok {
					return nil, errors.New(errors.ErrCodeInvalidManifest, "%s: unknown tool %q", resourcePath, raw.Tool)
				}
			}
			out = append(out, Declaration{
				Kind:    kind,
				Path:    p,
				Version: strings.TrimSpace(raw.Version),
				Tool:    raw.Tool,
			})
		}
	}
	return out, nil
}

// ResolvePath interprets a declared path relative to the declaring file.
// "./x" and "../x" are relative to the declaring file's directory, anything
// else to the repository root. The result never leaves the repository.
func ResolvePath(declaring, declared string) (string, error) {
	declared = strings.TrimSpace(declared)
	if declared == "" {
		return "", errors.New(errors.ErrCodeInvalidPath, "path cannot be empty")
	}
	var p string
	if strings.HasPrefix(declared, "./") || strings.HasPrefix(declared, "../") {
		p = path.Join(path.Dir(declaring), declared)
	} else {
		if err := errors.ValidatePath(declared); err != nil {
			return "", err
		}
		p = path.Clean(declared)
	}
	if p == ".." || strings.HasPrefix(p, "../") || p == "." {
		return "", errors.New(errors.ErrCodeInvalidPath, "path %q escapes the repository", declared)
	}
	if err := errors.ValidatePath(p); err != nil {
		return "", err
	}
	return p, nil
}

const delimiter = "---"

// frontmatter returns the YAML between a leading "---" line and the next
// "---" line. ok is false when the content has no frontmatter.
func frontmatter(data []byte) (front []byte, ok bool, err error) {
	content := strings.ReplaceAll(string(data), "\r\n", "\n")
	content = strings.TrimPrefix(content, "\ufeff")
	if !strings.HasPrefix(content, delimiter+"\n") {
		return nil, false, nil
	}
	rest := content[len(delimiter)+1:]
	if strings.HasPrefix(rest, delimiter+"\n") || rest == delimiter {
		return nil, true, nil
	}
	before, _, found := strings.Cut(rest, "\n"+delimiter)
	if !found {
		return nil, false, errors.New(errors.ErrCodeInvalidManifest, "unterminated frontmatter: missing closing ---")
	}
	return []byte(before), true, nil
}

func shortCommit(sha string) string {
	if len(sha) > 12 {
		return sha[:12]
	}
	return sha
}
