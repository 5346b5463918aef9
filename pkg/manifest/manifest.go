// Package manifest defines the manifest and lockfile models and their TOML
// encodings.
//
// A manifest (gitpkg.toml) names sources and, per resource kind, the
// dependencies to install:
//
//	[sources]
//	community = "https://github.com/org/resources.git"
//
//	[agents]
//	reviewer = { source = "community", path = "agents/reviewer.md", version = "^1.0" }
//
// Declaration order is preserved through parsing; the resolver and the
// lockfile follow it, which keeps their output stable across runs.
package manifest

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/gitpkg/pkg/errors"
	"github.com/matzehuels/gitpkg/pkg/version"
)

// DefaultFilename is the manifest file looked up by the CLI.
const DefaultFilename = "gitpkg.toml"

// Kind is a resource kind. Its value doubles as the manifest table name and
// the install subdirectory.
type Kind string

const (
	KindAgent     Kind = "agents"
	KindSnippet   Kind = "snippets"
	KindCommand   Kind = "commands"
	KindScript    Kind = "scripts"
	KindHook      Kind = "hooks"
	KindMCPServer Kind = "mcp-servers"
)

// Kinds lists every kind in canonical order.
var Kinds = []Kind{KindAgent, KindSnippet, KindCommand, KindScript, KindHook, KindMCPServer}

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, bool) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

// DefaultTool is used when neither a dependency nor its ancestors name one.
const DefaultTool = "claude-code"

var toolDirs = map[string]string{
	"claude-code": ".claude",
	"opencode":    ".opencode",
	"agpm":        ".agpm",
}

// ToolDir returns the install root for a tool.
func ToolDir(tool string) (string, bool) {
	dir, ok := toolDirs[tool]
	return dir, ok
}

// Source is a named git repository.
type Source struct {
	Name     string
	Location string
}

// Dependency is one manifest entry.
type Dependency struct {
	Name    string
	Kind    Kind
	Source  string // source name
	Path    string // file path inside the source repository
	Version string // free-form version, see version.Parse
	Branch  string
	Rev     string
	Tool    string
	Target  string // explicit install path, overrides the computed one
}

// Constraint returns the dependency's version constraint. Rev and Branch
// take the explicit forms; Version is inferred.
func (d Dependency) Constraint() (version.Constraint, error) {
	switch {
	case d.Rev != "":
		return version.ParseRev(d.Rev)
	case d.Branch != "":
		return version.ParseBranch(d.Branch)
	}
	return version.Parse(d.Version)
}

// Manifest is a parsed gitpkg.toml.
type Manifest struct {
	Sources      []Source     // declaration order
	Dependencies []Dependency // declaration order across all kind tables
}

// Source looks up a source by name.
func (m *Manifest) Source(name string) (Source, bool) {
	for _, s := range m.Sources {
		if s.Name == name {
			return s, true
		}
	}
	return Source{}, false
}

type rawDependency struct {
	Source  string `toml:"source"`
	Path    string `toml:"path"`
	Version string `toml:"version"`
	Branch  string `toml:"branch"`
	Rev     string `toml:"rev"`
	Tool    string `toml:"tool"`
	Target  string `toml:"target"`
}

// Load reads and parses a manifest file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "read %s", path)
	}
	return Parse(data)
}

// Parse decodes and validates a manifest.
func Parse(data []byte) (*Manifest, error) {
	var raw map[string]toml.Primitive
	md, err := toml.Decode(string(data), &raw)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "parse manifest")
	}

	sources := map[string]string{}
	deps := map[Kind]map[string]rawDependency{}
	for key, prim := range raw {
		if key == "sources" {
			if err := md.PrimitiveDecode(prim, &sources); err != nil {
				return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "decode [sources]")
			}
			continue
		}
		kind, ok := ParseKind(key)
		if !ok {
			return nil, errors.New(errors.ErrCodeInvalidManifest, "unknown table [%s]", key)
		}
		table := map[string]rawDependency{}
		if err := md.PrimitiveDecode(prim, &table); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "decode [%s]", key)
		}
		deps[kind] = table
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, errors.New(errors.ErrCodeInvalidManifest, "unknown field %q", undecoded[0].String())
	}

	// md.Keys() is in document order; pick second-level keys from it.
	m := &Manifest{}
	for _, key := range md.Keys() {
		if len(key) != 2 {
			continue
		}
		table, name := key[0], key[1]
		if table == "sources" {
			m.Sources = append(m.Sources, Source{Name: name, Location: sources[name]})
			continue
		}
		kind := Kind(table)
		rd := deps[kind][name]
		m.Dependencies = append(m.Dependencies, Dependency{
			Name:    name,
			Kind:    kind,
			Source:  rd.Source,
			Path:    rd.Path,
			Version: rd.Version,
			Branch:  rd.Branch,
			Rev:     rd.Rev,
			Tool:    rd.Tool,
			Target:  rd.Target,
		})
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate checks names, paths, sources and version fields.
func (m *Manifest) Validate() error {
	seenSources := map[string]bool{}
	for _, s := range m.Sources {
		if err := errors.ValidateName(s.Name); err != nil {
			return fmt.Errorf("source %q: %w", s.Name, err)
		}
		if err := errors.ValidateLocation(s.Location); err != nil {
			return fmt.Errorf("source %q: %w", s.Name, err)
		}
		seenSources[s.Name] = true
	}

	seenNames := map[string]Kind{}
	for _, d := range m.Dependencies {
		if err := errors.ValidateName(d.Name); err != nil {
			return fmt.Errorf("%s.%s: %w", d.Kind, d.Name, err)
		}
		if prev, dup := seenNames[d.Name]; dup {
			return errors.New(errors.ErrCodeInvalidManifest, "dependency %q declared in both [%s] and [%s]", d.Name, prev, d.Kind)
		}
		seenNames[d.Name] = d.Kind

		if d.Source == "" {
			return errors.New(errors.ErrCodeInvalidManifest, "%s.%s: missing source", d.Kind, d.Name)
		}
		if !seenSources[d.Source] {
			return errors.New(errors.ErrCodeInvalidManifest, "%s.%s: unknown source %q", d.Kind, d.Name, d.Source)
		}
		if err := errors.ValidatePath(strings.TrimPrefix(d.Path, "./")); err != nil {
			return fmt.Errorf("%s.%s: %w", d.Kind, d.Name, err)
		}
		if d.Target != "" {
			if err := errors.ValidatePath(d.Target); err != nil {
				return fmt.Errorf("%s.%s target: %w", d.Kind, d.Name, err)
			}
		}
		if d.Tool != "" {
			if _, ok := ToolDir(d.Tool); !ok {
				return errors.New(errors.ErrCodeInvalidManifest, "%s.%s: unknown tool %q", d.Kind, d.Name, d.Tool)
			}
		}
		set := 0
		for _, v := range []string{d.Version, d.Branch, d.Rev} {
			if v != "" {
				set++
			}
		}
		if set > 1 {
			return errors.New(errors.ErrCodeInvalidManifest, "%s.%s: only one of version, branch and rev may be set", d.Kind, d.Name)
		}
		if _, err := d.Constraint(); err != nil {
			return fmt.Errorf("%s.%s: %w", d.Kind, d.Name, err)
		}
	}
	return nil
}
