package manifest

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/gitpkg/pkg/errors"
)

// DefaultLockfile is the lockfile written next to the manifest.
const DefaultLockfile = "gitpkg.lock"

// LockfileVersion is the current lockfile schema version.
const LockfileVersion = 1

// Lockfile pins every resolved resource to a commit. It carries no
// timestamps so re-serializing an unchanged resolution is byte-identical.
type Lockfile struct {
	Version   int              `toml:"version"`
	Sources   []LockedSource   `toml:"sources"`
	Resources []LockedResource `toml:"resources"`
}

// LockedSource records a source name and location.
type LockedSource struct {
	Name string `toml:"name"`
	URL  string `toml:"url"`
}

// LockedResource is one resolved resource.
type LockedResource struct {
	Name           string   `toml:"name"`
	Kind           string   `toml:"kind"`
	Source         string   `toml:"source"`
	URL            string   `toml:"url"`
	Path           string   `toml:"path"`
	Version        string   `toml:"version,omitempty"` // constraint used, as written
	Ref            string   `toml:"ref,omitempty"`
	ResolvedCommit string   `toml:"resolved_commit"`
	Tool           string   `toml:"tool,omitempty"`
	InstallPath    string   `toml:"install_path"`
	DeclaredBy     string   `toml:"declared_by,omitempty"`
	Dependencies   []string `toml:"dependencies,omitempty"`
}

// Lookup returns the direct entry for a dependency name. Transitive
// entries are matched by name and declaring parent with LookupTransitive.
func (l *Lockfile) Lookup(name string) (*LockedResource, bool) {
	if l == nil {
		return nil, false
	}
	for i := range l.Resources {
		if r := &l.Resources[i]; r.Name == name && r.DeclaredBy == "" {
			return r, true
		}
	}
	return nil, false
}

// LookupTransitive returns the entry for a transitive resource identified by
// its source location and path.
func (l *Lockfile) LookupTransitive(url, path string) (*LockedResource, bool) {
	if l == nil {
		return nil, false
	}
	for i := range l.Resources {
		if r := &l.Resources[i]; r.DeclaredBy != "" && r.URL == url && r.Path == path {
			return r, true
		}
	}
	return nil, false
}

// LoadLockfile reads a lockfile. A missing file yields (nil, nil).
func LoadLockfile(path string) (*Lockfile, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidLockfile, err, "read %s", path)
	}
	return ParseLockfile(data)
}

// ParseLockfile decodes a lockfile.
func ParseLockfile(data []byte) (*Lockfile, error) {
	var l Lockfile
	if _, err := toml.Decode(string(data), &l); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidLockfile, err, "parse lockfile")
	}
	if l.Version != LockfileVersion {
		return nil, errors.New(errors.ErrCodeInvalidLockfile, "unsupported lockfile version %d", l.Version)
	}
	for _, r := range l.Resources {
		if r.Name == "" || r.ResolvedCommit == "" {
			return nil, errors.New(errors.ErrCodeInvalidLockfile, "resource entry missing name or resolved_commit")
		}
	}
	return &l, nil
}

// Encode serializes the lockfile.
func (l *Lockfile) Encode() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("# This file is generated by gitpkg. Do not edit.\n\n")
	if err := toml.NewEncoder(&buf).Encode(l); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write atomically replaces the file at path with the encoded lockfile.
func (l *Lockfile) Write(path string) error {
	data, err := l.Encode()
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".gitpkg-lock-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
