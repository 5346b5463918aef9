package cache

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Layout describes the on-disk cache directory shared by the source and
// worktree caches:
//
//	<root>/sources/<slug>.git              bare clones
//	<root>/worktrees/<slug>/<commit>       checked-out trees
//
// Copies of a Layout share its repository locks, so every cache built from
// one NewLayout call serializes writes to a bare clone.
type Layout struct {
	Root string

	locks *repoLocks
}

type repoLocks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

// NewLayout creates the cache root and its subdirectories.
func NewLayout(root string) (Layout, error) {
	l := Layout{Root: root, locks: &repoLocks{m: make(map[string]*sync.Mutex)}}
	for _, dir := range []string{l.SourcesDir(), l.WorktreesDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return Layout{}, err
		}
	}
	return l, nil
}

// RepoLock returns the lock guarding writes (fetch, worktree add and
// remove) to the bare clone at path. The Layout must come from NewLayout.
func (l Layout) RepoLock(path string) *sync.Mutex {
	l.locks.mu.Lock()
	defer l.locks.mu.Unlock()
	m, ok := l.locks.m[path]
	if !ok {
		m = &sync.Mutex{}
		l.locks.m[path] = m
	}
	return m
}

// SourcesDir returns the directory holding bare clones.
func (l Layout) SourcesDir() string { return filepath.Join(l.Root, "sources") }

// WorktreesDir returns the directory holding worktrees.
func (l Layout) WorktreesDir() string { return filepath.Join(l.Root, "worktrees") }

// SourcePath returns the bare clone path for a location.
func (l Layout) SourcePath(location string) string {
	return filepath.Join(l.SourcesDir(), Slug(location)+".git")
}

// WorktreePath returns the worktree path for a location at a commit.
func (l Layout) WorktreePath(location, commit string) string {
	return filepath.Join(l.WorktreesDir(), Slug(location), commit)
}

// DirInfo summarizes one top-level cache directory.
type DirInfo struct {
	Name  string
	Path  string
	Size  int64
	Files int
}

// List reports every bare clone and every worktree directory, sorted by
// path. Missing directories yield an empty list.
func (l Layout) List() ([]DirInfo, error) {
	var out []DirInfo

	sources, err := readDirs(l.SourcesDir())
	if err != nil {
		return nil, err
	}
	for _, name := range sources {
		info, err := dirInfo(filepath.Join(l.SourcesDir(), name), name)
		if err != nil {
			return nil, err
		}
		out = append(out, info)
	}

	slugs, err := readDirs(l.WorktreesDir())
	if err != nil {
		return nil, err
	}
	for _, slug := range slugs {
		commits, err := readDirs(filepath.Join(l.WorktreesDir(), slug))
		if err != nil {
			return nil, err
		}
		for _, commit := range commits {
			info, err := dirInfo(filepath.Join(l.WorktreesDir(), slug, commit), slug+"@"+commit)
			if err != nil {
				return nil, err
			}
			out = append(out, info)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Clear removes the whole cache directory.
func (l Layout) Clear() error {
	return os.RemoveAll(l.Root)
}

func readDirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

func dirInfo(path, name string) (DirInfo, error) {
	info := DirInfo{Name: name, Path: path}
	err := filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			fi, err := d.Info()
			if err != nil {
				return err
			}
			info.Size += fi.Size()
			info.Files++
		}
		return nil
	})
	return info, err
}
