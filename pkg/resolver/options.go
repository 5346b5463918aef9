package resolver

import (
	"fmt"
	"time"

	"github.com/matzehuels/gitpkg/pkg/graph"
	"github.com/matzehuels/gitpkg/pkg/manifest"
)

// DefaultJobs is the default number of parallel resolution and
// materialization tasks.
const DefaultJobs = 8

// Options configures a resolution run.
type Options struct {
	// Jobs limits parallel tasks. Zero means DefaultJobs.
	Jobs int

	// Update ignores lockfile pins and resolves everything against live refs.
	Update bool

	// Locked requires a lockfile pin for every resource.
	Locked bool

	// BaseDir anchors relative local source locations, usually the
	// manifest's directory.
	BaseDir string
}

// ValidateAndSetDefaults checks the options and fills defaults.
func (o *Options) ValidateAndSetDefaults() error {
	if o.Jobs < 0 {
		return fmt.Errorf("jobs must be positive, got %d", o.Jobs)
	}
	if o.Jobs == 0 {
		o.Jobs = DefaultJobs
	}
	if o.Update && o.Locked {
		return fmt.Errorf("update and locked are mutually exclusive")
	}
	return nil
}

// PlanEntry is one resource to install, in installation order.
type PlanEntry struct {
	Name             string
	Kind             manifest.Kind
	Source           string // source name
	Location         string // source location as written in the manifest
	Path             string // repository-root relative
	Commit           string
	Ref              string
	MaterializedPath string // worktree root shared by every entry at this commit
	InstallPath      string
	DeclaredBy       string
	Direct           bool
}

// Stats summarizes a run.
type Stats struct {
	Levels           int // fixed-point iterations
	Resolved         int // distinct keys resolved against live refs
	Pinned           int // requests served by lockfile pins
	WorktreesCreated int
	WorktreesReused  int
	Duration         time.Duration
}

// Result is the output of a successful run.
type Result struct {
	Plan     []PlanEntry
	Lockfile *manifest.Lockfile
	Graph    *graph.Graph
	Stats    Stats
}
