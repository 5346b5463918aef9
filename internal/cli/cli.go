// Package cli implements the gitpkg command-line interface.
package cli

import (
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/matzehuels/gitpkg/pkg/buildinfo"
	"github.com/matzehuels/gitpkg/pkg/cache"
	"github.com/matzehuels/gitpkg/pkg/git"
	"github.com/matzehuels/gitpkg/pkg/resolver"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// appName is the application name used for directories and display.
	appName = "gitpkg"

	// Environment variables read by the CLI, also from a .env file in the
	// working directory.
	envCacheDir = "GITPKG_CACHE_DIR"
	envJobs     = "GITPKG_JOBS"
)

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          appName,
		Short:        "gitpkg installs agent resources straight from git repositories",
		Long:         `gitpkg resolves versioned resources (agents, snippets, commands, scripts, hooks and MCP servers) from git sources declared in gitpkg.toml, pins them in gitpkg.lock and checks each resolved commit out once in a shared worktree cache.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
			return nil
		},
	}

	root.SetVersionTemplate(buildinfo.Template())

	root.AddCommand(c.resolveCommand())
	root.AddCommand(c.graphCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// =============================================================================
// Configuration
// =============================================================================

// config is the environment-derived configuration shared by commands.
type config struct {
	CacheDir string
	Jobs     int
}

// loadConfig reads .env (if present) and the process environment.
func loadConfig() (config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return config{}, err
	}
	cfg := config{Jobs: resolver.DefaultJobs}

	dir, err := cacheDir()
	if err != nil {
		return config{}, err
	}
	cfg.CacheDir = dir

	if v := os.Getenv(envJobs); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return config{}, &invalidEnvError{name: envJobs, value: v}
		}
		cfg.Jobs = n
	}
	return cfg, nil
}

type invalidEnvError struct {
	name, value string
}

func (e *invalidEnvError) Error() string {
	return "invalid " + e.name + "=" + strconv.Quote(e.value) + ": want a positive integer"
}

// cacheDir returns the cache root: $GITPKG_CACHE_DIR, else the XDG cache
// directory (~/.cache/gitpkg/).
func cacheDir() (string, error) {
	if dir := os.Getenv(envCacheDir); dir != "" {
		return filepath.Abs(dir)
	}
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", appName), nil
}

// =============================================================================
// Resolver Factory
// =============================================================================

// newResolver creates a resolver backed by the git binary and the cache
// directory from cfg.
func (c *CLI) newResolver(cfg config) (*resolver.Resolver, error) {
	layout, err := cache.NewLayout(cfg.CacheDir)
	if err != nil {
		return nil, err
	}
	return resolver.New(git.NewCLI(nil, c.Logger), layout, c.Logger)
}
