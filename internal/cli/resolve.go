package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/matzehuels/gitpkg/pkg/manifest"
	"github.com/matzehuels/gitpkg/pkg/observability"
	"github.com/matzehuels/gitpkg/pkg/observability/metrics"
	"github.com/matzehuels/gitpkg/pkg/resolver"
)

// resolveFlags are shared by the commands that run a resolution.
type resolveFlags struct {
	manifest   string
	lockfile   string
	update     bool
	locked     bool
	jobs       int
	metricsOut string
}

func (f *resolveFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.manifest, "manifest", "m", manifest.DefaultFilename, "manifest file")
	cmd.Flags().StringVar(&f.lockfile, "lockfile", "", "lockfile (default: gitpkg.lock next to the manifest)")
	cmd.Flags().BoolVarP(&f.update, "update", "u", false, "ignore lockfile pins and resolve against live refs")
	cmd.Flags().BoolVar(&f.locked, "locked", false, "fail unless every resource is pinned by the lockfile")
	cmd.Flags().IntVarP(&f.jobs, "jobs", "j", 0, "parallel git operations (default $"+envJobs+" or 8)")
	cmd.Flags().StringVar(&f.metricsOut, "metrics-out", "", "write Prometheus metrics to this file")
	cmd.MarkFlagsMutuallyExclusive("update", "locked")
}

// lockfilePath returns the lockfile location for the flags.
func (f *resolveFlags) lockfilePath() string {
	if f.lockfile != "" {
		return f.lockfile
	}
	return filepath.Join(filepath.Dir(f.manifest), manifest.DefaultLockfile)
}

// resolveCommand creates the resolve command.
func (c *CLI) resolveCommand() *cobra.Command {
	var (
		flags  resolveFlags
		dryRun bool
		browse bool
	)

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve the manifest and write the lockfile",
		Long: `Resolve every dependency in the manifest, including resources declared by
other resources, check each resolved commit out in the worktree cache and
write the lockfile.

Pinned commits are reused while they still satisfy the manifest. Use
--update to re-resolve everything against the current refs, or --locked to
require that nothing changes.`,
		Example: `  # Resolve and update gitpkg.lock
  gitpkg resolve

  # Re-resolve against the newest matching tags
  gitpkg resolve --update

  # Verify the lockfile in CI
  gitpkg resolve --locked --dry-run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := c.resolve(cmd.Context(), flags)
			if err != nil {
				return err
			}

			printPlan(res.Plan)
			printStats(res.Stats)

			if dryRun {
				printWarning("Dry run: %s not written", flags.lockfilePath())
			} else {
				path := flags.lockfilePath()
				if err := res.Lockfile.Write(path); err != nil {
					return fmt.Errorf("write lockfile: %w", err)
				}
				printFile(path)
			}
			if browse {
				return runPlanBrowser(res)
			}
			printNewline()
			printNextStep("Draw the dependency graph", "gitpkg graph -f svg -o deps.svg")
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "do not write the lockfile")
	cmd.Flags().BoolVar(&browse, "browse", false, "browse the plan interactively")

	return cmd
}

// resolve loads the manifest and lockfile named by flags and resolves them.
func (c *CLI) resolve(ctx context.Context, flags resolveFlags) (*resolver.Result, error) {
	logger := loggerFromContext(ctx)

	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	m, err := manifest.Load(flags.manifest)
	if err != nil {
		return nil, err
	}
	lock, err := manifest.LoadLockfile(flags.lockfilePath())
	if err != nil {
		return nil, err
	}

	if flags.metricsOut != "" {
		mt := metrics.New()
		mt.Register()
		defer func() {
			observability.Reset()
			if err := mt.WriteTextfile(flags.metricsOut); err != nil {
				logger.Warn("failed to write metrics", "path", flags.metricsOut, "error", err)
			}
		}()
	}

	r, err := c.newResolver(cfg)
	if err != nil {
		return nil, err
	}
	base, err := filepath.Abs(filepath.Dir(flags.manifest))
	if err != nil {
		return nil, err
	}
	jobs := flags.jobs
	if jobs == 0 {
		jobs = cfg.Jobs
	}

	prog := newProgress(logger)
	spinner := newSpinnerWithContext(ctx, fmt.Sprintf("Resolving %d dependencies...", len(m.Dependencies)))
	spinner.Start()
	res, err := r.Resolve(ctx, m, lock, resolver.Options{
		Jobs:    jobs,
		Update:  flags.update,
		Locked:  flags.locked,
		BaseDir: base,
	})
	if err != nil {
		spinner.Stop()
		return nil, err
	}
	spinner.StopWithSuccess(fmt.Sprintf("Resolved %d resources", len(res.Plan)))
	prog.done("resolution finished")
	return res, nil
}
