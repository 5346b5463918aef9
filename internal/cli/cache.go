package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/gitpkg/pkg/cache"
)

// cacheCommand creates the cache management command.
func (c *CLI) cacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the clone and worktree cache",
	}

	cmd.AddCommand(c.cacheClearCommand())
	cmd.AddCommand(c.cacheListCommand())
	cmd.AddCommand(c.cachePathCommand())

	return cmd
}

// cacheLayout opens the configured cache directory.
func cacheLayout() (cache.Layout, error) {
	cfg, err := loadConfig()
	if err != nil {
		return cache.Layout{}, err
	}
	return cache.NewLayout(cfg.CacheDir)
}

// cacheClearCommand creates the "cache clear" subcommand.
func (c *CLI) cacheClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove all cached clones and worktrees",
		RunE: func(cmd *cobra.Command, args []string) error {
			layout, err := cacheLayout()
			if err != nil {
				return fmt.Errorf("open cache: %w", err)
			}
			dirs, err := layout.List()
			if err != nil {
				return err
			}
			if len(dirs) == 0 {
				printInfo("Cache is empty")
				return nil
			}
			if err := layout.Clear(); err != nil {
				return fmt.Errorf("clear cache: %w", err)
			}
			c.Logger.Debug("cleared cache", "root", layout.Root, "entries", len(dirs))
			printSuccess("Cleared %d cached entries", len(dirs))
			printDetail("Directory: %s", layout.Root)
			return nil
		},
	}
}

// cacheListCommand creates the "cache list" subcommand.
func (c *CLI) cacheListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List cached clones and worktrees with their sizes",
		RunE: func(cmd *cobra.Command, args []string) error {
			layout, err := cacheLayout()
			if err != nil {
				return fmt.Errorf("open cache: %w", err)
			}
			dirs, err := layout.List()
			if err != nil {
				return err
			}
			if len(dirs) == 0 {
				printInfo("Cache is empty")
				return nil
			}
			var total int64
			for _, d := range dirs {
				printKeyValue(formatSize(d.Size), d.Name)
				total += d.Size
			}
			printNewline()
			printDetail("%d entries, %s in %s", len(dirs), formatSize(total), layout.Root)
			return nil
		},
	}
}

// cachePathCommand creates the "cache path" subcommand.
func (c *CLI) cachePathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the cache directory path",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("get cache dir: %w", err)
			}
			fmt.Println(cfg.CacheDir)
			return nil
		},
	}
}

// formatSize renders a byte count with a binary unit.
func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
