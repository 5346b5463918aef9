package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/matzehuels/gitpkg/pkg/dag/transform"
	"github.com/matzehuels/gitpkg/pkg/graph"
	"github.com/matzehuels/gitpkg/pkg/render/nodelink"
)

// Graph output formats.
const (
	formatJSON = "json"
	formatDOT  = "dot"
	formatSVG  = "svg"
)

// graphCommand creates the graph command.
func (c *CLI) graphCommand() *cobra.Command {
	var (
		flags    resolveFlags
		format   string
		output   string
		reduce   bool
		detailed bool
	)

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Export the resolved dependency graph",
		Long: `Resolve the manifest (reusing lockfile pins) and export the dependency
graph as node-link JSON, Graphviz DOT or SVG. The lockfile is not written.`,
		Example: `  # JSON to stdout
  gitpkg graph

  # Reduced SVG drawing
  gitpkg graph -f svg --reduce -o deps.svg`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := c.resolve(cmd.Context(), flags)
			if err != nil {
				return err
			}
			data, err := exportGraph(cmd.Context(), res.Graph, format, reduce, detailed)
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				_, err := os.Stdout.Write(data)
				return err
			}
			if err := os.WriteFile(output, data, 0644); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}
			printFile(output)
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVarP(&format, "format", "f", formatJSON, "output format: json, dot, svg")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: stdout)")
	cmd.Flags().BoolVar(&reduce, "reduce", false, "drop edges implied by longer paths (dot, svg)")
	cmd.Flags().BoolVar(&detailed, "detailed", false, "label nodes with kind, ref and commit (dot, svg)")

	return cmd
}

// exportGraph serializes g in the requested format.
func exportGraph(ctx context.Context, g *graph.Graph, format string, reduce, detailed bool) ([]byte, error) {
	switch format {
	case formatJSON:
		return graph.MarshalGraph(g)
	case formatDOT, formatSVG:
		d := g.DAG()
		if reduce {
			removed := transform.TransitiveReduction(d)
			loggerFromContext(ctx).Debug("reduced graph", "removed_edges", removed)
		}
		dot := nodelink.ToDOT(d, nodelink.Options{Detailed: detailed})
		if format == formatDOT {
			return []byte(dot), nil
		}
		return nodelink.RenderSVG(ctx, dot)
	}
	return nil, fmt.Errorf("unsupported format %q (want %s, %s or %s)", format, formatJSON, formatDOT, formatSVG)
}
