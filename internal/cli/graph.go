package cli

import (
	"fmt"
	"io"

	"github.com/picklr-io/pinmatrix/internal/ir"
	"github.com/picklr-io/pinmatrix/internal/source"
	"github.com/spf13/cobra"
)

func newGraphCmd(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "graph",
		Short: "Output the input graph in DOT format",
		Long: `Generates the graph of sources, follows edges and platform outputs
in Graphviz DOT format. Pipe the output to 'dot' to generate an image:

  pinmatrix graph | dot -Tpng > graph.png`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := loadWorkspace(cmd.Context(), global)
			if err != nil {
				return err
			}
			return writeGraph(cmd.OutOrStdout(), ws.project)
		},
	}
}

func writeGraph(w io.Writer, project *ir.Project) error {
	fg, err := source.BuildFollowGraph(project.Sources)
	if err != nil {
		return err
	}

	fmt.Fprintln(w, "digraph pinmatrix {")
	fmt.Fprintln(w, "  rankdir = \"LR\";")
	fmt.Fprintln(w, "  node [shape = rect];")
	fmt.Fprintln(w)

	order := fg.Order()
	for _, name := range order {
		fmt.Fprintf(w, "  %q [shape = ellipse];\n", "source."+name)
	}
	for _, p := range project.Platforms {
		fmt.Fprintf(w, "  %q;\n", p)
	}
	fmt.Fprintln(w)

	for _, name := range order {
		if target := fg.Follows(name); target != "" {
			fmt.Fprintf(w, "  %q -> %q [style = dashed, label = \"follows\"];\n", "source."+name, "source."+target)
			continue
		}
		for _, p := range project.Platforms {
			fmt.Fprintf(w, "  %q -> %q;\n", "source."+name, p)
		}
	}
	if primary := project.PrimaryPlatform(); primary != "" {
		fmt.Fprintf(w, "  %q [shape = plaintext];\n", ir.DefaultOutput)
		fmt.Fprintf(w, "  %q -> %q [style = dotted];\n", ir.DefaultOutput, string(primary))
	}

	fmt.Fprintln(w, "}")
	return nil
}
