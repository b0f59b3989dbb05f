package cli

import (
	"fmt"

	"github.com/picklr-io/pinmatrix/internal/compose"
	"github.com/picklr-io/pinmatrix/internal/ir"
	"github.com/spf13/cobra"
)

func newShowCmd(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "List the outputs a build would produce",
		Long:  `Lists output names, sources and the default alias without resolving or building anything.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := loadWorkspace(cmd.Context(), global)
			if err != nil {
				return err
			}
			outputs, err := plannedOutputs(ws.project)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s %s\n", paint(headerStyle, "Package:"), ws.project.Package.Name)

			fmt.Fprintln(w, paint(headerStyle, "Sources:"))
			for _, ref := range ws.project.Sources {
				switch {
				case ref.Follows != "":
					fmt.Fprintf(w, "  %s %s\n", ref.Name, paint(dimStyle, "follows "+ref.Follows))
				case ref.Pinned():
					fmt.Fprintf(w, "  %s %s %s\n", ref.Name, ref.Locator, paint(dimStyle, "@"+ref.ResolvedRevision))
				default:
					fmt.Fprintf(w, "  %s %s\n", ref.Name, ref.Locator)
				}
			}

			fmt.Fprintln(w, paint(headerStyle, "Outputs:"))
			for _, name := range outputs.Names() {
				if target, ok := outputs.Aliases[name]; ok {
					fmt.Fprintf(w, "  %s -> %s\n", name, target)
					continue
				}
				entry := outputs.Entries[name]
				kind := "artifact"
				if entry.Env != nil {
					kind = "dev shell"
				}
				fmt.Fprintf(w, "  %s %s\n", name, paint(dimStyle, kind))
			}
			return nil
		},
	}
}

// plannedOutputs composes placeholder artifacts for every platform, which
// yields the output names a complete build would expose.
func plannedOutputs(project *ir.Project) (*ir.OutputSet, error) {
	placeholders := make(map[ir.PlatformID]*ir.BuildArtifact, len(project.Platforms))
	for _, p := range project.PlatformIDs() {
		placeholders[p] = &ir.BuildArtifact{Platform: p}
	}
	return compose.Compose(placeholders, project.DevShells, project.PrimaryPlatform())
}
