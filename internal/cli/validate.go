package cli

import (
	"fmt"

	"github.com/picklr-io/pinmatrix/internal/source"
	"github.com/spf13/cobra"
)

func newValidateCmd(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the project manifest",
		Long: `Evaluates the manifest and checks it without resolving or building:
locators must parse, follows edges must form no cycle and output names
must not collide.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := loadWorkspace(cmd.Context(), global)
			if err != nil {
				return err
			}

			if _, err := source.BuildFollowGraph(ws.project.Sources); err != nil {
				return err
			}
			for _, ref := range ws.project.Sources {
				if ref.Follows != "" {
					continue
				}
				if _, err := source.ParseLocator(ref.Locator); err != nil {
					return fmt.Errorf("source %q: %w", ref.Name, err)
				}
			}
			if _, err := plannedOutputs(ws.project); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", paint(okStyle, "valid"), ws.manifest)
			return nil
		},
	}
}
