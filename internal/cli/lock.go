package cli

import (
	"fmt"
	"maps"
	"slices"
	"text/tabwriter"

	"github.com/picklr-io/pinmatrix/internal/ir"
	"github.com/spf13/cobra"
)

func newLockCmd(global *globalOptions) *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "lock",
		Short: "Resolve sources and write the lockfile",
		Long: `Resolves every source without building and records the pinned
revisions in the lockfile. Locked sources are kept as they are unless
--refresh is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ws, err := loadWorkspace(ctx, global)
			if err != nil {
				return err
			}

			var resolved map[string]*ir.ResolvedSource
			eng := ws.newEngine(refresh)
			err = ws.withLock(ctx, func(lock *ir.Lock) (*ir.Lock, error) {
				var next *ir.Lock
				var err error
				resolved, next, err = eng.Resolve(ctx, ws.project, lock)
				return next, err
			})
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, paint(headerStyle, "SOURCE")+"\t"+paint(headerStyle, "LOCATOR")+"\t"+paint(headerStyle, "REVISION"))
			for _, name := range slices.Sorted(maps.Keys(resolved)) {
				src := resolved[name]
				fmt.Fprintf(tw, "%s\t%s\t%s\n", name, src.Locator, src.Revision)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "Resolve every unpinned source again")
	return cmd
}
