package cli

import (
	"context"
	"os"

	"github.com/picklr-io/pinmatrix/internal/logging"
	"github.com/spf13/cobra"
)

type globalOptions struct {
	manifest  string
	logLevel  string
	logFormat string
	noColor   bool
}

// NewRootCmd builds the pinmatrix command tree.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "pinmatrix",
		Short: "Declarative multi-platform builds with pinned inputs",
		Long: `pinmatrix builds one package for every platform a project declares.

A project manifest names:
  • the package and its source path
  • external sources, pinned to exact revisions in pinmatrix.lock
  • the platforms to build for, and which one is primary
  • development shells exposed next to the build artifacts`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.InitWriter(cmd.ErrOrStderr(), opts.logLevel, opts.logFormat)
			noColor = opts.noColor || os.Getenv("NO_COLOR") != ""
		},
	}

	defaultLevel := os.Getenv("PINMATRIX_LOG_LEVEL")
	if defaultLevel == "" {
		defaultLevel = "warn"
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.manifest, "file", "f", "", "Project manifest (default: discover pinmatrix.{pkl,yaml,yml,hcl} in the current directory)")
	flags.StringVar(&opts.logLevel, "log-level", defaultLevel, "Log level: debug, info, warn, error")
	flags.StringVar(&opts.logFormat, "log-format", "text", "Log format: text or json")
	flags.BoolVar(&opts.noColor, "no-color", false, "Disable colored output")

	cmd.AddCommand(
		newInitCmd(),
		newValidateCmd(opts),
		newBuildCmd(opts),
		newDevelopCmd(opts),
		newLockCmd(opts),
		newShowCmd(opts),
		newGraphCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

// Execute runs the root command. ctx is cancelled on interrupt.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}
