package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/picklr-io/pinmatrix/internal/engine"
	"github.com/picklr-io/pinmatrix/internal/ir"
	"github.com/picklr-io/pinmatrix/internal/matrix"
	"github.com/spf13/cobra"
)

type buildOptions struct {
	refresh      bool
	systems      []string
	failFast     bool
	parallelism  int
	allowPartial bool
	noResult     bool
}

func newBuildCmd(global *globalOptions) *cobra.Command {
	opts := &buildOptions{}

	cmd := &cobra.Command{
		Use:   "build [output]",
		Short: "Build the package for every platform",
		Long: `Resolves all sources, builds the package once per platform and prints
the selected output (default: "default", the primary platform's artifact).

Platforms are built in parallel. A failing platform does not stop the others
unless --fail-fast is given. Every failure is reported and makes the command
exit non-zero, even when the selected output was built.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ir.DefaultOutput
			if len(args) > 0 {
				name = args[0]
			}
			return runBuild(cmd, global, opts, name)
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&opts.refresh, "refresh", false, "Ignore locked revisions and resolve every source again")
	flags.StringArrayVar(&opts.systems, "system", nil, "Only build for this platform (repeatable)")
	flags.BoolVar(&opts.failFast, "fail-fast", false, "Cancel remaining builds after the first failure")
	flags.IntVar(&opts.parallelism, "parallelism", 0, "Maximum concurrent builds (default: manifest setting or 4)")
	flags.BoolVar(&opts.allowPartial, "allow-partial", false, "Exit zero when the selected output was built, even if other platforms failed")
	flags.BoolVar(&opts.noResult, "no-result", false, "Do not write .pinmatrix/result.json")
	return cmd
}

func runBuild(cmd *cobra.Command, global *globalOptions, opts *buildOptions, name string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	status := cmd.ErrOrStderr()

	ws, err := loadWorkspace(ctx, global)
	if err != nil {
		return err
	}

	systems := make([]ir.PlatformID, 0, len(opts.systems))
	for _, s := range opts.systems {
		systems = append(systems, ir.PlatformID(s))
	}

	eng := ws.newEngine(opts.refresh)
	var ev *engine.Evaluation
	err = ws.withLock(ctx, func(lock *ir.Lock) (*ir.Lock, error) {
		var err error
		ev, err = eng.Evaluate(ctx, ws.project, lock, engine.Options{
			Systems:     systems,
			FailFast:    opts.failFast,
			Parallelism: opts.parallelism,
			OnEvent:     func(e matrix.Event) { printEvent(status, e) },
		})
		if err != nil {
			return nil, err
		}
		return ev.Lock, nil
	})
	if err != nil {
		return err
	}

	if !opts.noResult {
		path, err := engine.WriteResult(ws.dir, ev)
		if err != nil {
			return err
		}
		fmt.Fprintf(status, "%s %s\n", paint(dimStyle, "result written to"), path)
	}

	for _, p := range ev.FailedPlatforms() {
		fmt.Fprintf(status, "%s %v\n", paint(failStyle, "FAILED"), ev.Failures[p])
	}

	entry, err := ev.Select(name)
	if err != nil {
		return err
	}
	printEntry(out, name, entry)

	if opts.allowPartial {
		return nil
	}
	return ev.Err()
}

func printEvent(w io.Writer, e matrix.Event) {
	switch e.Status {
	case "started":
		fmt.Fprintf(w, "%s %s\n", paint(dimStyle, "building"), e.Platform)
	case "completed":
		fmt.Fprintf(w, "%s %s %s\n", paint(okStyle, "built"), e.Platform, paint(dimStyle, e.Duration.Round(time.Millisecond).String()))
	case "failed":
		fmt.Fprintf(w, "%s %s %s\n", paint(failStyle, "failed"), e.Platform, paint(dimStyle, e.Duration.Round(time.Millisecond).String()))
	case "skipped":
		fmt.Fprintf(w, "%s %s\n", paint(warnStyle, "skipped"), e.Platform)
	}
}

func printEntry(w io.Writer, name string, entry *ir.OutputEntry) {
	switch {
	case entry.Artifact != nil:
		a := entry.Artifact
		fmt.Fprintf(w, "%s: %s\n", name, a.Location)
		fmt.Fprintf(w, "  platform: %s\n", a.Platform)
		fmt.Fprintf(w, "  builder:  %s\n", a.Builder)
		fmt.Fprintf(w, "  id:       %s\n", a.ID)
		if a.Digest != "" {
			fmt.Fprintf(w, "  digest:   %s\n", a.Digest)
		}
	case entry.Env != nil:
		fmt.Fprintf(w, "%s: dev shell %q\n", name, entry.Env.Name)
		for _, pkg := range entry.Env.Packages {
			fmt.Fprintf(w, "  - %s\n", pkg)
		}
	}
}
