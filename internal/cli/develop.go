package cli

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"os/exec"
	"slices"
	"strings"

	"github.com/picklr-io/pinmatrix/internal/compose"
	"github.com/picklr-io/pinmatrix/internal/ir"
	"github.com/picklr-io/pinmatrix/internal/logging"
	"github.com/spf13/cobra"
)

type developOptions struct {
	refresh bool
	command string
}

func newDevelopCmd(global *globalOptions) *cobra.Command {
	opts := &developOptions{}

	cmd := &cobra.Command{
		Use:   "develop [shell]",
		Short: "Enter a development shell",
		Long: `Resolves all sources and starts the development shell named in the
manifest (default: "default"). The shell's environment carries the shell's
variables plus PINMATRIX_* variables describing the resolved inputs.

The exit code is the shell's exit code.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ir.DefaultOutput
			if len(args) > 0 {
				name = args[0]
			}
			return runDevelop(cmd, global, opts, name)
		},
	}

	cmd.Flags().BoolVar(&opts.refresh, "refresh", false, "Ignore locked revisions and resolve every source again")
	cmd.Flags().StringVarP(&opts.command, "command", "c", "", "Run this command in the shell instead of an interactive session")
	return cmd
}

func runDevelop(cmd *cobra.Command, global *globalOptions, opts *developOptions, name string) error {
	ctx := cmd.Context()

	ws, err := loadWorkspace(ctx, global)
	if err != nil {
		return err
	}

	shell, ok := ws.project.DevShells[name]
	if !ok || shell == nil {
		available := make([]string, 0, len(ws.project.DevShells))
		for _, n := range slices.Sorted(maps.Keys(ws.project.DevShells)) {
			available = append(available, compose.EnvOutputName(n))
		}
		return &ir.UnknownOutputError{Name: compose.EnvOutputName(name), Available: available}
	}

	var resolved map[string]*ir.ResolvedSource
	eng := ws.newEngine(opts.refresh)
	err = ws.withLock(ctx, func(lock *ir.Lock) (*ir.Lock, error) {
		var next *ir.Lock
		var err error
		resolved, next, err = eng.Resolve(ctx, ws.project, lock)
		return next, err
	})
	if err != nil {
		return err
	}

	program, args := shellCommand(shell, opts.command)
	c := exec.CommandContext(ctx, program, args...)
	c.Dir = ws.dir
	c.Env = shellEnv(os.Environ(), shell, resolved)
	c.Stdin = cmd.InOrStdin()
	c.Stdout = cmd.OutOrStdout()
	c.Stderr = cmd.ErrOrStderr()

	logging.Info("starting dev shell", "shell", name, "program", program)
	if err := c.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &StatusError{Code: exitErr.ExitCode()}
		}
		return fmt.Errorf("failed to start shell %s: %w", program, err)
	}
	return nil
}

// shellCommand returns the program and arguments that start shell. The
// shell hook runs first; then either command or an interactive shell.
func shellCommand(shell *ir.EnvDescriptor, command string) (string, []string) {
	program := shell.Shell
	if program == "" {
		program = os.Getenv("SHELL")
	}
	if program == "" {
		program = "/bin/sh"
	}

	if shell.ShellHook == "" && command == "" {
		return program, nil
	}

	var script strings.Builder
	if shell.ShellHook != "" {
		script.WriteString(shell.ShellHook)
		script.WriteString("\n")
	}
	if command != "" {
		script.WriteString(command)
	} else {
		script.WriteString("exec " + program)
	}
	return program, []string{"-c", script.String()}
}

// shellEnv layers the shell's variables and the resolved inputs over base.
func shellEnv(base []string, shell *ir.EnvDescriptor, resolved map[string]*ir.ResolvedSource) []string {
	env := slices.Clone(base)
	env = append(env,
		"PINMATRIX_SHELL="+shell.Name,
		"PINMATRIX_PACKAGES="+strings.Join(shell.Packages, " "),
	)
	for _, name := range slices.Sorted(maps.Keys(resolved)) {
		env = append(env, "PINMATRIX_INPUT_"+envName(name)+"="+resolved[name].Revision)
	}
	for _, k := range slices.Sorted(maps.Keys(shell.Env)) {
		env = append(env, k+"="+shell.Env[k])
	}
	return env
}

func envName(s string) string {
	return strings.Map(func(c rune) rune {
		switch {
		case c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			return c
		case c >= 'a' && c <= 'z':
			return c - 'a' + 'A'
		default:
			return '_'
		}
	}, s)
}
