package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/picklr-io/pinmatrix/internal/cli"
	"github.com/picklr-io/pinmatrix/internal/ir"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cli.Execute(ctx)
	stop()

	if err != nil {
		if !cli.IsStatus(err) {
			fmt.Fprintf(os.Stderr, "error[%s]: %v\n", ir.Kind(err), err)
		}
		os.Exit(cli.ExitCode(err))
	}
}
