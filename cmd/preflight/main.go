// Command preflight checks that a project checkout is ready to build.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/happyrust/preflight/internal/workflow"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newRootCmd().ExecuteContext(ctx)
	if err == nil {
		return
	}
	// Stage failures and a wrong directory were already reported on the console.
	if !errors.Is(err, errStagesFailed) && !errors.Is(err, workflow.ErrNotProjectRoot) {
		fmt.Fprintf(os.Stderr, "preflight: %v\n", err)
	}
	stop()
	os.Exit(1)
}
