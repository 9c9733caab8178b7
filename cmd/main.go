// File: cmd/main.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/xkilldash9x/autosubmit/internal/observability"
)

// Main runs the CLI and returns the process exit status. Both binaries call
// it so they behave the same on errors, interrupts and panics.
func Main() int {
	// The first interrupt stops the run between steps; the browser is still
	// shut down cleanly.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return runMain(ctx, Execute, os.Stderr)
}

// runMain executes and maps the outcome to a status; a panic exits with 2.
func runMain(ctx context.Context, execute func(context.Context) error, stderr io.Writer) (code int) {
	defer func() {
		if r := recover(); r != nil {
			observability.Sync()
			fmt.Fprintf(stderr, "panic: %v\n\n%s", r, debug.Stack())
			code = 2
		}
	}()
	return ExitCode(execute(ctx))
}

// ExitCode maps a command error onto the process status. An interrupted run
// is a clean exit.
func ExitCode(err error) int {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return 0
	default:
		return 1
	}
}
