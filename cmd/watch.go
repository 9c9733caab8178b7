// -- cmd/watch.go --
package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/autosubmit/internal/controller"
	"github.com/xkilldash9x/autosubmit/internal/display"
	"github.com/xkilldash9x/autosubmit/internal/mode"
	"github.com/xkilldash9x/autosubmit/internal/monitor"
	"github.com/xkilldash9x/autosubmit/internal/observability"
)

const watchHelp = "commands: <n> or run <n> starts a run, status shows it, stop ends it, quit exits"

func newWatchCmd() *cobra.Command {
	var assumeYes bool

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Show the status light and start runs from the prompt",
		Long: `Keeps the status light current until interrupted. Lines read from
standard input control runs: a number (or "run <n>") starts a run of that
many jobs, "status" describes the active run, "stop" ends it, "quit" exits.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.GetLogger()
			cfg, err := getConfig(cmd)
			if err != nil {
				return err
			}

			ctx, quit := context.WithCancel(cmd.Context())
			defer quit()

			adapter, cleanup, err := attach(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer shutdown(ctx, cleanup, logger)

			p, err := newPipeline(adapter, cfg.Submit(), logger)
			if err != nil {
				return err
			}

			console := display.NewConsole(cmd.OutOrStdout())
			out := console
			// Standard input carries commands here, so it cannot also answer prompts.
			confirmer := controller.ConfirmFunc(func(_ context.Context, requested, available int) (bool, error) {
				if !assumeYes {
					fmt.Fprintf(out, "Requested %d items but only %d are visible; rerun watch with --yes to allow this.\n", requested, available)
				}
				return assumeYes, nil
			})
			ctrl := controller.New(adapter, p.modes, p.orchestrator, confirmer, console, logger)
			mon := monitor.New(p.modes, ctrl, console, cfg.Submit().StatusInterval, logger)

			fmt.Fprintln(out, watchHelp)
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return mon.Run(gctx) })
			g.Go(func() error {
				defer quit()
				return readCommands(gctx, cmd.InOrStdin(), out, ctrl, g, logger)
			})
			err = g.Wait()
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	watchCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "allow counts larger than the visible queue")
	addBrowserFlags(watchCmd)
	return watchCmd
}

// parseCommand returns the run size for "<n>" and "run <n>", or the verb.
func parseCommand(line string) (verb string, count int, err error) {
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) == 0 {
		return "", 0, nil
	}
	if len(fields) == 2 && fields[0] == "run" {
		fields = fields[1:]
	}
	if n, convErr := strconv.Atoi(fields[0]); convErr == nil && len(fields) == 1 {
		return "run", n, nil
	}
	switch fields[0] {
	case "status", "stop", "quit", "exit", "help":
		return fields[0], 0, nil
	}
	return "", 0, fmt.Errorf("unknown command %q", line)
}

// describeSession is the one-line answer to "status" during a run.
func describeSession(s controller.Session) string {
	id := s.ID
	if len(id) > 8 {
		id = id[:8]
	}
	if !s.Running {
		return fmt.Sprintf("Run %s is starting (%d requested).", id, s.RequestedCount)
	}
	return fmt.Sprintf("Run %s is active: %s, %d of %d finished, started %s ago.",
		id, s.Mode, s.CompletedIndex, s.RequestedCount, time.Since(s.StartedAt).Round(time.Second))
}

// readCommands handles operator input until quit, end of input, or ctx ends.
// Runs are started on g so the loop keeps reading while they execute.
func readCommands(ctx context.Context, in io.Reader, out io.Writer, ctrl *controller.Controller, g *errgroup.Group, logger *zap.Logger) error {
	var runs sync.WaitGroup
	lines := make(chan string)
	// Closing the input releases the reader goroutine from a blocked Scan.
	// Terminal stdin may ignore the close; the process exits right after.
	if c, ok := in.(io.Closer); ok {
		defer c.Close()
	}
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		var line string
		select {
		case <-ctx.Done():
			return nil
		case l, ok := <-lines:
			if !ok {
				// End of input does not abandon a run the operator started.
				runs.Wait()
				return nil
			}
			line = l
		}

		verb, count, err := parseCommand(line)
		if err != nil {
			fmt.Fprintln(out, err.Error()+"; "+watchHelp)
			continue
		}
		switch verb {
		case "run":
			if s, ok := ctrl.Snapshot(); ok {
				fmt.Fprintln(out, controller.ErrAlreadyRunning.Error()+". "+describeSession(s))
				continue
			}
			req := controller.Request{Count: count, Mode: mode.Idle}
			runs.Add(1)
			g.Go(func() error {
				defer runs.Done()
				if _, err := ctrl.Start(ctx, req); err != nil {
					logger.Info("Run not started.", zap.Error(err))
					fmt.Fprintln(out, "Run not started: "+err.Error())
				}
				return nil
			})
		case "status":
			if s, ok := ctrl.Snapshot(); ok {
				fmt.Fprintln(out, describeSession(s))
			} else {
				fmt.Fprintln(out, "No run is active.")
			}
		case "stop":
			if !ctrl.Stop() {
				fmt.Fprintln(out, "No run is active.")
			}
		case "quit", "exit":
			ctrl.Stop()
			return nil
		case "help":
			fmt.Fprintln(out, watchHelp)
		}
	}
}
