// -- cmd/run.go --
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/autosubmit/internal/controller"
	"github.com/xkilldash9x/autosubmit/internal/display"
	"github.com/xkilldash9x/autosubmit/internal/mode"
	"github.com/xkilldash9x/autosubmit/internal/monitor"
	"github.com/xkilldash9x/autosubmit/internal/observability"
	"github.com/xkilldash9x/autosubmit/internal/orchestrator"
)

const defaultCount = 10

// addBrowserFlags registers the browser overrides shared by every command
// that attaches to the page.
func addBrowserFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Bool("headless", false, "launch the browser without a window")
	f.String("remote-url", "", "DevTools URL of an already running browser")
	f.Bool("humanoid", true, "move the pointer like a person when clicking")
	bindToConfig(f, "headless", "browser.headless")
	bindToConfig(f, "remote-url", "browser.remote_url")
	bindToConfig(f, "humanoid", "browser.humanoid.enabled")
}

func newRunCmd() *cobra.Command {
	var (
		count     int
		modeName  string
		assumeYes bool
	)

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Submit the next N queued jobs",
		Long: `Submits up to --count jobs from the queue on screen, one at a time.
On the drafts tab each row is selected and submitted; on the failed tab each
row is cloned and the clone submitted. The mode is detected from the active
tab unless --mode is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfig(cmd)
			if err != nil {
				return err
			}
			m, err := mode.Parse(modeName)
			if err != nil {
				return err
			}
			if count <= 0 {
				return controller.ErrInvalidCount
			}

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
			var confirmer controller.Confirmer = display.NewPrompt(cmd.InOrStdin(), console)
			if assumeYes {
				confirmer = controller.AlwaysConfirm
			}
			ctrl := controller.New(adapter, p.modes, p.orchestrator, confirmer, console, logger)
			mon := monitor.New(p.modes, ctrl, console, cfg.Submit().StatusInterval, logger)

			report, err := runWithMonitor(ctx, ctrl, mon, controller.Request{Count: count, Mode: m})
			if err != nil {
				return err
			}
			return summaryErr(report.Summary)
		},
	}

	f := runCmd.Flags()
	f.IntVarP(&count, "count", "n", defaultCount, "number of jobs to submit")
	f.StringVarP(&modeName, "mode", "m", "auto", "auto, draft or reprocess")
	f.String("policy", "", "what an unverified submission counts as: lenient or strict")
	f.BoolVarP(&assumeYes, "yes", "y", false, "do not ask when --count exceeds the visible queue")
	bindToConfig(f, "policy", "submit.policy")
	addBrowserFlags(runCmd)
	return runCmd
}

// runWithMonitor starts one session with the status monitor alongside,
// stopping the monitor once the session ends.
func runWithMonitor(ctx context.Context, ctrl *controller.Controller, mon *monitor.Monitor, req controller.Request) (controller.Report, error) {
	g, gctx := errgroup.WithContext(ctx)
	monCtx, stopMonitor := context.WithCancel(gctx)
	defer stopMonitor()

	var report controller.Report
	g.Go(func() error { return mon.Run(monCtx) })
	g.Go(func() error {
		defer stopMonitor()
		r, err := ctrl.Start(gctx, req)
		if err != nil {
			return err
		}
		report = r
		return nil
	})
	if err := g.Wait(); err != nil {
		return controller.Report{}, err
	}
	return report, nil
}

// summaryErr turns a run that ended badly into a command error.
func summaryErr(sum orchestrator.Summary) error {
	switch sum.Stop {
	case orchestrator.StopCompleted, orchestrator.StopQueueEmpty:
		return nil
	case orchestrator.StopCancelled:
		return context.Canceled
	default:
		observability.GetLogger().Debug("Run ended early.", zap.Stringer("stop", sum.Stop), zap.Error(sum.Err))
		if sum.Err == nil {
			return fmt.Errorf("run %s", sum.Stop)
		}
		return fmt.Errorf("run %s: %w", sum.Stop, sum.Err)
	}
}
