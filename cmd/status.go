// -- cmd/status.go --
package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/autosubmit/internal/display"
	"github.com/xkilldash9x/autosubmit/internal/monitor"
	"github.com/xkilldash9x/autosubmit/internal/observability"
)

func newStatusCmd() *cobra.Command {
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show which queue is on screen and how many rows it has",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfig(cmd)
			if err != nil {
				return err
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
			m := p.modes.Detect(ctx)
			rows, err := adapter.ListQueueRows(ctx)
			if err != nil {
				return fmt.Errorf("reading queue: %w", err)
			}

			out := cmd.OutOrStdout()
			display.NewConsole(out).Status(monitor.Status{Mode: m, At: time.Now()})
			fmt.Fprintf(out, "%d rows visible\n", len(rows))
			return nil
		},
	}
	addBrowserFlags(statusCmd)
	return statusCmd
}
