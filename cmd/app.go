// -- cmd/app.go --
package cmd

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/autosubmit/internal/browser"
	"github.com/xkilldash9x/autosubmit/internal/completion"
	"github.com/xkilldash9x/autosubmit/internal/config"
	"github.com/xkilldash9x/autosubmit/internal/humanoid"
	"github.com/xkilldash9x/autosubmit/internal/mode"
	"github.com/xkilldash9x/autosubmit/internal/orchestrator"
	"github.com/xkilldash9x/autosubmit/internal/ui"
)

const shutdownTimeout = 10 * time.Second

// attachFunc connects to the page and returns the adapter with its cleanup.
type attachFunc func(ctx context.Context, cfg config.Interface, logger *zap.Logger) (ui.Adapter, func(context.Context) error, error)

// attach is replaced in tests with an in-memory page.
var attach attachFunc = attachBrowser

func attachBrowser(ctx context.Context, cfg config.Interface, logger *zap.Logger) (ui.Adapter, func(context.Context) error, error) {
	bc := cfg.Browser()
	manager := browser.NewManager(bc, logger)
	tab, err := manager.Attach(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to attach to browser: %w", err)
	}

	var clicker browser.Clicker
	if bc.Humanoid.Enabled {
		clicker = humanoid.New(humanoidConfig(bc.Humanoid), browser.NewExecutor(tab, logger), logger)
	}
	return browser.NewPage(tab, clicker, bc.HeaderMarker, logger), manager.Shutdown, nil
}

// shutdown runs cleanup even when ctx is already cancelled.
func shutdown(ctx context.Context, cleanup func(context.Context) error, logger *zap.Logger) {
	if cleanup == nil {
		return
	}
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := cleanup(sctx); err != nil {
		logger.Warn("Cleanup failed.", zap.Error(err))
	}
}

func humanoidConfig(hc config.HumanoidConfig) humanoid.Config {
	cfg := humanoid.DefaultConfig()
	if hc.FittsA > 0 {
		cfg.FittsA = hc.FittsA
	}
	if hc.FittsB > 0 {
		cfg.FittsB = hc.FittsB
	}
	if hc.ClickHoldMinMs > 0 {
		cfg.ClickHoldMin = time.Duration(hc.ClickHoldMinMs) * time.Millisecond
	}
	if hc.ClickHoldMaxMs > 0 {
		cfg.ClickHoldMax = time.Duration(hc.ClickHoldMaxMs) * time.Millisecond
	}
	cfg.Jitter = hc.Jitter
	return cfg
}

func modeKeywords(sc config.SubmitConfig) mode.Keywords {
	return mode.Keywords{Draft: sc.DraftTabKeyword, Failed: sc.FailedTabKeyword}
}

func orchestratorConfig(sc config.SubmitConfig) orchestrator.Config {
	return orchestrator.Config{
		Labels: orchestrator.Labels{
			Advance:     sc.AdvanceLabel,
			Submit:      sc.SubmitLabel,
			CloneAction: sc.CloneLabel,
			QuotaMarker: sc.QuotaMarker,
			SourceTab:   sc.SourceTab,
		},
		Timing: orchestrator.Timing{
			ModalSettle:      sc.ModalSettle,
			SelectSettle:     sc.SelectSettle,
			SelectSettleStep: sc.SelectSettleStep,
			MenuPollInterval: sc.MenuPollInterval,
			MenuPollAttempts: sc.MenuPollAttempts,
			PageTransition:   sc.PageTransitionDelay,
		},
	}
}

// pipeline is what every command builds on top of an attached page.
type pipeline struct {
	modes        *mode.Detector
	orchestrator *orchestrator.Orchestrator
}

func newPipeline(adapter ui.Adapter, sc config.SubmitConfig, logger *zap.Logger) (*pipeline, error) {
	policy, err := completion.ParsePolicy(sc.Policy)
	if err != nil {
		return nil, err
	}
	ocfg := orchestratorConfig(sc)
	detector := completion.NewDetector(adapter, orchestrator.SubmitPredicate(ocfg.Labels), completion.Config{
		PollInterval: sc.PollInterval,
		MaxAttempts:  sc.MaxPollAttempts,
		NudgeEvery:   sc.NudgeEvery,
		RecheckDelay: sc.ConfirmRecheckDelay,
		Policy:       policy,
	}, logger)
	return &pipeline{
		modes:        mode.NewDetector(adapter, modeKeywords(sc), logger),
		orchestrator: orchestrator.New(adapter, detector, ocfg, logger),
	}, nil
}
