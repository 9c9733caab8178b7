// internal/monitor/monitor.go
package monitor

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/autosubmit/internal/mode"
)

// DefaultInterval matches how often the status light is refreshed.
const DefaultInterval = 1500 * time.Millisecond

// Status is one refresh of the status light.
type Status struct {
	Mode mode.Mode
	At   time.Time
}

// Busy reports whether a run owns the page.
type Busy interface {
	Active() bool
}

// Sink receives status changes.
type Sink interface {
	Status(s Status)
}

// Monitor periodically re-detects the mode and publishes changes. It does
// nothing while a run is active so it never competes with the orchestrator
// for the page.
type Monitor struct {
	detector *mode.Detector
	busy     Busy
	sink     Sink
	interval time.Duration
	limiter  *rate.Limiter
	logger   *zap.Logger

	last    mode.Mode
	emitted bool
}

// New creates a Monitor. A zero interval uses DefaultInterval.
func New(detector *mode.Detector, busy Busy, sink Sink, interval time.Duration, logger *zap.Logger) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Monitor{
		detector: detector,
		busy:     busy,
		sink:     sink,
		interval: interval,
		// Page reads are capped at two per interval even if ticks pile up.
		// A cap of exactly one would reject ticks that land a hair early.
		limiter: rate.NewLimiter(rate.Every(interval/2), 1),
		logger:  logger.Named("monitor"),
	}
}

// Tick performs one refresh. It reports false when it was a no-op.
func (m *Monitor) Tick(ctx context.Context) (Status, bool) {
	if m.busy != nil && m.busy.Active() {
		return Status{}, false
	}
	if !m.limiter.Allow() {
		return Status{}, false
	}
	st := Status{Mode: m.detector.Detect(ctx), At: time.Now()}
	// A run that started during detection owns the light now.
	if m.busy != nil && m.busy.Active() {
		return Status{}, false
	}
	if m.emitted && st.Mode == m.last {
		return st, true
	}
	if m.emitted {
		m.logger.Info("Mode changed.", zap.Stringer("from", m.last), zap.Stringer("to", st.Mode))
	}
	m.last, m.emitted = st.Mode, true
	if m.sink != nil {
		m.sink.Status(st)
	}
	return st, true
}

// Run refreshes until ctx is done. It returns nil on cancellation.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			m.logger.Debug("Status monitor stopped.")
			return nil
		case <-ticker.C:
			m.Tick(ctx)
		}
	}
}
