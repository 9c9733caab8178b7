// internal/completion/detector.go
package completion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/autosubmit/internal/ui"
)

// ErrTimeout is returned under the Strict policy when the queue never moved
// within the poll budget.
var ErrTimeout = errors.New("completion: queue did not advance within the poll budget")

// Policy selects what happens when polling exhausts without a signature change.
type Policy int

const (
	// Lenient presumes success, logs it, and lets the batch continue.
	Lenient Policy = iota
	// Strict reports ErrTimeout, which aborts the run.
	Strict
)

func (p Policy) String() string {
	if p == Strict {
		return "strict"
	}
	return "lenient"
}

// ParsePolicy converts a config or flag value.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "lenient":
		return Lenient, nil
	case "strict":
		return Strict, nil
	default:
		return Lenient, fmt.Errorf("unknown completion policy %q (want lenient or strict)", s)
	}
}

// Config bounds the verification poll.
type Config struct {
	PollInterval time.Duration
	MaxAttempts  int
	// NudgeEvery re-invokes the submit control on every Nth poll that still
	// finds it on screen. 1 nudges on every such poll.
	NudgeEvery int
	// RecheckDelay is the pause before the single follow-up click that guards
	// against a dropped first activation. Zero disables it.
	RecheckDelay time.Duration
	Policy       Policy
}

// Result describes how verification ended.
type Result struct {
	// Advanced is true when the signature at the watched position changed.
	Advanced bool
	// Presumed is true when the budget ran out under the Lenient policy.
	Presumed bool
	Attempts int
	// Nudges counts extra activations of the submit control. They never
	// count as extra submissions.
	Nudges int
	Before string
	After  string
}

// Detector decides whether a submitted item left the queue. The target never
// acknowledges a submission, so success is inferred from the row signature at
// the watched position changing once the confirmation modal is gone.
type Detector struct {
	adapter ui.Adapter
	submit  ui.Predicate
	cfg     Config
	logger  *zap.Logger
}

// NewDetector creates a Detector that treats any element matching submit as
// the still-open confirmation modal.
func NewDetector(adapter ui.Adapter, submit ui.Predicate, cfg Config, logger *zap.Logger) *Detector {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.NudgeEvery <= 0 {
		cfg.NudgeEvery = 1
	}
	return &Detector{
		adapter: adapter,
		submit:  submit,
		cfg:     cfg,
		logger:  logger.Named("completion"),
	}
}

// Policy returns the exhaustion policy in effect.
func (d *Detector) Policy() Policy { return d.cfg.Policy }

// Capture returns the signature of the row at position, or "" when the
// queue is shorter than that.
func (d *Detector) Capture(ctx context.Context, position int) (string, error) {
	rows, err := d.adapter.ListQueueRows(ctx)
	if err != nil {
		return "", fmt.Errorf("listing queue rows: %w", err)
	}
	if position >= len(rows) {
		return "", nil
	}
	sig, err := d.adapter.RowSignature(ctx, rows[position])
	if err != nil {
		return "", fmt.Errorf("reading row signature: %w", err)
	}
	return sig, nil
}

// Await polls until the row at position no longer carries the before
// signature. The caller has already activated the submit control once.
func (d *Detector) Await(ctx context.Context, position int, before string) (Result, error) {
	res := Result{Before: before, After: before}
	log := d.logger.With(zap.Int("position", position), zap.String("signature", before))

	if d.cfg.RecheckDelay > 0 {
		if err := sleep(ctx, d.cfg.RecheckDelay); err != nil {
			return res, err
		}
		nudged, err := d.nudgeIfPresent(ctx)
		if err != nil {
			return res, err
		}
		if nudged {
			res.Nudges++
			log.Debug("Submit control still present after first click; clicked again.")
		}
	}

	nudges := &rate.Sometimes{Every: d.cfg.NudgeEvery}
	for res.Attempts < d.cfg.MaxAttempts {
		res.Attempts++
		if err := sleep(ctx, d.cfg.PollInterval); err != nil {
			return res, err
		}

		el, present, err := d.adapter.FindActionable(ctx, d.submit)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			log.Debug("Submit control lookup failed; treating poll as inconclusive.", zap.Error(err))
			continue
		}
		if present {
			// The modal is still up, so the queue cannot be trusted yet.
			var invokeErr error
			nudges.Do(func() {
				invokeErr = d.adapter.Invoke(ctx, el)
				res.Nudges++
			})
			if invokeErr != nil {
				if ctx.Err() != nil {
					return res, ctx.Err()
				}
				log.Debug("Nudge click failed.", zap.Error(invokeErr))
			}
			continue
		}

		after, err := d.Capture(ctx, position)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			log.Debug("Queue read failed during verification.", zap.Error(err))
			continue
		}
		res.After = after
		if after != before {
			res.Advanced = true
			log.Debug("Queue advanced.", zap.Int("attempts", res.Attempts), zap.String("new_signature", after))
			return res, nil
		}
	}

	if d.cfg.Policy == Strict {
		return res, fmt.Errorf("%w after %d polls", ErrTimeout, res.Attempts)
	}
	res.Presumed = true
	log.Warn("Queue did not advance within the poll budget; presuming success.",
		zap.Int("attempts", res.Attempts), zap.Int("nudges", res.Nudges))
	return res, nil
}

func (d *Detector) nudgeIfPresent(ctx context.Context) (bool, error) {
	el, present, err := d.adapter.FindActionable(ctx, d.submit)
	if err != nil || !present {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, nil
	}
	if err := d.adapter.Invoke(ctx, el); err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, nil
	}
	return true, nil
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
