// internal/orchestrator/orchestrator.go
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/autosubmit/internal/completion"
	"github.com/xkilldash9x/autosubmit/internal/mode"
	"github.com/xkilldash9x/autosubmit/internal/ui"
)

// returnTimeout bounds the trip back to the source queue, which still runs
// after the run context is cancelled.
const returnTimeout = 15 * time.Second

// Labels are the visible texts the pipeline looks for.
type Labels struct {
	Advance     string
	Submit      string
	CloneAction string
	QuotaMarker string
	// SourceTab is used to navigate back when the active tab label cannot be read.
	SourceTab string
}

// Timing holds every bounded wait in the pipeline.
type Timing struct {
	// ModalSettle is the pause after advancing, before looking for the submit control.
	ModalSettle time.Duration
	// SelectSettle is the pause after clicking the first selection candidate;
	// each later candidate waits SelectSettleStep longer.
	SelectSettle     time.Duration
	SelectSettleStep time.Duration
	MenuPollInterval time.Duration
	MenuPollAttempts int
	// PageTransition is the pause after choosing the clone action.
	PageTransition time.Duration
}

// Config configures an Orchestrator.
type Config struct {
	Labels Labels
	Timing Timing
}

// Orchestrator drives queued items one at a time through the submission
// pipeline. It holds no per-run state; everything lives on the Run call.
type Orchestrator struct {
	adapter  ui.Adapter
	detector *completion.Detector
	cfg      Config
	logger   *zap.Logger
}

// New creates an Orchestrator.
func New(adapter ui.Adapter, detector *completion.Detector, cfg Config, logger *zap.Logger) *Orchestrator {
	if cfg.Timing.MenuPollAttempts <= 0 {
		cfg.Timing.MenuPollAttempts = 1
	}
	return &Orchestrator{
		adapter:  adapter,
		detector: detector,
		cfg:      cfg,
		logger:   logger.Named("orchestrator"),
	}
}

func (o *Orchestrator) advancePredicate() ui.Predicate {
	return ui.Predicate{TextContains: o.cfg.Labels.Advance, Roles: ui.ButtonRoles}
}

func (o *Orchestrator) submitPredicate() ui.Predicate {
	return ui.Predicate{TextContains: o.cfg.Labels.Submit, Roles: ui.ButtonRoles}
}

// SubmitPredicate is the predicate the completion detector must share with
// the orchestrator so both agree on what "modal still open" means.
func SubmitPredicate(labels Labels) ui.Predicate {
	return ui.Predicate{TextContains: labels.Submit, Roles: ui.ButtonRoles}
}

// Run processes up to count items from the live queue in mode m. Every
// error is absorbed into the returned Summary.
func (o *Orchestrator) Run(ctx context.Context, m mode.Mode, count int, obs Observer) (sum Summary) {
	start := time.Now()
	sum.Requested = count
	defer func() { sum.Duration = time.Since(start) }()

	if obs == nil {
		obs = NopObserver{}
	}
	if m != mode.DraftSubmit && m != mode.FailedReprocess {
		sum.Stop = StopFailed
		sum.Err = fmt.Errorf("cannot run in mode %s", m)
		return sum
	}

	log := o.logger.With(zap.String("mode", m.String()), zap.Int("requested", count))
	sourceTab := o.cfg.Labels.SourceTab
	if m == mode.FailedReprocess {
		if label, err := o.adapter.ActiveTabLabel(ctx); err == nil && label != "" {
			sourceTab = label
		}
	}

	// cursor is the display position of the next row to work on. Rows that
	// stay on the list after their turn are stepped over.
	cursor := 0
	// presumed holds signatures submitted without confirmation; a row still
	// carrying one is not submitted twice in the same run.
	presumed := make(map[string]bool)

	for i := 1; i <= count; i++ {
		if err := ctx.Err(); err != nil {
			sum.Stop, sum.Err = StopCancelled, err
			return sum
		}

		hit, err := o.quotaReached(ctx)
		if err != nil {
			sum.Stop, sum.Err = StopCancelled, err
			return sum
		}
		if hit {
			sum.Stop = StopFatal
			sum.Err = &FatalError{Index: i, Step: StepSelect, Err: ErrQuotaExhausted}
			return sum
		}

		row, sig, ok, err := o.pick(ctx, &cursor, presumed)
		if err != nil {
			if ctx.Err() != nil {
				sum.Stop, sum.Err = StopCancelled, ctx.Err()
			} else {
				sum.Stop, sum.Err = StopFailed, err
			}
			return sum
		}
		if !ok {
			log.Info("Queue is empty; nothing left to submit.", zap.Int("index", i))
			sum.Stop = StopQueueEmpty
			return sum
		}

		sum.Attempted++
		obs.ItemStarted(i, count, sig)
		out, err := o.drive(ctx, m, i, row, sig, sourceTab, obs)
		obs.ItemFinished(out)

		switch out.State {
		case StateDone:
			sum.Done++
			if out.Presumed {
				sum.Presumed++
				if m == mode.DraftSubmit {
					presumed[sig] = true
				}
			}
			if m == mode.FailedReprocess {
				cursor++
			}
		case StateSkipped:
			sum.Skipped++
			cursor++
		case StateFailed:
			sum.Failed++
			cursor++
		}

		if err != nil {
			switch {
			case errors.Is(err, ErrFatal):
				sum.Stop = StopFatal
			case ctx.Err() != nil:
				sum.Stop = StopCancelled
			default:
				sum.Stop = StopFailed
			}
			sum.Err = err
			return sum
		}

		if out.State != StateDone && o.detector.Policy() == completion.Strict {
			sum.Stop = StopFatal
			sum.Err = &FatalError{Index: i, Step: out.Step, Err: out.Err}
			return sum
		}
	}

	sum.Stop = StopCompleted
	return sum
}

// pick reads a fresh snapshot and returns the row at the cursor, stepping
// over rows already presumed submitted.
func (o *Orchestrator) pick(ctx context.Context, cursor *int, presumed map[string]bool) (ui.Row, string, bool, error) {
	rows, err := o.adapter.ListQueueRows(ctx)
	if err != nil {
		return ui.Row{}, "", false, fmt.Errorf("reading queue: %w", err)
	}
	for *cursor < len(rows) {
		row := rows[*cursor]
		sig, err := o.adapter.RowSignature(ctx, row)
		if err != nil {
			return ui.Row{}, "", false, fmt.Errorf("reading row %d signature: %w", *cursor, err)
		}
		if !presumed[sig] {
			return row, sig, true, nil
		}
		o.logger.Warn("Row still listed after a presumed submission; not submitting it again.",
			zap.Int("position", *cursor), zap.String("signature", sig))
		*cursor++
	}
	return ui.Row{}, "", false, nil
}

func (o *Orchestrator) quotaReached(ctx context.Context) (bool, error) {
	if o.cfg.Labels.QuotaMarker == "" {
		return false, nil
	}
	hit, err := o.adapter.PageContains(ctx, o.cfg.Labels.QuotaMarker)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		o.logger.Debug("Quota marker lookup failed.", zap.Error(err))
		return false, nil
	}
	return hit, nil
}

// item tracks one row's trip through the state machine.
type item struct {
	o        *Orchestrator
	obs      Observer
	index    int
	state    State
	presumed bool
	nudges   int
	log      *zap.Logger
}

func (it *item) to(s State) {
	it.obs.Transition(it.index, it.state, s)
	it.log.Debug("Item state change.", zap.Stringer("from", it.state), zap.Stringer("to", s))
	it.state = s
}

// drive runs one row to a terminal state. The returned error is non-nil only
// for conditions that end the run: fatal errors and cancellation.
func (o *Orchestrator) drive(ctx context.Context, m mode.Mode, index int, row ui.Row, sig, sourceTab string, obs Observer) (out Outcome, err error) {
	started := time.Now()
	it := &item{
		o:     o,
		obs:   obs,
		index: index,
		state: StateIdle,
		log:   o.logger.With(zap.Int("index", index), zap.String("signature", sig)),
	}
	out = Outcome{Index: index, Signature: sig}

	var phaseErr error
	verifyPos := row.Position
	switch m {
	case mode.FailedReprocess:
		// The clone lands on a fresh view; its list is watched from the top.
		verifyPos = 0
		defer func() {
			if navErr := o.returnToSource(ctx, sourceTab); navErr != nil && err == nil {
				err = &FatalError{Index: index, Step: StepReturn, Err: fmt.Errorf("%w: %v", ErrLostSourceQueue, navErr)}
			}
		}()
		phaseErr = it.cloneRow(ctx, row)
	default:
		phaseErr = it.selectRow(ctx, row)
	}
	if phaseErr == nil {
		phaseErr = it.advance(ctx)
	}
	if phaseErr == nil {
		phaseErr = it.confirmAndVerify(ctx, verifyPos)
	}

	out.Step = it.state.Step()
	out.Presumed = it.presumed
	out.Nudges = it.nudges
	out.Err = phaseErr

	var stepErr *StepError
	switch {
	case phaseErr == nil:
		out.Step = StepVerify
		it.to(StateDone)
		if it.presumed {
			it.log.Warn("Item presumed submitted.", zap.Int("nudges", it.nudges))
		} else {
			it.log.Info("Item submitted.", zap.Int("nudges", it.nudges))
		}
	case errors.Is(phaseErr, ErrFatal):
		it.to(StateFailed)
		err = phaseErr
	case ctx.Err() != nil:
		it.to(StateFailed)
		err = ctx.Err()
	case errors.As(phaseErr, &stepErr):
		out.Step = stepErr.Step
		it.to(StateSkipped)
		it.log.Warn("Item skipped.", zap.String("step", string(stepErr.Step)), zap.Error(stepErr.Err))
	default:
		it.to(StateFailed)
		it.log.Warn("Item failed.", zap.String("step", string(out.Step)), zap.Error(phaseErr))
	}
	out.State = it.state
	out.Duration = time.Since(started)
	return out, err
}

func (o *Orchestrator) returnToSource(ctx context.Context, tab string) error {
	navCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), returnTimeout)
	defer cancel()
	if err := o.adapter.NavigateBack(navCtx, tab); err != nil {
		return err
	}
	o.logger.Debug("Returned to source queue.", zap.String("tab", tab))
	return nil
}

// find looks up a control, folding adapter errors into "not found".
func (it *item) find(ctx context.Context, p ui.Predicate) (ui.Element, bool, error) {
	el, ok, err := it.o.adapter.FindActionable(ctx, p)
	if err != nil {
		if ctx.Err() != nil {
			return ui.Element{}, false, ctx.Err()
		}
		it.log.Debug("Control lookup failed.", zap.Stringer("predicate", p), zap.Error(err))
		return ui.Element{}, false, nil
	}
	return el, ok, nil
}

// selectRow clicks ranked targets inside the row until the advance control
// becomes available.
func (it *item) selectRow(ctx context.Context, row ui.Row) error {
	it.to(StateSelecting)
	tm := it.o.cfg.Timing

	cands, err := it.o.adapter.SelectionCandidates(ctx, row)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return skipped(StepSelect, "no selection targets: %v", err)
	}
	for i, c := range cands {
		if err := it.o.adapter.Invoke(ctx, c); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			it.log.Debug("Selection click failed.", zap.Int("candidate", i), zap.Error(err))
			continue
		}
		if err := sleep(ctx, tm.SelectSettle+time.Duration(i)*tm.SelectSettleStep); err != nil {
			return err
		}
		_, ok, err := it.find(ctx, it.o.advancePredicate())
		if err != nil {
			return err
		}
		if ok {
			it.log.Debug("Row selected.", zap.Int("candidate", i), zap.String("role", c.Role))
			return nil
		}
	}
	return skipped(StepSelect, "advance control never appeared after %d candidates", len(cands))
}

// cloneRow opens the row menu and chooses the clone action, landing on a
// new view that carries the advance control.
func (it *item) cloneRow(ctx context.Context, row ui.Row) error {
	it.to(StateOpeningMenu)
	tm := it.o.cfg.Timing
	label := it.o.cfg.Labels.CloneAction

	opened, err := it.o.adapter.OpenRowMenu(ctx, row)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return skipped(StepOpenMenu, "opening row menu: %v", err)
	}
	if !opened {
		return skipped(StepOpenMenu, "row menu did not open")
	}

	it.to(StateChoosingClone)
	var el ui.Element
	found := false
	for attempt := 1; attempt <= tm.MenuPollAttempts && !found; attempt++ {
		if err := sleep(ctx, tm.MenuPollInterval); err != nil {
			return err
		}
		el, found, err = it.o.adapter.FindMenuAction(ctx, label)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			it.log.Debug("Menu lookup failed.", zap.Int("attempt", attempt), zap.Error(err))
			found = false
		}
	}
	if !found {
		return skipped(StepChooseClone, "%q menu item did not render after %d polls", label, tm.MenuPollAttempts)
	}
	if err := it.o.adapter.Invoke(ctx, el); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return skipped(StepChooseClone, "clicking %q: %v", label, err)
	}
	return sleep(ctx, tm.PageTransition)
}

func (it *item) advance(ctx context.Context) error {
	it.to(StateAwaitingAdvance)
	el, ok, err := it.find(ctx, it.o.advancePredicate())
	if err != nil {
		return err
	}
	if !ok {
		return skipped(StepAdvance, "%q control not found", it.o.cfg.Labels.Advance)
	}
	if err := it.o.adapter.Invoke(ctx, el); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return skipped(StepAdvance, "clicking %q: %v", it.o.cfg.Labels.Advance, err)
	}
	return nil
}

// confirmAndVerify waits for the confirmation modal, submits once, and hands
// verification to the completion detector.
func (it *item) confirmAndVerify(ctx context.Context, verifyPos int) error {
	it.to(StateAwaitingConfirm)
	if err := sleep(ctx, it.o.cfg.Timing.ModalSettle); err != nil {
		return err
	}

	el, ok, err := it.find(ctx, it.o.submitPredicate())
	if err != nil {
		return err
	}
	if !ok {
		hit, err := it.o.quotaReached(ctx)
		if err != nil {
			return err
		}
		if hit {
			return &FatalError{Index: it.index, Step: StepConfirm, Err: ErrQuotaExhausted}
		}
		return skipped(StepConfirm, "confirmation modal did not appear")
	}

	before, err := it.o.detector.Capture(ctx, verifyPos)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return skipped(StepConfirm, "capturing queue signature: %v", err)
	}
	if err := it.o.adapter.Invoke(ctx, el); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return skipped(StepConfirm, "clicking %q: %v", it.o.cfg.Labels.Submit, err)
	}

	it.to(StateVerifying)
	res, err := it.o.detector.Await(ctx, verifyPos, before)
	it.nudges = res.Nudges
	if err != nil {
		return err
	}
	it.presumed = res.Presumed
	return nil
}

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
