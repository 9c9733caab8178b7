// internal/controller/controller.go
package controller

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autosubmit/internal/mode"
	"github.com/xkilldash9x/autosubmit/internal/orchestrator"
	"github.com/xkilldash9x/autosubmit/internal/ui"
)

var (
	// ErrAlreadyRunning is returned when a start arrives while a session is active.
	ErrAlreadyRunning = errors.New("a run is already in progress")
	// ErrDeclined is returned when the operator refuses a count larger than the queue.
	ErrDeclined = errors.New("run declined")
	// ErrNotReady is returned when no queue view is on screen.
	ErrNotReady = errors.New("no draft or failed queue is active")
	// ErrInvalidCount is returned for a non-positive count.
	ErrInvalidCount = errors.New("count must be a positive integer")
)

// Runner executes a batch. *orchestrator.Orchestrator satisfies it.
type Runner interface {
	Run(ctx context.Context, m mode.Mode, count int, obs orchestrator.Observer) orchestrator.Summary
}

// Confirmer approves a request that asks for more items than are visible.
type Confirmer interface {
	Confirm(ctx context.Context, requested, available int) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, requested, available int) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, requested, available int) (bool, error) {
	return f(ctx, requested, available)
}

// AlwaysConfirm approves every request.
var AlwaysConfirm = ConfirmFunc(func(context.Context, int, int) (bool, error) { return true, nil })

// Reporter receives progress and the final report of each session.
type Reporter interface {
	Progress(p Progress)
	Finished(r Report)
}

// Progress is published on every step change.
type Progress struct {
	RunID     string
	Mode      mode.Mode
	Index     int
	Total     int
	Signature string
	State     orchestrator.State
	Done      int
	Skipped   int
	Failed    int
}

// Report is the outcome of one session.
type Report struct {
	RunID   string
	Mode    mode.Mode
	Summary orchestrator.Summary
}

// Request asks for a run.
type Request struct {
	Count int
	// Mode Idle means detect from the page.
	Mode mode.Mode
}

// Session is a snapshot of the active run.
type Session struct {
	ID             string
	Mode           mode.Mode
	RequestedCount int
	CompletedIndex int
	Running        bool
	LastError      error
	StartedAt      time.Time
}

// Controller owns the single active session.
type Controller struct {
	adapter   ui.Adapter
	modes     *mode.Detector
	runner    Runner
	confirmer Confirmer
	reporter  Reporter
	logger    *zap.Logger

	mu      sync.Mutex
	session *Session
	cancel  context.CancelFunc
}

// New creates a Controller. A nil confirmer declines every oversized request.
func New(adapter ui.Adapter, modes *mode.Detector, runner Runner, confirmer Confirmer, reporter Reporter, logger *zap.Logger) *Controller {
	return &Controller{
		adapter:   adapter,
		modes:     modes,
		runner:    runner,
		confirmer: confirmer,
		reporter:  reporter,
		logger:    logger.Named("controller"),
	}
}

// Active reports whether a session is in progress.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session != nil
}

// Snapshot returns a copy of the active session.
func (c *Controller) Snapshot() (Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return Session{}, false
	}
	return *c.session, true
}

// Stop cancels the active session. It reports whether there was one.
func (c *Controller) Stop() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return false
	}
	if c.cancel != nil {
		c.cancel()
	}
	return true
}

// Start runs a session to completion on the calling goroutine. The returned
// error covers refusals only; run failures land in Report.Summary.
func (c *Controller) Start(ctx context.Context, req Request) (Report, error) {
	if req.Count <= 0 {
		return Report{}, ErrInvalidCount
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	if c.session != nil {
		c.mu.Unlock()
		return Report{}, ErrAlreadyRunning
	}
	sess := &Session{
		ID:             uuid.New().String(),
		Mode:           req.Mode,
		RequestedCount: req.Count,
		StartedAt:      time.Now(),
	}
	c.session = sess
	c.cancel = cancel
	c.mu.Unlock()
	defer c.release()

	log := c.logger.With(zap.String("run_id", sess.ID))

	m := req.Mode
	if m == mode.Idle {
		m = c.modes.Detect(runCtx)
	}
	if m == mode.Idle {
		return Report{}, ErrNotReady
	}

	rows, err := c.adapter.ListQueueRows(runCtx)
	if err != nil {
		return Report{}, fmt.Errorf("reading queue: %w", err)
	}
	if req.Count > len(rows) {
		ok, err := c.confirm(runCtx, req.Count, len(rows))
		if err != nil {
			return Report{}, fmt.Errorf("confirming count: %w", err)
		}
		if !ok {
			log.Info("Run declined.", zap.Int("requested", req.Count), zap.Int("available", len(rows)))
			return Report{}, ErrDeclined
		}
	}

	c.mu.Lock()
	sess.Mode = m
	sess.Running = true
	c.mu.Unlock()

	log.Info("Run started.", zap.Stringer("mode", m), zap.Int("requested", req.Count), zap.Int("visible", len(rows)))
	obs := &progressObserver{c: c, sess: sess, reporter: c.reporter}
	sum := c.run(runCtx, m, req.Count, obs, log)

	c.mu.Lock()
	sess.LastError = sum.Err
	c.mu.Unlock()

	fields := []zap.Field{
		zap.Stringer("stop", sum.Stop),
		zap.Int("done", sum.Done),
		zap.Int("presumed", sum.Presumed),
		zap.Int("skipped", sum.Skipped),
		zap.Int("failed", sum.Failed),
		zap.Duration("duration", sum.Duration),
	}
	switch sum.Stop {
	case orchestrator.StopCompleted, orchestrator.StopQueueEmpty:
		log.Info("Run finished.", fields...)
	case orchestrator.StopCancelled:
		log.Warn("Run stopped.", fields...)
	default:
		log.Error("Run aborted.", append(fields, zap.Error(sum.Err))...)
	}

	report := Report{RunID: sess.ID, Mode: m, Summary: sum}
	if c.reporter != nil {
		c.reporter.Finished(report)
	}
	return report, nil
}

// run calls the runner and converts a panic into a failed summary.
func (c *Controller) run(ctx context.Context, m mode.Mode, count int, obs orchestrator.Observer, log *zap.Logger) (sum orchestrator.Summary) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("Run panicked.", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			sum.Requested = count
			sum.Stop = orchestrator.StopFailed
			sum.Err = fmt.Errorf("run panicked: %v", r)
		}
	}()
	return c.runner.Run(ctx, m, count, obs)
}

func (c *Controller) confirm(ctx context.Context, requested, available int) (bool, error) {
	if c.confirmer == nil {
		return false, nil
	}
	return c.confirmer.Confirm(ctx, requested, available)
}

func (c *Controller) release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = nil
	c.cancel = nil
}

// progressObserver folds orchestrator events into the session and forwards
// them to the reporter.
type progressObserver struct {
	c        *Controller
	sess     *Session
	reporter Reporter

	current orchestrator.Outcome
	total   int
	done    int
	skipped int
	failed  int
}

func (p *progressObserver) publish(state orchestrator.State) {
	if p.reporter == nil {
		return
	}
	p.reporter.Progress(Progress{
		RunID:     p.sess.ID,
		Mode:      p.sess.Mode,
		Index:     p.current.Index,
		Total:     p.total,
		Signature: p.current.Signature,
		State:     state,
		Done:      p.done,
		Skipped:   p.skipped,
		Failed:    p.failed,
	})
}

func (p *progressObserver) ItemStarted(index, total int, sig string) {
	p.current = orchestrator.Outcome{Index: index, Signature: sig}
	p.total = total
	p.publish(orchestrator.StateIdle)
}

func (p *progressObserver) Transition(index int, from, to orchestrator.State) {
	if to.Terminal() {
		return
	}
	p.publish(to)
}

func (p *progressObserver) ItemFinished(out orchestrator.Outcome) {
	switch out.State {
	case orchestrator.StateDone:
		p.done++
	case orchestrator.StateSkipped:
		p.skipped++
	default:
		p.failed++
	}
	p.c.mu.Lock()
	p.sess.CompletedIndex = out.Index
	p.c.mu.Unlock()
	p.current = out
	p.publish(out.State)
}
