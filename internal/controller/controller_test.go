package controller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/autosubmit/internal/completion"
	"github.com/xkilldash9x/autosubmit/internal/mode"
	"github.com/xkilldash9x/autosubmit/internal/orchestrator"
	"github.com/xkilldash9x/autosubmit/internal/ui/uitest"
)

// -- Test Helpers --

type recordingReporter struct {
	mu       sync.Mutex
	progress []Progress
	reports  []Report
}

func (r *recordingReporter) Progress(p Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, p)
}

func (r *recordingReporter) Finished(rep Report) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, rep)
}

// runnerFunc lets tests stand in for the orchestrator.
type runnerFunc func(ctx context.Context, m mode.Mode, count int, obs orchestrator.Observer) orchestrator.Summary

func (f runnerFunc) Run(ctx context.Context, m mode.Mode, count int, obs orchestrator.Observer) orchestrator.Summary {
	return f(ctx, m, count, obs)
}

func realRunner(t *testing.T, page *uitest.Page) Runner {
	t.Helper()
	logger := zaptest.NewLogger(t)
	labels := orchestrator.Labels{
		Advance:     uitest.DefaultLabels.Advance,
		Submit:      uitest.DefaultLabels.Submit,
		CloneAction: uitest.DefaultLabels.Clone,
		QuotaMarker: "Daily quota",
	}
	det := completion.NewDetector(page, orchestrator.SubmitPredicate(labels), completion.Config{
		PollInterval: time.Millisecond,
		MaxAttempts:  5,
	}, logger)
	return orchestrator.New(page, det, orchestrator.Config{
		Labels: labels,
		Timing: orchestrator.Timing{MenuPollAttempts: 2},
	}, logger)
}

func newController(t *testing.T, page *uitest.Page, runner Runner, confirmer Confirmer, rep Reporter) *Controller {
	t.Helper()
	logger := zaptest.NewLogger(t)
	return New(page, mode.NewDetector(page, mode.DefaultKeywords, logger), runner, confirmer, rep, logger)
}

// -- Start --

func TestStart_RunsDetectedModeAndReports(t *testing.T) {
	defer goleak.VerifyNone(t)

	page := uitest.NewPage("A", "B")
	rep := &recordingReporter{}
	c := newController(t, page, realRunner(t, page), nil, rep)

	report, err := c.Start(context.Background(), Request{Count: 2})
	require.NoError(t, err)

	assert.Equal(t, mode.DraftSubmit, report.Mode)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 2, report.Summary.Done)
	assert.Equal(t, orchestrator.StopCompleted, report.Summary.Stop)
	assert.False(t, c.Active(), "session must be released after completion")

	require.Len(t, rep.reports, 1)
	assert.Equal(t, report.RunID, rep.reports[0].RunID)
	require.NotEmpty(t, rep.progress)
	last := rep.progress[len(rep.progress)-1]
	assert.Equal(t, 2, last.Index)
	assert.Equal(t, 2, last.Done)
	assert.Equal(t, orchestrator.StateDone, last.State)
}

func TestStart_RefusesWhenIdle(t *testing.T) {
	page := uitest.NewPage("A")
	page.SetTab("Completed")
	c := newController(t, page, realRunner(t, page), nil, nil)

	_, err := c.Start(context.Background(), Request{Count: 1})
	assert.ErrorIs(t, err, ErrNotReady)
	assert.False(t, c.Active())
	assert.Empty(t, page.Touched())
}

func TestStart_ExplicitModeSkipsDetection(t *testing.T) {
	page := uitest.NewPage("A")
	page.SetTab("Completed")
	c := newController(t, page, realRunner(t, page), nil, nil)

	report, err := c.Start(context.Background(), Request{Count: 1, Mode: mode.DraftSubmit})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Summary.Done)
}

func TestStart_RejectsBadCount(t *testing.T) {
	page := uitest.NewPage("A")
	c := newController(t, page, realRunner(t, page), nil, nil)

	_, err := c.Start(context.Background(), Request{Count: 0})
	assert.ErrorIs(t, err, ErrInvalidCount)
}

func TestStart_CountExceedsSupply(t *testing.T) {
	t.Run("Declined", func(t *testing.T) {
		page := uitest.NewPage("A", "B")
		var asked [2]int
		confirmer := ConfirmFunc(func(_ context.Context, requested, available int) (bool, error) {
			asked = [2]int{requested, available}
			return false, nil
		})
		c := newController(t, page, realRunner(t, page), confirmer, nil)

		_, err := c.Start(context.Background(), Request{Count: 5})
		assert.ErrorIs(t, err, ErrDeclined)
		assert.Equal(t, [2]int{5, 2}, asked)
		assert.False(t, c.Active())
		assert.Empty(t, page.Touched(), "declining must not change anything")
	})

	t.Run("NilConfirmerDeclines", func(t *testing.T) {
		page := uitest.NewPage("A")
		c := newController(t, page, realRunner(t, page), nil, nil)

		_, err := c.Start(context.Background(), Request{Count: 3})
		assert.ErrorIs(t, err, ErrDeclined)
	})

	t.Run("Approved", func(t *testing.T) {
		page := uitest.NewPage("A", "B")
		c := newController(t, page, realRunner(t, page), AlwaysConfirm, nil)

		report, err := c.Start(context.Background(), Request{Count: 5})
		require.NoError(t, err)
		assert.Equal(t, orchestrator.StopQueueEmpty, report.Summary.Stop)
		assert.Equal(t, 2, report.Summary.Done)
	})

	t.Run("ConfirmerError", func(t *testing.T) {
		page := uitest.NewPage("A")
		boom := errors.New("stdin closed")
		confirmer := ConfirmFunc(func(context.Context, int, int) (bool, error) { return false, boom })
		c := newController(t, page, realRunner(t, page), confirmer, nil)

		_, err := c.Start(context.Background(), Request{Count: 2})
		assert.ErrorIs(t, err, boom)
		assert.False(t, c.Active())
	})
}

// -- Single Flight and Stop --

func TestStart_SingleFlight(t *testing.T) {
	defer goleak.VerifyNone(t)

	page := uitest.NewPage("A", "B")
	entered := make(chan struct{})
	runner := runnerFunc(func(ctx context.Context, m mode.Mode, count int, obs orchestrator.Observer) orchestrator.Summary {
		close(entered)
		<-ctx.Done()
		return orchestrator.Summary{Requested: count, Stop: orchestrator.StopCancelled, Err: ctx.Err()}
	})
	c := newController(t, page, runner, nil, nil)

	type result struct {
		report Report
		err    error
	}
	done := make(chan result, 1)
	go func() {
		r, err := c.Start(context.Background(), Request{Count: 1})
		done <- result{r, err}
	}()
	<-entered

	assert.True(t, c.Active())
	snap, ok := c.Snapshot()
	require.True(t, ok)
	assert.True(t, snap.Running)
	assert.Equal(t, mode.DraftSubmit, snap.Mode)
	assert.Equal(t, 1, snap.RequestedCount)

	_, err := c.Start(context.Background(), Request{Count: 1})
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	assert.True(t, c.Stop())
	select {
	case r := <-done:
		require.NoError(t, r.err)
		assert.Equal(t, orchestrator.StopCancelled, r.report.Summary.Stop)
	case <-time.After(time.Second):
		t.Fatal("session did not end after Stop")
	}
	assert.False(t, c.Active())
	assert.False(t, c.Stop(), "Stop without a session reports false")
	_, ok = c.Snapshot()
	assert.False(t, ok)
}

func TestStart_RecoversRunnerPanic(t *testing.T) {
	page := uitest.NewPage("A")
	runner := runnerFunc(func(context.Context, mode.Mode, int, orchestrator.Observer) orchestrator.Summary {
		panic("adapter exploded")
	})
	rep := &recordingReporter{}
	c := newController(t, page, runner, nil, rep)

	report, err := c.Start(context.Background(), Request{Count: 1})
	require.NoError(t, err)
	assert.Equal(t, orchestrator.StopFailed, report.Summary.Stop)
	assert.ErrorContains(t, report.Summary.Err, "adapter exploded")
	assert.False(t, c.Active())
	assert.Len(t, rep.reports, 1)
}

func TestStart_FatalReleasesSession(t *testing.T) {
	page := uitest.NewPage("A", "B", "C")
	page.QuotaAfter = 1
	c := newController(t, page, realRunner(t, page), nil, nil)

	report, err := c.Start(context.Background(), Request{Count: 3})
	require.NoError(t, err)
	assert.Equal(t, orchestrator.StopFatal, report.Summary.Stop)
	assert.ErrorIs(t, report.Summary.Err, orchestrator.ErrQuotaExhausted)
	assert.False(t, c.Active())

	// A fresh start is accepted once the session is gone; the quota is still up.
	report, err = c.Start(context.Background(), Request{Count: 1})
	require.NoError(t, err)
	assert.Equal(t, orchestrator.StopFatal, report.Summary.Stop)
}
