package monitor

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/autosubmit/internal/mode"
	"github.com/xkilldash9x/autosubmit/internal/ui/uitest"
)

type flagBusy struct{ v atomic.Bool }

func (b *flagBusy) Active() bool { return b.v.Load() }

type recordingSink struct {
	mu    sync.Mutex
	modes []mode.Mode
}

func (s *recordingSink) Status(st Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modes = append(s.modes, st.Mode)
}

func (s *recordingSink) seen() []mode.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]mode.Mode(nil), s.modes...)
}

func newMonitor(t *testing.T, page *uitest.Page, busy Busy, sink Sink) *Monitor {
	t.Helper()
	logger := zaptest.NewLogger(t)
	m := New(mode.NewDetector(page, mode.DefaultKeywords, logger), busy, sink, time.Millisecond, logger)
	// Tests drive ticks directly; lift the page read cap.
	m.limiter.SetLimit(1e9)
	m.limiter.SetBurst(1e6)
	return m
}

func TestTick_PublishesOnlyChanges(t *testing.T) {
	page := uitest.NewPage("A")
	sink := &recordingSink{}
	m := newMonitor(t, page, nil, sink)
	ctx := context.Background()

	st, ok := m.Tick(ctx)
	require.True(t, ok)
	assert.Equal(t, mode.DraftSubmit, st.Mode)

	_, ok = m.Tick(ctx)
	require.True(t, ok)

	page.SetTab("Failed jobs")
	m.Tick(ctx)
	page.SetTab("Completed")
	m.Tick(ctx)

	assert.Equal(t, []mode.Mode{mode.DraftSubmit, mode.FailedReprocess, mode.Idle}, sink.seen())
}

func TestTick_NoOpWhileBusy(t *testing.T) {
	page := uitest.NewPage("A")
	sink := &recordingSink{}
	busy := &flagBusy{}
	busy.v.Store(true)
	m := newMonitor(t, page, busy, sink)

	_, ok := m.Tick(context.Background())
	assert.False(t, ok)
	assert.Empty(t, sink.seen())

	busy.v.Store(false)
	_, ok = m.Tick(context.Background())
	assert.True(t, ok)
	assert.Len(t, sink.seen(), 1)
}

func TestTick_RateLimited(t *testing.T) {
	page := uitest.NewPage("A")
	logger := zaptest.NewLogger(t)
	m := New(mode.NewDetector(page, mode.DefaultKeywords, logger), nil, nil, time.Hour, logger)

	_, ok := m.Tick(context.Background())
	assert.True(t, ok)
	_, ok = m.Tick(context.Background())
	assert.False(t, ok, "a second read inside one interval is dropped")
}

// countingTabs reports a draft tab and counts reads; onRead runs inside each.
type countingTabs struct {
	reads  atomic.Int64
	onRead func()
}

func (c *countingTabs) ActiveTabLabel(context.Context) (string, error) {
	c.reads.Add(1)
	if c.onRead != nil {
		c.onRead()
	}
	return "Drafts", nil
}

func TestTick_RunStartsDuringDetection(t *testing.T) {
	busy := &flagBusy{}
	tabs := &countingTabs{onRead: func() { busy.v.Store(true) }}
	sink := &recordingSink{}
	logger := zaptest.NewLogger(t)
	m := New(mode.NewDetector(tabs, mode.DefaultKeywords, logger), busy, sink, time.Hour, logger)

	_, ok := m.Tick(context.Background())
	assert.False(t, ok)
	assert.Equal(t, int64(1), tabs.reads.Load())
	assert.Empty(t, sink.seen(), "a light read before the run began is not shown")
}

func TestRun_RefreshesEveryInterval(t *testing.T) {
	defer goleak.VerifyNone(t)

	const interval = 20 * time.Millisecond
	tabs := &countingTabs{}
	logger := zaptest.NewLogger(t)
	m := New(mode.NewDetector(tabs, mode.DefaultKeywords, logger), nil, nil, interval, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 600*time.Millisecond)
	defer cancel()
	start := time.Now()
	require.NoError(t, m.Run(ctx))
	elapsed := time.Since(start)

	want := int64(elapsed / interval)
	got := tabs.reads.Load()
	assert.GreaterOrEqual(t, got, want*3/4, "ticks were dropped: %d reads in %s", got, elapsed)
	assert.LessOrEqual(t, got, want+2)
}

func TestRun_StopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	page := uitest.NewPage("A")
	sink := &recordingSink{}
	m := newMonitor(t, page, nil, sink)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	require.Eventually(t, func() bool { return len(sink.seen()) == 1 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop")
	}
}

func TestNew_DefaultInterval(t *testing.T) {
	page := uitest.NewPage()
	logger := zaptest.NewLogger(t)
	m := New(mode.NewDetector(page, mode.DefaultKeywords, logger), nil, nil, 0, logger)
	assert.Equal(t, DefaultInterval, m.interval)
}
