// internal/humanoid/humanoid_test.go
package humanoid

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// =============================================================================
// Test Infrastructure: Mocks and Helpers
// =============================================================================

// mockExecutor records every event and never really sleeps.
type mockExecutor struct {
	mu     sync.Mutex
	events []MouseEventData
	sleeps []time.Duration

	geometry    *ElementGeometry
	geometryErr error

	// failOn makes the Nth DispatchMouseEvent call fail.
	failOn    int
	calls     int
	sleepHook func(ctx context.Context) error
}

func (m *mockExecutor) Sleep(ctx context.Context, d time.Duration) error {
	m.mu.Lock()
	m.sleeps = append(m.sleeps, d)
	hook := m.sleepHook
	m.mu.Unlock()
	if hook != nil {
		if err := hook(ctx); err != nil {
			return err
		}
	}
	return ctx.Err()
}

func (m *mockExecutor) DispatchMouseEvent(ctx context.Context, data MouseEventData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.failOn > 0 && m.calls == m.failOn {
		return errors.New("target closed")
	}
	m.events = append(m.events, data)
	return nil
}

func (m *mockExecutor) GetElementGeometry(ctx context.Context, selector string) (*ElementGeometry, error) {
	if m.geometryErr != nil {
		return nil, m.geometryErr
	}
	return m.geometry, nil
}

func (m *mockExecutor) ofType(t MouseEventType) []MouseEventData {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []MouseEventData
	for _, e := range m.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func box(x, y, w, h float64) *ElementGeometry {
	return &ElementGeometry{
		Vertices: []float64{x, y, x + w, y, x + w, y + h, x, y + h},
		Width:    int64(w),
		Height:   int64(h),
	}
}

func newTestHumanoid(t *testing.T, exec Executor) *Humanoid {
	cfg := DefaultConfig()
	cfg.Rng = rand.New(rand.NewSource(42))
	return New(cfg, exec, zaptest.NewLogger(t))
}

// =============================================================================
// Tests
// =============================================================================

func TestIntelligentClick_PressHoldRelease(t *testing.T) {
	exec := &mockExecutor{geometry: box(100, 200, 80, 30)}
	h := newTestHumanoid(t, exec)

	require.NoError(t, h.IntelligentClick(context.Background(), "[data-x]"))

	moves := exec.ofType(MouseMove)
	require.GreaterOrEqual(t, len(moves), 2, "cursor must travel before clicking")
	presses := exec.ofType(MousePress)
	releases := exec.ofType(MouseRelease)
	require.Len(t, presses, 1)
	require.Len(t, releases, 1)

	p, r := presses[0], releases[0]
	assert.Equal(t, ButtonLeft, p.Button)
	assert.Equal(t, int64(1), p.Buttons)
	assert.Equal(t, int64(0), r.Buttons)
	assert.Equal(t, p.X, r.X)
	assert.Equal(t, p.Y, r.Y)

	last := moves[len(moves)-1]
	assert.Equal(t, last.X, p.X, "press lands where the cursor stopped")
	assert.Equal(t, last.Y, p.Y)
	assert.True(t, p.X > 100 && p.X < 180, "press inside the element horizontally: %v", p.X)
	assert.True(t, p.Y > 200 && p.Y < 230, "press inside the element vertically: %v", p.Y)

	// Press comes after every move.
	exec.mu.Lock()
	assert.Equal(t, MousePress, exec.events[len(exec.events)-2].Type)
	assert.Equal(t, MouseRelease, exec.events[len(exec.events)-1].Type)
	exec.mu.Unlock()
}

func TestIntelligentClick_HoldWithinBounds(t *testing.T) {
	for i := 0; i < 20; i++ {
		h := newTestHumanoid(t, &mockExecutor{})
		h.rng = rand.New(rand.NewSource(int64(i)))
		d := h.holdDuration()
		assert.GreaterOrEqual(t, d, h.cfg.ClickHoldMin)
		assert.LessOrEqual(t, d, h.cfg.ClickHoldMax)
	}
}

func TestIntelligentClick_GeometryError(t *testing.T) {
	exec := &mockExecutor{geometryErr: errors.New("not visible")}
	h := newTestHumanoid(t, exec)

	err := h.IntelligentClick(context.Background(), "#gone")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "#gone")
	assert.Empty(t, exec.ofType(MousePress))
}

func TestIntelligentClick_InvalidGeometry(t *testing.T) {
	exec := &mockExecutor{geometry: &ElementGeometry{Vertices: []float64{1, 2}}}
	h := newTestHumanoid(t, exec)

	err := h.IntelligentClick(context.Background(), "#flat")
	assert.ErrorContains(t, err, "invalid geometry")
}

func TestIntelligentClick_ReleasesAfterCancelledHold(t *testing.T) {
	exec := &mockExecutor{geometry: box(0, 0, 50, 50)}
	h := newTestHumanoid(t, exec)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	exec.sleepHook = func(context.Context) error {
		if len(exec.ofType(MousePress)) == 1 {
			cancel()
		}
		return nil
	}

	err := h.IntelligentClick(ctx, "#b")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, exec.ofType(MouseRelease), 1, "a press is always followed by a release")
}

func TestMoveToVector_EndsExactlyOnTarget(t *testing.T) {
	exec := &mockExecutor{}
	h := newTestHumanoid(t, exec)
	target := Vector2D{X: 640, Y: 360}

	require.NoError(t, h.MoveToVector(context.Background(), target))

	moves := exec.ofType(MouseMove)
	require.NotEmpty(t, moves)
	last := moves[len(moves)-1]
	assert.Equal(t, target.X, last.X)
	assert.Equal(t, target.Y, last.Y)
	assert.Equal(t, target, h.Position())
}

func TestMoveToVector_DispatchFailure(t *testing.T) {
	exec := &mockExecutor{failOn: 2}
	h := newTestHumanoid(t, exec)

	err := h.MoveToVector(context.Background(), Vector2D{X: 500, Y: 500})
	assert.Error(t, err)
	assert.Len(t, exec.ofType(MouseMove), 1)
}

func TestHelpers(t *testing.T) {
	t.Run("Easing", func(t *testing.T) {
		assert.Equal(t, 0.0, computeEaseInOutCubic(0))
		assert.Equal(t, 1.0, computeEaseInOutCubic(1))
		assert.InDelta(t, 0.5, computeEaseInOutCubic(0.5), 1e-9)
	})

	t.Run("Center", func(t *testing.T) {
		c, ok := box(10, 20, 100, 40).Center()
		require.True(t, ok)
		assert.Equal(t, Vector2D{X: 60, Y: 40}, c)

		var nilGeo *ElementGeometry
		_, ok = nilGeo.Center()
		assert.False(t, ok)
	})

	t.Run("Vector", func(t *testing.T) {
		v := Vector2D{X: 3, Y: 4}
		assert.Equal(t, 5.0, v.Mag())
		assert.Equal(t, Vector2D{X: -4, Y: 3}, v.Perp())
		assert.Equal(t, Vector2D{}, Vector2D{}.Normalize())
		assert.InDelta(t, 1.0, v.Normalize().Mag(), 1e-9)
	})

	t.Run("ConfigNormalize", func(t *testing.T) {
		cfg := Config{ClickHoldMin: 50 * time.Millisecond, ClickHoldMax: 10 * time.Millisecond, Jitter: -1}
		cfg.normalize()
		assert.Equal(t, cfg.ClickHoldMin, cfg.ClickHoldMax)
		assert.Equal(t, 0.0, cfg.Jitter)
		assert.Equal(t, DefaultConfig().StepsPerSecond, cfg.StepsPerSecond)
	})
}
