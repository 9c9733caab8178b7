// internal/humanoid/humanoid.go
package humanoid

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Humanoid moves a virtual cursor and clicks the way a person does: curved
// travel timed by Fitts's Law, a short pause on target, then a press held
// for a plausible time before release.
type Humanoid struct {
	cfg      Config
	executor Executor
	logger   *zap.Logger

	mu         sync.Mutex
	rng        *rand.Rand
	currentPos Vector2D
	buttons    MouseButton
}

// New creates a Humanoid. A nil Config.Rng is seeded from the clock.
func New(cfg Config, executor Executor, logger *zap.Logger) *Humanoid {
	cfg.normalize()
	rng := cfg.Rng
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Humanoid{
		cfg:      cfg,
		executor: executor,
		logger:   logger.Named("humanoid"),
		rng:      rng,
		buttons:  ButtonNone,
	}
}

// Position returns the last dispatched cursor position.
func (h *Humanoid) Position() Vector2D {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.currentPos
}

// MoveTo moves the cursor onto a point inside the element matching selector
// and returns where it landed.
func (h *Humanoid) MoveTo(ctx context.Context, selector string) (Vector2D, error) {
	geo, err := h.executor.GetElementGeometry(ctx, selector)
	if err != nil {
		return Vector2D{}, fmt.Errorf("humanoid: failed to locate target element '%s': %w", selector, err)
	}
	center, ok := geo.Center()
	if !ok {
		return Vector2D{}, fmt.Errorf("humanoid: element '%s' has invalid geometry", selector)
	}
	target := h.targetPoint(geo, center)
	if err := h.MoveToVector(ctx, target); err != nil {
		return Vector2D{}, err
	}
	return target, nil
}

// MoveToVector moves the cursor to an exact coordinate.
func (h *Humanoid) MoveToVector(ctx context.Context, target Vector2D) error {
	h.mu.Lock()
	start := h.currentPos
	h.mu.Unlock()
	return h.simulateTrajectory(ctx, start, target)
}

// IntelligentClick hovers onto the element, pauses, presses, holds and releases.
func (h *Humanoid) IntelligentClick(ctx context.Context, selector string) error {
	start := h.Position()
	target, err := h.MoveTo(ctx, selector)
	if err != nil {
		return err
	}

	if err := h.executor.Sleep(ctx, h.terminalPause(start.Dist(target))); err != nil {
		return err
	}

	pos := h.Position()
	if err := h.executor.DispatchMouseEvent(ctx, MouseEventData{
		Type: MousePress, X: pos.X, Y: pos.Y, Button: ButtonLeft, ClickCount: 1, Buttons: 1,
	}); err != nil {
		return fmt.Errorf("humanoid: mouse press: %w", err)
	}
	h.mu.Lock()
	h.buttons = ButtonLeft
	h.mu.Unlock()

	// The button is released even if the hold is interrupted, so the page
	// never sees a stuck press.
	holdErr := h.executor.Sleep(ctx, h.holdDuration())
	relCtx := ctx
	if holdErr != nil {
		relCtx = context.WithoutCancel(ctx)
	}
	if err := h.executor.DispatchMouseEvent(relCtx, MouseEventData{
		Type: MouseRelease, X: pos.X, Y: pos.Y, Button: ButtonLeft, ClickCount: 1, Buttons: 0,
	}); err != nil {
		h.logger.Debug("Mouse release failed.", zap.Error(err))
		if holdErr == nil {
			return fmt.Errorf("humanoid: mouse release: %w", err)
		}
	}
	h.mu.Lock()
	h.buttons = ButtonNone
	h.mu.Unlock()
	return holdErr
}

// targetPoint picks a Gaussian-distributed point inside the central 90% of
// the element.
func (h *Humanoid) targetPoint(geo *ElementGeometry, center Vector2D) Vector2D {
	if geo.Width <= 0 || geo.Height <= 0 {
		return center
	}
	w, hgt := float64(geo.Width), float64(geo.Height)

	h.mu.Lock()
	ox := h.rng.NormFloat64() * w * 0.9 / 6
	oy := h.rng.NormFloat64() * hgt * 0.9 / 6
	h.mu.Unlock()

	x := math.Max(center.X-w/2+1, math.Min(center.X+w/2-1, center.X+ox))
	y := math.Max(center.Y-hgt/2+1, math.Min(center.Y+hgt/2-1, center.Y+oy))
	return Vector2D{X: x, Y: y}
}

func (h *Humanoid) holdDuration() time.Duration {
	span := h.cfg.ClickHoldMax - h.cfg.ClickHoldMin
	if span <= 0 {
		return h.cfg.ClickHoldMin
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cfg.ClickHoldMin + time.Duration(h.rng.Int63n(int64(span)+1))
}

// terminalPause is the settle time between arriving and pressing.
func (h *Humanoid) terminalPause(distance float64) time.Duration {
	const w = 20.0
	mt := (h.cfg.FittsA + h.cfg.FittsB*math.Log2(1+distance/w)) * 0.25
	h.mu.Lock()
	mt += mt * (h.rng.Float64()*0.2 - 0.1)
	h.mu.Unlock()
	if mt < 0 {
		mt = 0
	}
	return time.Duration(mt * float64(time.Millisecond))
}
