// internal/humanoid/trajectory.go
package humanoid

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"
)

// computeEaseInOutCubic provides a smooth acceleration and deceleration profile.
func computeEaseInOutCubic(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	return 1 - math.Pow(-2*t+2, 3)/2
}

// fittsDuration is the travel time for a move of the given distance.
func (h *Humanoid) fittsDuration(distance float64) time.Duration {
	const w = 30.0
	mt := h.cfg.FittsA + h.cfg.FittsB*math.Log2(1+distance/w)

	h.mu.Lock()
	mt += mt * (h.rng.Float64()*0.3 - 0.15)
	h.mu.Unlock()

	if mt < 0 {
		mt = 0
	}
	return time.Duration(mt * float64(time.Millisecond))
}

// idealPath is a cubic Bezier from start to end whose control points bow to
// one side of the straight line.
func (h *Humanoid) idealPath(start, end Vector2D, steps int) []Vector2D {
	dist := start.Dist(end)
	if dist < 1 || steps <= 1 {
		return []Vector2D{end}
	}
	dir := end.Sub(start).Normalize()
	normal := dir.Perp()

	h.mu.Lock()
	bow1 := (h.rng.Float64()*2 - 1) * h.cfg.Curvature * dist
	bow2 := (h.rng.Float64()*2 - 1) * h.cfg.Curvature * dist * 0.5
	h.mu.Unlock()

	p0, p3 := start, end
	p1 := start.Add(dir.Mul(dist / 3)).Add(normal.Mul(bow1))
	p2 := start.Add(dir.Mul(dist * 2 / 3)).Add(normal.Mul(bow2))

	path := make([]Vector2D, steps)
	for i := range path {
		t := float64(i) / float64(steps-1)
		omt := 1 - t
		path[i] = p0.Mul(omt * omt * omt).
			Add(p1.Mul(3 * omt * omt * t)).
			Add(p2.Mul(3 * omt * t * t)).
			Add(p3.Mul(t * t * t))
	}
	return path
}

// simulateTrajectory dispatches move events along the eased path. The final
// event lands exactly on end.
func (h *Humanoid) simulateTrajectory(ctx context.Context, start, end Vector2D) error {
	duration := h.fittsDuration(start.Dist(end))
	steps := int(duration.Seconds() * h.cfg.StepsPerSecond)
	if steps < 2 {
		steps = 2
	}
	path := h.idealPath(start, end, steps)
	stepDelay := duration / time.Duration(len(path))

	h.mu.Lock()
	held := h.buttons
	h.mu.Unlock()
	var buttons int64
	if held == ButtonLeft {
		buttons = 1
	}

	for i := range path {
		if err := ctx.Err(); err != nil {
			return err
		}
		idx := len(path) - 1
		if len(path) > 1 {
			idx = int(computeEaseInOutCubic(float64(i)/float64(len(path)-1)) * float64(len(path)-1))
		}
		p := path[idx]
		if i < len(path)-1 {
			p = h.jitter(p)
		} else {
			p = end
		}

		if err := h.executor.DispatchMouseEvent(ctx, MouseEventData{
			Type: MouseMove, X: p.X, Y: p.Y, Button: ButtonNone, Buttons: buttons,
		}); err != nil {
			if ctx.Err() == nil {
				h.logger.Warn("Failed to dispatch mouse move event.", zap.Error(err))
			}
			return err
		}
		h.mu.Lock()
		h.currentPos = p
		h.mu.Unlock()

		if err := h.executor.Sleep(ctx, stepDelay); err != nil {
			return err
		}
	}
	return nil
}

func (h *Humanoid) jitter(p Vector2D) Vector2D {
	if h.cfg.Jitter == 0 {
		return p
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return Vector2D{X: p.X + h.rng.NormFloat64()*h.cfg.Jitter, Y: p.Y + h.rng.NormFloat64()*h.cfg.Jitter}
}
