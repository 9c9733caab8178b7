// internal/humanoid/config.go
package humanoid

import (
	"math/rand"
	"time"
)

// Config holds the parameters of the pointer model.
type Config struct {
	Rng *rand.Rand

	// Fitts's Law parameters, in milliseconds: MT = A + B*log2(1 + D/W).
	FittsA float64
	FittsB float64

	// ClickHoldMin and ClickHoldMax bound how long the button stays down.
	ClickHoldMin time.Duration
	ClickHoldMax time.Duration

	// Jitter is the standard deviation, in pixels, of per-step cursor noise.
	Jitter float64
	// Curvature scales how far the path bows away from the straight line.
	Curvature float64
	// StepsPerSecond sets how many move events a trajectory dispatches.
	StepsPerSecond float64
}

// DefaultConfig returns a configuration representing an average user.
func DefaultConfig() Config {
	return Config{
		FittsA:         100,
		FittsB:         150,
		ClickHoldMin:   40 * time.Millisecond,
		ClickHoldMax:   80 * time.Millisecond,
		Jitter:         0.6,
		Curvature:      0.15,
		StepsPerSecond: 100,
	}
}

func (c *Config) normalize() {
	d := DefaultConfig()
	if c.StepsPerSecond <= 0 {
		c.StepsPerSecond = d.StepsPerSecond
	}
	if c.ClickHoldMin < 0 {
		c.ClickHoldMin = 0
	}
	if c.ClickHoldMax < c.ClickHoldMin {
		c.ClickHoldMax = c.ClickHoldMin
	}
	if c.Jitter < 0 {
		c.Jitter = 0
	}
}
