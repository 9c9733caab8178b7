// internal/humanoid/executor.go
package humanoid

import (
	"context"
	"time"
)

// Executor is the browser side of the pointer model. The production
// implementation dispatches CDP input events; tests record them.
type Executor interface {
	// Sleep pauses execution, respecting context cancellation.
	Sleep(ctx context.Context, d time.Duration) error

	// DispatchMouseEvent sends one raw mouse event.
	DispatchMouseEvent(ctx context.Context, data MouseEventData) error

	// GetElementGeometry returns the box of the first visible element
	// matching selector.
	GetElementGeometry(ctx context.Context, selector string) (*ElementGeometry, error)
}
