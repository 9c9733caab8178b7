// internal/browser/executor.go
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/input"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autosubmit/internal/humanoid"
)

const (
	mouseEventTimeout = 10 * time.Second
	geometryTimeout   = 10 * time.Second
)

// errNotInteractable is returned for nodes that are missing, hidden or sized zero.
var errNotInteractable = errors.New("element not found or not visible")

// cdpExecutor drives the humanoid pointer model through CDP input events.
type cdpExecutor struct {
	tab    *Tab
	eval   evalFunc
	logger *zap.Logger
}

var _ humanoid.Executor = (*cdpExecutor)(nil)

// NewExecutor returns the humanoid.Executor for tab.
func NewExecutor(tab *Tab, logger *zap.Logger) humanoid.Executor {
	return &cdpExecutor{tab: tab, eval: tab.Evaluate, logger: logger.Named("cdp_executor")}
}

func (e *cdpExecutor) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// mouseParams maps a pointer event onto Input.dispatchMouseEvent.
func mouseParams(data humanoid.MouseEventData) *input.DispatchMouseEventParams {
	return input.DispatchMouseEvent(input.MouseType(data.Type), data.X, data.Y).
		WithButton(input.MouseButton(data.Button)).
		WithButtons(data.Buttons).
		WithClickCount(int64(data.ClickCount))
}

func (e *cdpExecutor) DispatchMouseEvent(ctx context.Context, data humanoid.MouseEventData) error {
	opCtx, cancel := context.WithTimeout(ctx, mouseEventTimeout)
	defer cancel()

	err := e.tab.Run(opCtx, mouseParams(data))
	if err != nil && ctx.Err() == nil && errors.Is(opCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("dispatching %s timed out after %v: %w", data.Type, mouseEventTimeout, opCtx.Err())
	}
	return err
}

func (e *cdpExecutor) GetElementGeometry(ctx context.Context, selector string) (*humanoid.ElementGeometry, error) {
	opCtx, cancel := context.WithTimeout(ctx, geometryTimeout)
	defer cancel()

	raw, err := e.eval(opCtx, buildScript("geometry", geometryJS, map[string]string{"sel": selector}))
	if err != nil {
		return nil, fmt.Errorf("geometry for %q: %w", selector, err)
	}
	geo, err := decodeGeometry(raw)
	if err != nil {
		e.logger.Debug("No usable geometry.", zap.String("selector", selector), zap.Error(err))
		return nil, fmt.Errorf("geometry for %q: %w", selector, err)
	}
	return geo, nil
}

func decodeGeometry(raw json.RawMessage) (*humanoid.ElementGeometry, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, errNotInteractable
	}
	var geo humanoid.ElementGeometry
	if err := json.Unmarshal(raw, &geo); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", raw, err)
	}
	if geo.Width <= 0 || geo.Height <= 0 {
		return nil, fmt.Errorf("%w (width=%d, height=%d)", errNotInteractable, geo.Width, geo.Height)
	}
	return &geo, nil
}
