// internal/browser/tab.go
package browser

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// Tab is the attached browser tab. Its context carries the chromedp target;
// every call runs under that context combined with the caller's.
type Tab struct {
	ctx    context.Context
	logger *zap.Logger
}

// Run executes actions against the tab. When the caller's context ends first
// its error is returned rather than chromedp's wrapping of it.
func (t *Tab) Run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := CombineContext(t.ctx, ctx)
	defer cancel()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if t.ctx.Err() != nil {
			return fmt.Errorf("browser: tab closed: %w", err)
		}
		return err
	}
	return nil
}

// Evaluate runs script in the page and returns its result. Scripts built by
// buildScript hand back a JSON string, so null results survive the trip.
func (t *Tab) Evaluate(ctx context.Context, script string) (json.RawMessage, error) {
	var encoded string
	err := t.Run(ctx, chromedp.Evaluate(script, &encoded, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithReturnByValue(true).WithAwaitPromise(true).WithSilent(true)
	}))
	if err != nil {
		return nil, err
	}
	return json.RawMessage(encoded), nil
}

// jsonEncode renders v as a JavaScript literal.
func jsonEncode(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}
