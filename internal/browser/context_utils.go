// internal/browser/context_utils.go
package browser

import "context"

// CombineContext returns a context derived from primary (keeping its values,
// such as the chromedp target) that is also canceled when secondary is.
// primary is the tab context; secondary carries the caller's deadline.
func CombineContext(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancelCause(primary)
	stop := context.AfterFunc(secondary, func() {
		cancel(context.Cause(secondary))
	})
	return combined, func() {
		stop()
		cancel(context.Canceled)
	}
}
