// internal/browser/context_utils.go
package browser

import (
	"context"
	"time"
)

// CombineContext derives a context from session (which carries the CDP target)
// that is also canceled when op is done. The cause of an op cancellation is
// preserved and can be read with context.Cause.
func CombineContext(session, op context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancelCause(session)
	stop := context.AfterFunc(op, func() {
		cancel(context.Cause(op))
	})
	return combined, func() {
		stop()
		cancel(context.Canceled)
	}
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
