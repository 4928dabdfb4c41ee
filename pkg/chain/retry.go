package chain

import (
	"context"
	"time"
)

// Retry calls fn until it reports true, at most retries+1 times, sleeping
// interval between attempts. It returns false once attempts are exhausted or
// ctx is done.
func Retry(ctx context.Context, retries int, interval time.Duration, fn func(context.Context) bool) bool {
	if retries < 0 {
		retries = 0
	}

	for attempt := 0; ; attempt++ {
		if fn(ctx) {
			return true
		}
		if attempt >= retries {
			return false
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}
	}
}
