package infra

import (
	"time"
)

const (
	backoffBase = 1 * time.Second
	backoffMax  = 60 * time.Second
)

// CalculateBackoff returns the delay before retry attempt retryCount:
// backoffBase * 2^retryCount, capped at backoffMax. Negative counts get the
// base delay. Reconnecting transports and snapshot fetch loops share it.
func CalculateBackoff(retryCount int) time.Duration {
	if retryCount < 0 {
		return backoffBase
	}

	// Shifts beyond 30 would overflow long before reaching the cap.
	if retryCount > 30 {
		return backoffMax
	}

	backoff := backoffBase * time.Duration(1<<retryCount)
	if backoff > backoffMax {
		return backoffMax
	}
	return backoff
}
