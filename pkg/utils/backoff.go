package utils

import "time"

// BackoffDelay returns base doubled per completed attempt: attempt 1 waits
// base, attempt 2 waits 2*base, attempt 3 waits 4*base.
func BackoffDelay(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	return delay
}
