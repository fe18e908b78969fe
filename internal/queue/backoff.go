package queue

import "time"

// Retry delays indexed by retry count. The scheduler interval stays
// fixed; these delays space out next_attempt_at so a flapping upstream
// is not hammered on every tick.
var backoffDelays = []time.Duration{
	0,
	1 * time.Minute,
	5 * time.Minute,
	15 * time.Minute,
	1 * time.Hour,
}

// BackoffDelay returns the delay before the next attempt given the
// number of failures so far. Counts beyond the table reuse the final
// delay.
func BackoffDelay(retryCount int) time.Duration {
	index := retryCount
	if index < 0 {
		index = 0
	}
	if index >= len(backoffDelays) {
		index = len(backoffDelays) - 1
	}
	return backoffDelays[index]
}
