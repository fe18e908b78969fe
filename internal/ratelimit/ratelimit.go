// Package ratelimit provides the approximate per-client intake rate
// limiter: an in-memory counter map keyed by client and time bucket.
// State is ephemeral by design and lost on restart.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter counts requests per client within fixed one-minute buckets.
// The whole read-modify-write happens under one mutex acquisition; no
// cross-request ordering is needed since the limit is approximate.
type Limiter struct {
	mu          sync.Mutex
	limit       int
	bucket      time.Duration
	bucketStart int64
	counts      map[string]int
}

func New(limitPerMinute int) *Limiter {
	return &Limiter{
		limit:  limitPerMinute,
		bucket: time.Minute,
		counts: make(map[string]int),
	}
}

// Allow records one request for the client and reports whether it is
// within the limit for the current bucket.
func (l *Limiter) Allow(client string, now time.Time) bool {
	if l.limit <= 0 {
		return true
	}

	bucket := now.UnixNano() / int64(l.bucket)

	l.mu.Lock()
	defer l.mu.Unlock()

	if bucket != l.bucketStart {
		l.bucketStart = bucket
		l.counts = make(map[string]int)
	}

	l.counts[client]++
	return l.counts[client] <= l.limit
}
