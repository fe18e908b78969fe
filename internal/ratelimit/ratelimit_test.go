package ratelimit

import (
	"testing"
	"time"
)

func TestAllowWithinLimit(t *testing.T) {
	t.Parallel()

	limiter := New(3)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		if !limiter.Allow("client-a", now) {
			t.Fatalf("request %d denied under the limit", i+1)
		}
	}
	if limiter.Allow("client-a", now) {
		t.Error("request over the limit allowed")
	}
}

func TestAllowPerClient(t *testing.T) {
	t.Parallel()

	limiter := New(1)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if !limiter.Allow("client-a", now) {
		t.Fatal("first request for client-a denied")
	}
	if !limiter.Allow("client-b", now) {
		t.Error("client-b throttled by client-a's traffic")
	}
	if limiter.Allow("client-a", now) {
		t.Error("client-a's second request allowed")
	}
}

func TestAllowBucketRollover(t *testing.T) {
	t.Parallel()

	limiter := New(1)
	now := time.Date(2025, 6, 1, 12, 0, 30, 0, time.UTC)

	if !limiter.Allow("client-a", now) {
		t.Fatal("first request denied")
	}
	if limiter.Allow("client-a", now.Add(10*time.Second)) {
		t.Error("second request in the same bucket allowed")
	}
	if !limiter.Allow("client-a", now.Add(time.Minute)) {
		t.Error("request in the next bucket denied")
	}
}

func TestAllowZeroLimitDisables(t *testing.T) {
	t.Parallel()

	limiter := New(0)
	now := time.Now()
	for i := 0; i < 100; i++ {
		if !limiter.Allow("client-a", now) {
			t.Fatal("zero limit should disable throttling")
		}
	}
}
