package server

import (
	"testing"
	"time"
)

func TestLoginLimiterSlidingWindow(t *testing.T) {
	now := time.Date(2024, time.June, 15, 12, 0, 0, 0, time.UTC)
	limiter := NewLoginLimiter(2, time.Minute, func() time.Time { return now })

	for attempt := 0; attempt < 2; attempt++ {
		if allowed, _ := limiter.Allow("10.0.0.1"); !allowed {
			t.Fatalf("attempt %d should be allowed", attempt)
		}
	}
	allowed, retryAfter := limiter.Allow("10.0.0.1")
	if allowed {
		t.Fatal("third attempt should be limited")
	}
	if retryAfter != time.Minute {
		t.Fatalf("expected retry after one minute, got %s", retryAfter)
	}
	if allowed, _ := limiter.Allow("10.0.0.2"); !allowed {
		t.Fatal("other clients must not share the bucket")
	}

	now = now.Add(61 * time.Second)
	if allowed, _ := limiter.Allow("10.0.0.1"); !allowed {
		t.Fatal("attempts outside the window should be forgotten")
	}
}

func TestLoginLimiterReset(t *testing.T) {
	limiter := NewLoginLimiter(1, time.Hour, nil)
	if allowed, _ := limiter.Allow("key"); !allowed {
		t.Fatal("first attempt should be allowed")
	}
	limiter.Reset("key")
	if allowed, _ := limiter.Allow("key"); !allowed {
		t.Fatal("attempt after reset should be allowed")
	}
}

func TestLoginLimiterEvictsIdleBuckets(t *testing.T) {
	now := time.Date(2024, time.June, 15, 12, 0, 0, 0, time.UTC)
	limiter := NewLoginLimiter(1, time.Minute, func() time.Time { return now })

	for _, key := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"} {
		if allowed, _ := limiter.Allow(key); !allowed {
			t.Fatalf("first attempt for %s should be allowed", key)
		}
	}
	if count := bucketCount(limiter); count != 3 {
		t.Fatalf("expected 3 buckets, got %d", count)
	}

	now = now.Add(2 * time.Minute)
	if allowed, _ := limiter.Allow("10.0.0.4"); !allowed {
		t.Fatal("new client should be allowed")
	}
	if count := bucketCount(limiter); count != 1 {
		t.Fatalf("expected expired buckets to be evicted, got %d", count)
	}
	if allowed, _ := limiter.Allow("10.0.0.1"); !allowed {
		t.Fatal("evicted client should start a fresh bucket")
	}
	if allowed, _ := limiter.Allow("10.0.0.1"); allowed {
		t.Fatal("fresh bucket must still enforce the limit")
	}
}

func bucketCount(limiter *LoginLimiter) int {
	count := 0
	limiter.buckets.Range(func(interface{}, interface{}) bool {
		count++
		return true
	})
	return count
}
