package server

import (
	"sync"
	"time"
)

// LoginLimiter allows at most max attempts per key inside a sliding window.
type LoginLimiter struct {
	max     int
	window  time.Duration
	clock   func() time.Time
	buckets sync.Map

	sweepMu   sync.Mutex
	lastSweep time.Time
}

type attemptBucket struct {
	mu       sync.Mutex
	attempts []time.Time
	evicted  bool
}

func NewLoginLimiter(max int, window time.Duration, clock func() time.Time) *LoginLimiter {
	if clock == nil {
		clock = time.Now
	}
	return &LoginLimiter{max: max, window: window, clock: clock}
}

// Allow records an attempt for key and reports whether it is within the limit.
// When it is not, the returned duration is how long until the oldest attempt expires.
func (l *LoginLimiter) Allow(key string) (bool, time.Duration) {
	if l == nil || l.max <= 0 {
		return true, 0
	}
	now := l.clock()
	l.sweep(now)
	for {
		value, _ := l.buckets.LoadOrStore(key, &attemptBucket{})
		bucket := value.(*attemptBucket)
		bucket.mu.Lock()
		if bucket.evicted {
			bucket.mu.Unlock()
			continue
		}
		allowed, retryAfter := l.record(bucket, now)
		bucket.mu.Unlock()
		return allowed, retryAfter
	}
}

// record must be called with bucket.mu held.
func (l *LoginLimiter) record(bucket *attemptBucket, now time.Time) (bool, time.Duration) {
	cutoff := now.Add(-l.window)
	kept := bucket.attempts[:0]
	for _, attempt := range bucket.attempts {
		if attempt.After(cutoff) {
			kept = append(kept, attempt)
		}
	}
	bucket.attempts = kept
	if len(bucket.attempts) >= l.max {
		return false, bucket.attempts[0].Add(l.window).Sub(now)
	}
	bucket.attempts = append(bucket.attempts, now)
	return true, 0
}

// sweep drops buckets whose attempts have all expired. It runs at most once per window.
func (l *LoginLimiter) sweep(now time.Time) {
	l.sweepMu.Lock()
	if !l.lastSweep.IsZero() && now.Sub(l.lastSweep) < l.window {
		l.sweepMu.Unlock()
		return
	}
	l.lastSweep = now
	l.sweepMu.Unlock()

	cutoff := now.Add(-l.window)
	l.buckets.Range(func(key, value interface{}) bool {
		bucket := value.(*attemptBucket)
		bucket.mu.Lock()
		if len(bucket.attempts) == 0 || !bucket.attempts[len(bucket.attempts)-1].After(cutoff) {
			bucket.evicted = true
			l.buckets.CompareAndDelete(key, bucket)
		}
		bucket.mu.Unlock()
		return true
	})
}

// Reset forgets every attempt for key, used after a successful login.
func (l *LoginLimiter) Reset(key string) {
	if l == nil {
		return
	}
	value, loaded := l.buckets.LoadAndDelete(key)
	if !loaded {
		return
	}
	bucket := value.(*attemptBucket)
	bucket.mu.Lock()
	bucket.evicted = true
	bucket.mu.Unlock()
}
