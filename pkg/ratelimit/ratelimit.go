package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// maxBuckets bounds the local bucket map; beyond this the map is reset
// wholesale rather than tracking per-bucket idle times
const maxBuckets = 10000

// Decision is the outcome of a single rate limit check
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration // Hint for denied requests, zero when allowed
}

// Limiter decides whether a keyed request may proceed. A limit of zero
// means the key is not rate limited.
type Limiter interface {
	Allow(ctx context.Context, keyID string, limit int, windowMs int64) (Decision, error)
	Close() error
}

type bucket struct {
	limiter  *rate.Limiter
	limit    int
	windowMs int64
}

// LocalLimiter enforces per-key token buckets in process memory.
// Suitable for single-replica deployments; multi-replica setups should
// use RedisLimiter so all replicas share one budget.
type LocalLimiter struct {
	buckets map[string]*bucket
	mu      sync.Mutex
}

// NewLocalLimiter creates an in-process rate limiter
func NewLocalLimiter() *LocalLimiter {
	return &LocalLimiter{
		buckets: make(map[string]*bucket),
	}
}

// Allow consumes one token from the key's bucket. The bucket holds
// limit tokens and refills continuously over the window. Changing a
// key's limit or window replaces its bucket.
func (l *LocalLimiter) Allow(_ context.Context, keyID string, limit int, windowMs int64) (Decision, error) {
	if limit <= 0 || windowMs <= 0 {
		return Decision{Allowed: true}, nil
	}

	l.mu.Lock()
	b, ok := l.buckets[keyID]
	if !ok || b.limit != limit || b.windowMs != windowMs {
		if len(l.buckets) > maxBuckets {
			l.buckets = make(map[string]*bucket)
		}
		refill := rate.Limit(float64(limit) / (float64(windowMs) / 1000.0))
		b = &bucket{
			limiter:  rate.NewLimiter(refill, limit),
			limit:    limit,
			windowMs: windowMs,
		}
		l.buckets[keyID] = b
	}
	l.mu.Unlock()

	res := b.limiter.Reserve()
	if !res.OK() {
		return Decision{RetryAfter: time.Duration(windowMs) * time.Millisecond}, nil
	}
	if delay := res.Delay(); delay > 0 {
		// A delayed reservation would admit the request late; give the
		// token back and tell the caller when to come back instead.
		res.Cancel()
		return Decision{RetryAfter: delay}, nil
	}

	return Decision{Allowed: true}, nil
}

// Close releases nothing for the local limiter
func (l *LocalLimiter) Close() error {
	return nil
}
