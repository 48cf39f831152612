// Package store holds token-bucket state for the rate limiter.
//
// A Store performs the refill-then-consume step for one key as a single
// atomic operation. MemoryStore is consistent within one process only;
// RedisStore shares buckets across every replica pointing at the same
// Redis. ResilientStore puts a circuit breaker in front of a shared store
// and falls back to a local one while it is unavailable.
package store

import (
	"context"
	"errors"
	"math"
	"time"
)

// ErrStoreClosed is returned by operations on a closed store.
var ErrStoreClosed = errors.New("rate limit store is closed")

// Limit describes the bucket a key is charged against.
type Limit struct {
	Capacity            int
	RefillRatePerSecond float64
	// IdleTTL is how long an untouched bucket is retained.
	IdleTTL time.Duration
}

// Result is the outcome of a single take.
type Result struct {
	Allowed bool
	// Tokens left in the bucket after the take.
	Tokens float64
	// RetryAfter is the wait until one token is available. Zero when
	// the take was admitted.
	RetryAfter time.Duration
}

// Store charges one token against a keyed bucket.
type Store interface {
	// Take refills the bucket for key up to now, then consumes one token
	// if at least one is available. The whole step is atomic per key.
	Take(ctx context.Context, key string, limit Limit, now time.Time) (Result, error)

	// Close releases resources held by the store.
	Close() error
}

// Bucket is the persisted state of a token bucket.
type Bucket struct {
	Tokens     float64
	LastRefill time.Time
}

// NewBucket returns a full bucket refilled at now.
func NewBucket(limit Limit, now time.Time) Bucket {
	return Bucket{Tokens: float64(limit.Capacity), LastRefill: now}
}

// Take applies refill-then-consume to b and returns the new state and the
// result. A clock that moved backwards adds no tokens and does not move
// LastRefill back.
func Take(b Bucket, limit Limit, now time.Time) (Bucket, Result) {
	capacity := float64(limit.Capacity)

	elapsed := now.Sub(b.LastRefill).Seconds()
	if elapsed < 0 {
		elapsed = 0
		now = b.LastRefill
	}

	tokens := math.Min(capacity, b.Tokens+elapsed*limit.RefillRatePerSecond)
	if tokens < 0 {
		tokens = 0
	}

	res := Result{}
	if tokens >= 1 {
		tokens--
		res.Allowed = true
	} else {
		res.RetryAfter = retryAfter(tokens, limit.RefillRatePerSecond)
	}
	res.Tokens = tokens

	return Bucket{Tokens: tokens, LastRefill: now}, res
}

func retryAfter(tokens, rate float64) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration((1 - tokens) / rate * float64(time.Second))
}
