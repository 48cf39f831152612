package ratelimit

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/vyrodovalexey/edgegw/internal/ratelimit/store"
	"github.com/vyrodovalexey/edgegw/internal/util"
)

// Rate limit response headers.
const (
	HeaderRemaining = "X-RateLimit-Remaining"
	HeaderCapacity  = "X-RateLimit-Burst-Capacity"
	HeaderRate      = "X-RateLimit-Replenish-Rate"
	HeaderRetry     = "Retry-After"
)

// ErrRateLimitExceeded is matched by every rejected Decision error.
var ErrRateLimitExceeded = util.ErrRateLimited

// Decision is the outcome of a rate limit check.
type Decision struct {
	Allowed    bool
	Policy     *Policy
	Key        string
	Remaining  float64
	RetryAfter time.Duration
}

// Err returns a *util.RateLimitError for a rejected decision and nil
// otherwise.
func (d *Decision) Err() error {
	if d == nil || d.Allowed {
		return nil
	}
	return util.NewRateLimitError(d.Key, d.RetryAfter)
}

// SetHeaders writes the rate limit headers for d onto h.
func (d *Decision) SetHeaders(h http.Header) {
	if d == nil || d.Policy == nil {
		return
	}
	h.Set(HeaderRemaining, strconv.Itoa(int(math.Floor(d.Remaining))))
	h.Set(HeaderCapacity, strconv.Itoa(d.Policy.Capacity))
	h.Set(HeaderRate, strconv.FormatFloat(d.Policy.RefillRatePerSecond, 'f', -1, 64))
	if !d.Allowed {
		secs := int(math.Ceil(d.RetryAfter.Seconds()))
		if secs < 1 {
			secs = 1
		}
		h.Set(HeaderRetry, strconv.Itoa(secs))
	}
}

// Limiter charges callers against policies held in a store.
type Limiter struct {
	store store.Store
	clock func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock sets the clock used for refill bookkeeping.
func WithClock(clock func() time.Time) Option {
	return func(l *Limiter) {
		l.clock = clock
	}
}

// NewLimiter creates a limiter over s.
func NewLimiter(s store.Store, opts ...Option) *Limiter {
	l := &Limiter{store: s, clock: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow charges one token for caller c under policy p.
func (l *Limiter) Allow(ctx context.Context, p *Policy, c Caller) (*Decision, error) {
	if p == nil {
		return nil, errors.New("nil rate limit policy")
	}

	key := p.BucketKey(c)
	res, err := l.store.Take(ctx, key, p.Limit(), l.clock())
	if err != nil {
		return nil, err
	}

	return &Decision{
		Allowed:    res.Allowed,
		Policy:     p,
		Key:        key,
		Remaining:  res.Tokens,
		RetryAfter: res.RetryAfter,
	}, nil
}

// Store returns the underlying store.
func (l *Limiter) Store() store.Store {
	return l.store
}

// Close closes the underlying store.
func (l *Limiter) Close() error {
	return l.store.Close()
}
