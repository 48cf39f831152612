package store

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/vyrodovalexey/edgegw/internal/observability"
)

// Breaker defaults for the shared store.
const (
	DefaultBreakerMinRequests = 5
	DefaultBreakerTimeout     = 10 * time.Second
)

// ResilientStore sends takes to a primary store through a circuit breaker
// and answers from a local fallback while the primary is failing.
type ResilientStore struct {
	primary  Store
	fallback Store
	cb       *gobreaker.CircuitBreaker
	logger   observability.Logger

	onFallback func()
	warnEvery  rate.Sometimes

	minRequests uint32
	timeout     time.Duration
}

// ResilientOption configures a ResilientStore.
type ResilientOption func(*ResilientStore)

// WithResilientLogger sets the logger.
func WithResilientLogger(logger observability.Logger) ResilientOption {
	return func(s *ResilientStore) {
		s.logger = logger
	}
}

// WithFallbackCallback registers fn to run on every fallback decision.
func WithFallbackCallback(fn func()) ResilientOption {
	return func(s *ResilientStore) {
		s.onFallback = fn
	}
}

// WithBreakerSettings overrides the trip threshold and open timeout.
func WithBreakerSettings(minRequests int, timeout time.Duration) ResilientOption {
	return func(s *ResilientStore) {
		if minRequests > 0 {
			s.minRequests = uint32(minRequests)
		}
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// NewResilientStore creates a store that prefers primary and degrades to
// fallback.
func NewResilientStore(primary, fallback Store, opts ...ResilientOption) *ResilientStore {
	s := &ResilientStore{
		primary:     primary,
		fallback:    fallback,
		logger:      observability.NopLogger(),
		onFallback:  func() {},
		warnEvery:   rate.Sometimes{First: 1, Interval: 30 * time.Second},
		minRequests: DefaultBreakerMinRequests,
		timeout:     DefaultBreakerTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}

	threshold := s.minRequests
	s.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ratelimit-store",
		MaxRequests: 1,
		Interval:    s.timeout,
		Timeout:     s.timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= threshold && failureRatio >= 0.5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			s.logger.Info("circuit breaker state change",
				observability.String("name", name),
				observability.String("from", from.String()),
				observability.String("to", to.String()),
			)
		},
	})
	return s
}

// Take implements Store.
func (s *ResilientStore) Take(ctx context.Context, key string, limit Limit, now time.Time) (Result, error) {
	v, err := s.cb.Execute(func() (interface{}, error) {
		return s.primary.Take(ctx, key, limit, now)
	})
	if err == nil {
		return v.(Result), nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Result{}, ctxErr
	}

	s.warnEvery.Do(func() {
		s.logger.Warn("shared rate limit store unavailable, using local buckets",
			observability.String("breaker", s.cb.State().String()),
			observability.Error(err),
		)
	})
	s.onFallback()

	return s.fallback.Take(ctx, key, limit, now)
}

// Healthy reports whether the primary store is in use.
func (s *ResilientStore) Healthy() bool {
	return s.cb.State() != gobreaker.StateOpen
}

// Close closes both stores.
func (s *ResilientStore) Close() error {
	return errors.Join(s.primary.Close(), s.fallback.Close())
}
