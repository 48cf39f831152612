package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/edgegw/internal/config"
	"github.com/vyrodovalexey/edgegw/internal/ratelimit/store"
	"github.com/vyrodovalexey/edgegw/internal/util"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestLimiter(t *testing.T, now *time.Time) *Limiter {
	t.Helper()

	s := store.NewMemoryStore(store.WithCleanupInterval(0))
	t.Cleanup(func() { _ = s.Close() })
	return NewLimiter(s, WithClock(func() time.Time { return *now }))
}

func mustPolicy(t *testing.T, name string, cfg config.PolicyConfig) *Policy {
	t.Helper()

	p, err := NewPolicy(name, cfg, 0)
	require.NoError(t, err)
	return p
}

func TestLimiter_SixBackToBackRequests(t *testing.T) {
	t.Parallel()

	now := testNow
	l := newTestLimiter(t, &now)
	p := mustPolicy(t, GlobalPolicyName, config.PolicyConfig{Capacity: 5, RefillRatePerSecond: 1})
	caller := Caller{ClientIP: "10.0.0.1"}

	for i := 0; i < 5; i++ {
		d, err := l.Allow(context.Background(), p, caller)
		require.NoError(t, err)
		assert.True(t, d.Allowed, "request %d", i+1)
		assert.NoError(t, d.Err())
	}

	d, err := l.Allow(context.Background(), p, caller)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.True(t, errors.Is(d.Err(), util.ErrRateLimited))

	h := http.Header{}
	d.SetHeaders(h)
	assert.Equal(t, "0", h.Get(HeaderRemaining))
	assert.Equal(t, "5", h.Get(HeaderCapacity))
	assert.Equal(t, "1", h.Get(HeaderRate))
	assert.Equal(t, "1", h.Get(HeaderRetry))

	now = now.Add(time.Second)
	d, err = l.Allow(context.Background(), p, caller)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestLimiter_PoliciesAreIsolated(t *testing.T) {
	t.Parallel()

	now := testNow
	l := newTestLimiter(t, &now)
	global := mustPolicy(t, GlobalPolicyName, config.PolicyConfig{Capacity: 1, RefillRatePerSecond: 0.1})
	route := mustPolicy(t, "/orders", config.PolicyConfig{Capacity: 1, RefillRatePerSecond: 0.1})
	caller := Caller{ClientIP: "10.0.0.1"}

	d, err := l.Allow(context.Background(), global, caller)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = l.Allow(context.Background(), route, caller)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, "/orders:ip:10.0.0.1", d.Key)
}

func TestLimiter_NilPolicy(t *testing.T) {
	t.Parallel()

	now := testNow
	_, err := newTestLimiter(t, &now).Allow(context.Background(), nil, Caller{})
	assert.Error(t, err)
}

func TestKeyExtractor_Key(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		extractor KeyExtractor
		caller    Caller
		expected  string
	}{
		{name: "client ip", extractor: KeyByClientIP, caller: Caller{ClientIP: "1.2.3.4", Subject: "alice"}, expected: "ip:1.2.3.4"},
		{name: "unknown ip", extractor: KeyByClientIP, caller: Caller{}, expected: "ip:UNKNOWN"},
		{name: "subject", extractor: KeyByAuthenticatedSubject, caller: Caller{ClientIP: "1.2.3.4", Subject: "alice"}, expected: "sub:alice"},
		{name: "subject falls back to ip", extractor: KeyByAuthenticatedSubject, caller: Caller{ClientIP: "1.2.3.4"}, expected: "ip:1.2.3.4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, tt.extractor.Key(tt.caller))
		})
	}
}

func TestNewPolicy(t *testing.T) {
	t.Parallel()

	p, err := NewPolicy("global", config.PolicyConfig{Capacity: 10, RefillRatePerSecond: 0.01}, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, KeyByClientIP, p.KeyExtractor)
	// 3 * 10 / 0.01 seconds exceeds the configured minimum.
	assert.Equal(t, 3000*time.Second, p.IdleTTL)

	p, err = NewPolicy("global", config.PolicyConfig{Capacity: 1, RefillRatePerSecond: 10}, 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, p.IdleTTL)
	assert.Equal(t, store.Limit{Capacity: 1, RefillRatePerSecond: 10, IdleTTL: 5 * time.Minute}, p.Limit())

	_, err = NewPolicy("bad", config.PolicyConfig{Capacity: 0, RefillRatePerSecond: 1}, 0)
	assert.Error(t, err)
	_, err = NewPolicy("bad", config.PolicyConfig{Capacity: 1, RefillRatePerSecond: 0}, 0)
	assert.Error(t, err)
	_, err = NewPolicy("bad", config.PolicyConfig{Capacity: 1, RefillRatePerSecond: 1, KeyExtractor: "Cookie"}, 0)
	assert.Error(t, err)
}

func TestDecision_NilSafe(t *testing.T) {
	t.Parallel()

	var d *Decision
	assert.NoError(t, d.Err())
	d.SetHeaders(http.Header{})
}
