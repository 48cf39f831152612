package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staleFlag bool

func (s staleFlag) Stale(time.Time) bool { return bool(s) }

type breakerFlag bool

func (b breakerFlag) Healthy() bool { return bool(b) }

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestChecker_Health(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewChecker("1.2.3", WithClock(func() time.Time { return now }))
	now = now.Add(90 * time.Second)

	rec := httptest.NewRecorder()
	c.HealthHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, StatusHealthy, body.Status)
	assert.Equal(t, "1.2.3", body.Version)
	assert.Equal(t, "1m30s", body.Uptime)
}

func TestChecker_Readiness(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		stale      bool
		breakerOK  bool
		wantStatus Status
		wantCode   int
	}{
		{name: "all healthy", breakerOK: true, wantStatus: StatusHealthy, wantCode: http.StatusOK},
		{name: "stale registry", stale: true, breakerOK: true, wantStatus: StatusUnhealthy, wantCode: http.StatusServiceUnavailable},
		{name: "store bypassed", breakerOK: false, wantStatus: StatusDegraded, wantCode: http.StatusOK},
		{name: "both", stale: true, breakerOK: false, wantStatus: StatusUnhealthy, wantCode: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := NewChecker("test")
			c.RegisterCheck("registry", RegistryCheck(staleFlag(tt.stale), nil))
			c.RegisterCheck("ratelimit-store", StoreCheck(breakerFlag(tt.breakerOK)))

			rec := httptest.NewRecorder()
			c.ReadinessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
			assert.Equal(t, tt.wantCode, rec.Code)

			var body ReadinessResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantStatus, body.Status)
			assert.Len(t, body.Checks, 2)
		})
	}
}

func TestChecker_UnregisterCheck(t *testing.T) {
	t.Parallel()

	c := NewChecker("test")
	c.RegisterCheck("registry", RegistryCheck(staleFlag(true), nil))
	assert.Equal(t, StatusUnhealthy, c.Readiness(context.Background()).Status)

	c.UnregisterCheck("registry")
	resp := c.Readiness(context.Background())
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Empty(t, resp.Checks)
}

func TestPingCheck(t *testing.T) {
	t.Parallel()

	ok := PingCheck(pingFunc(func(context.Context) error { return nil }), StatusUnhealthy)
	assert.Equal(t, StatusHealthy, ok(context.Background()).Status)

	failing := PingCheck(pingFunc(func(context.Context) error { return errors.New("connection refused") }), StatusDegraded)
	got := failing(context.Background())
	assert.Equal(t, StatusDegraded, got.Status)
	assert.Equal(t, "connection refused", got.Message)
}

func TestChecker_ReadinessTimeout(t *testing.T) {
	t.Parallel()

	c := NewChecker("test", WithTimeout(20*time.Millisecond))
	c.RegisterCheck("slow", PingCheck(pingFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}), StatusUnhealthy))

	resp := c.Readiness(context.Background())
	assert.Equal(t, StatusUnhealthy, resp.Status)
	assert.Equal(t, context.DeadlineExceeded.Error(), resp.Checks["slow"].Message)
}
