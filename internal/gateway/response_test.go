package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/vyrodovalexey/edgegw/internal/auth"
	"github.com/vyrodovalexey/edgegw/internal/middleware"
	"github.com/vyrodovalexey/edgegw/internal/util"
)

func TestStatusFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantBody    string
		wantOutcome string
	}{
		{
			name:        "auth failure",
			err:         auth.NewAuthError(auth.FailureExpired, errors.New("exp")),
			wantStatus:  http.StatusUnauthorized,
			wantBody:    bodyUnauthorized,
			wantOutcome: OutcomeUnauthorized,
		},
		{
			name:        "unknown route",
			err:         util.NewRouteNotFoundError("/nope"),
			wantStatus:  http.StatusNotFound,
			wantBody:    bodyNotFound,
			wantOutcome: OutcomeRouteNotFound,
		},
		{
			name:        "rate limited",
			err:         util.NewRateLimitError("global:ip:192.0.2.1", time.Second),
			wantStatus:  http.StatusTooManyRequests,
			wantBody:    bodyRateLimited,
			wantOutcome: OutcomeRateLimited,
		},
		{
			name:        "no instance",
			err:         util.NewNoInstanceError("user-service", "no healthy instances"),
			wantStatus:  http.StatusServiceUnavailable,
			wantBody:    bodyServiceUnavailable,
			wantOutcome: OutcomeNoInstance,
		},
		{
			name:        "upstream timeout",
			err:         util.NewUpstreamError("user-service", "user-1", time.Second, context.DeadlineExceeded),
			wantStatus:  http.StatusGatewayTimeout,
			wantBody:    bodyGatewayTimeout,
			wantOutcome: OutcomeUpstreamFailure,
		},
		{
			name:        "wrapped sentinel",
			err:         fmt.Errorf("resolve: %w", util.ErrRouteNotFound),
			wantStatus:  http.StatusNotFound,
			wantBody:    bodyNotFound,
			wantOutcome: OutcomeRouteNotFound,
		},
		{
			name:        "unexpected",
			err:         errors.New("boom"),
			wantStatus:  http.StatusInternalServerError,
			wantBody:    middleware.ErrInternalServerError,
			wantOutcome: OutcomeError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			status, body := statusFor(tt.err)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantBody, body)
			assert.Equal(t, tt.wantOutcome, outcomeOf(tt.err))
		})
	}
}

func TestOutcomeOf_SpecialCases(t *testing.T) {
	t.Parallel()

	assert.Equal(t, OutcomeForwarded, outcomeOf(nil))
	assert.Equal(t, OutcomeClientGone, outcomeOf(util.ErrClientGone))
}

func TestWriteError(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	writeError(rec, auth.NewAuthError(auth.FailureMissing, errors.New("missing")))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
	assert.Equal(t, middleware.ContentTypeJSON, rec.Header().Get(middleware.HeaderContentType))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.JSONEq(t, bodyUnauthorized, rec.Body.String())

	rec = httptest.NewRecorder()
	writeError(rec, util.NewRateLimitError("k", time.Second))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Empty(t, rec.Header().Get("WWW-Authenticate"))
}
