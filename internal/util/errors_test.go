package util

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfigError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		field          string
		message        string
		expectedString string
	}{
		{
			name:           "with field",
			field:          "routes[0].pathPrefix",
			message:        "must start with /",
			expectedString: "config error at routes[0].pathPrefix: must start with /",
		},
		{
			name:           "without field",
			message:        "empty document",
			expectedString: "config error: empty document",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := NewConfigError(tt.field, tt.message)
			assert.Equal(t, tt.expectedString, err.Error())
			assert.True(t, errors.Is(err, ErrConfigInvalid))
			assert.True(t, errors.Is(fmt.Errorf("wrapped: %w", err), ErrConfigInvalid))
		})
	}
}

func TestSentinelMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"route not found", NewRouteNotFoundError("/nope"), ErrRouteNotFound},
		{"no instance", NewNoInstanceError("user-service", "registry stale"), ErrNoHealthyInstance},
		{"upstream", NewUpstreamError("user-service", "u-1", time.Second, context.DeadlineExceeded), ErrUpstreamTimeout},
		{"rate limited", NewRateLimitError("10.0.0.1", time.Second), ErrRateLimited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.True(t, errors.Is(tt.err, tt.sentinel))
			assert.False(t, errors.Is(tt.err, ErrUnauthorized))
		})
	}
}

func TestUpstreamError_Unwrap(t *testing.T) {
	t.Parallel()

	err := NewUpstreamError("svc", "svc-1", 2*time.Second, context.DeadlineExceeded)

	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Contains(t, err.Error(), "svc-1")
}

func TestNoInstanceError_Message(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "no healthy instance for service a", NewNoInstanceError("a", "").Error())
	assert.Equal(t, "no healthy instance for service a: stale", NewNoInstanceError("a", "stale").Error())
}
