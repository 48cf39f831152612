package gateway

import (
	"errors"
	"io"
	"net/http"

	"github.com/vyrodovalexey/edgegw/internal/middleware"
	"github.com/vyrodovalexey/edgegw/internal/util"
)

// Error response bodies. They never carry internal detail.
const (
	bodyUnauthorized       = `{"error":"unauthorized"}`
	bodyNotFound           = `{"error":"not found"}`
	bodyRateLimited        = `{"error":"rate limit exceeded"}`
	bodyServiceUnavailable = `{"error":"service unavailable"}`
	bodyGatewayTimeout     = `{"error":"gateway timeout"}`
)

// Request outcome labels.
const (
	OutcomeForwarded       = "forwarded"
	OutcomeUnauthorized    = "unauthorized"
	OutcomeRateLimited     = "rate_limited"
	OutcomeRouteNotFound   = "route_not_found"
	OutcomeNoInstance      = "no_instance"
	OutcomeUpstreamFailure = "upstream_failure"
	OutcomeClientGone      = "client_gone"
	OutcomeError           = "error"
)

// statusFor maps a pipeline error to its status code and body.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, util.ErrUnauthorized):
		return http.StatusUnauthorized, bodyUnauthorized
	case errors.Is(err, util.ErrRouteNotFound):
		return http.StatusNotFound, bodyNotFound
	case errors.Is(err, util.ErrRateLimited):
		return http.StatusTooManyRequests, bodyRateLimited
	case errors.Is(err, util.ErrNoHealthyInstance):
		return http.StatusServiceUnavailable, bodyServiceUnavailable
	case errors.Is(err, util.ErrUpstreamTimeout):
		return http.StatusGatewayTimeout, bodyGatewayTimeout
	default:
		return http.StatusInternalServerError, middleware.ErrInternalServerError
	}
}

// outcomeOf returns the metric label for the error a request ended with.
func outcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeForwarded
	case errors.Is(err, util.ErrClientGone):
		return OutcomeClientGone
	case errors.Is(err, util.ErrUnauthorized):
		return OutcomeUnauthorized
	case errors.Is(err, util.ErrRouteNotFound):
		return OutcomeRouteNotFound
	case errors.Is(err, util.ErrRateLimited):
		return OutcomeRateLimited
	case errors.Is(err, util.ErrNoHealthyInstance):
		return OutcomeNoInstance
	case errors.Is(err, util.ErrUpstreamTimeout):
		return OutcomeUpstreamFailure
	default:
		return OutcomeError
	}
}

// writeError writes the JSON error response for err.
func writeError(w http.ResponseWriter, err error) {
	status, body := statusFor(err)

	h := w.Header()
	h.Set(middleware.HeaderContentType, middleware.ContentTypeJSON)
	h.Set("Cache-Control", "no-store")
	if status == http.StatusUnauthorized {
		h.Set("WWW-Authenticate", "Bearer")
	}
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}
