// Package util provides the shared error taxonomy of the gateway.
//
// # Error Conventions
//
//   - Sentinel errors (errors.New) for stable conditions that callers check
//     with errors.Is(). Each maps to exactly one HTTP status at the edge.
//   - Structured error types for context-rich errors. Each type implements
//     Error(), Unwrap() (if wrapping) and Is() so that errors.Is() against
//     the matching sentinel keeps working after wrapping.
//   - fmt.Errorf with %w for ad-hoc wrapping elsewhere.
package util

import (
	"errors"
	"fmt"
	"time"
)

// Pipeline sentinel errors.
var (
	ErrUnauthorized      = errors.New("unauthorized")
	ErrRateLimited       = errors.New("rate limit exceeded")
	ErrRouteNotFound     = errors.New("no route found")
	ErrNoHealthyInstance = errors.New("no healthy instance")
	ErrUpstreamTimeout   = errors.New("upstream timeout")
	ErrClientGone        = errors.New("client disconnected")
	ErrConfigInvalid     = errors.New("invalid configuration")
)

// ConfigError represents a configuration-related error.
type ConfigError struct {
	Field   string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config error at %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("config error: %s", e.Message)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// Is reports ErrConfigInvalid and other ConfigErrors as matches.
func (e *ConfigError) Is(target error) bool {
	if target == ErrConfigInvalid {
		return true
	}
	_, ok := target.(*ConfigError)
	return ok || errors.Is(e.Cause, target)
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}

// RouteNotFoundError is returned when no route rule matches a path.
type RouteNotFoundError struct {
	Path string
}

// Error implements the error interface.
func (e *RouteNotFoundError) Error() string {
	return fmt.Sprintf("no route found for %s", e.Path)
}

// Is checks if the error matches the target.
func (e *RouteNotFoundError) Is(target error) bool {
	if target == ErrRouteNotFound {
		return true
	}
	_, ok := target.(*RouteNotFoundError)
	return ok
}

// NewRouteNotFoundError creates a new RouteNotFoundError.
func NewRouteNotFoundError(path string) *RouteNotFoundError {
	return &RouteNotFoundError{Path: path}
}

// NoInstanceError is returned when a service has no pickable instance.
type NoInstanceError struct {
	Service string
	Reason  string
}

// Error implements the error interface.
func (e *NoInstanceError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("no healthy instance for service %s: %s", e.Service, e.Reason)
	}
	return fmt.Sprintf("no healthy instance for service %s", e.Service)
}

// Is checks if the error matches the target.
func (e *NoInstanceError) Is(target error) bool {
	if target == ErrNoHealthyInstance {
		return true
	}
	_, ok := target.(*NoInstanceError)
	return ok
}

// NewNoInstanceError creates a new NoInstanceError.
func NewNoInstanceError(service, reason string) *NoInstanceError {
	return &NoInstanceError{Service: service, Reason: reason}
}

// UpstreamError represents a failed forward to a backend instance.
type UpstreamError struct {
	Service  string
	Instance string
	Timeout  time.Duration
	Cause    error
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s (%s) failed: %v", e.Service, e.Instance, e.Cause)
}

// Unwrap returns the underlying error.
func (e *UpstreamError) Unwrap() error {
	return e.Cause
}

// Is treats every upstream transport failure as ErrUpstreamTimeout.
func (e *UpstreamError) Is(target error) bool {
	if target == ErrUpstreamTimeout {
		return true
	}
	_, ok := target.(*UpstreamError)
	return ok
}

// NewUpstreamError creates a new UpstreamError.
func NewUpstreamError(service, instance string, timeout time.Duration, cause error) *UpstreamError {
	return &UpstreamError{Service: service, Instance: instance, Timeout: timeout, Cause: cause}
}

// RateLimitError represents a rejected rate-limit decision.
type RateLimitError struct {
	Key        string
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s (retry after: %v)", e.Key, e.RetryAfter)
}

// Is checks if the error matches the target.
func (e *RateLimitError) Is(target error) bool {
	if target == ErrRateLimited {
		return true
	}
	_, ok := target.(*RateLimitError)
	return ok
}

// NewRateLimitError creates a new RateLimitError.
func NewRateLimitError(key string, retryAfter time.Duration) *RateLimitError {
	return &RateLimitError{Key: key, RetryAfter: retryAfter}
}
