package auth

import (
	"errors"
	"fmt"

	"github.com/vyrodovalexey/edgegw/internal/auth/jwt"
	"github.com/vyrodovalexey/edgegw/internal/util"
)

// FailureKind classifies why a request could not be authenticated.
type FailureKind int

// Authentication failure kinds.
const (
	FailureMissing FailureKind = iota + 1
	FailureMalformed
	FailureExpired
	FailureBadSignature
)

// String returns the metric and log label of the kind.
func (k FailureKind) String() string {
	switch k {
	case FailureMissing:
		return "missing"
	case FailureMalformed:
		return "malformed"
	case FailureExpired:
		return "expired"
	case FailureBadSignature:
		return "bad_signature"
	default:
		return "unknown"
	}
}

// Sentinel errors for bearer extraction.
var (
	ErrMissingHeader = errors.New("missing authorization header")
	ErrInvalidScheme = errors.New("authorization scheme is not Bearer")
)

// AuthError is returned for every rejected request. The Kind is meant for
// logs and metrics only; clients always see the same 401 response.
type AuthError struct {
	Kind  FailureKind
	Cause error
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("authentication failed (%s): %v", e.Kind, e.Cause)
	}
	return fmt.Sprintf("authentication failed (%s)", e.Kind)
}

// Unwrap returns the underlying error.
func (e *AuthError) Unwrap() error {
	return e.Cause
}

// Is reports util.ErrUnauthorized and AuthErrors of the same kind as matches.
func (e *AuthError) Is(target error) bool {
	if target == util.ErrUnauthorized {
		return true
	}
	if t, ok := target.(*AuthError); ok {
		return t.Kind == e.Kind
	}
	return false
}

// NewAuthError creates a new AuthError.
func NewAuthError(kind FailureKind, cause error) *AuthError {
	return &AuthError{Kind: kind, Cause: cause}
}

// classify maps a verification error to its failure kind.
func classify(err error) *AuthError {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return NewAuthError(FailureExpired, err)
	case errors.Is(err, jwt.ErrTokenInvalidSignature):
		return NewAuthError(FailureBadSignature, err)
	default:
		return NewAuthError(FailureMalformed, err)
	}
}
