package jwt

import (
	"errors"
	"fmt"
)

// Supported HMAC signing algorithms.
const (
	AlgHS256 = "HS256"
	AlgHS384 = "HS384"
	AlgHS512 = "HS512"
)

// Sentinel errors for token verification.
var (
	// ErrEmptyToken indicates that the token is empty.
	ErrEmptyToken = errors.New("token is empty")

	// ErrTokenMalformed indicates that the token cannot be parsed or lacks
	// a required claim.
	ErrTokenMalformed = errors.New("token is malformed")

	// ErrTokenInvalidSignature indicates that the signature does not verify
	// with the configured secret and algorithm.
	ErrTokenInvalidSignature = errors.New("token signature is invalid")

	// ErrTokenExpired indicates that the token has expired.
	ErrTokenExpired = errors.New("token has expired")

	// ErrUnsupportedAlgorithm indicates that the signing algorithm is not supported.
	ErrUnsupportedAlgorithm = errors.New("signing algorithm is not supported")

	// ErrInvalidKey indicates that the signing secret is unusable.
	ErrInvalidKey = errors.New("signing key is invalid")
)

// VerificationError carries the library error behind a sentinel.
type VerificationError struct {
	Kind  error
	Cause error
}

// Error implements the error interface.
func (e *VerificationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
	}
	return e.Kind.Error()
}

// Unwrap returns the sentinel and the underlying cause.
func (e *VerificationError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

func newVerificationError(kind, cause error) *VerificationError {
	return &VerificationError{Kind: kind, Cause: cause}
}
