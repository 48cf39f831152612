package gateway

import "errors"

// Sentinel errors for gateway lifecycle operations.
var (
	// ErrGatewayNotStopped is returned by Start when the gateway is not stopped.
	ErrGatewayNotStopped = errors.New("gateway is not in stopped state")

	// ErrGatewayNotRunning is returned by Stop when the gateway is not running.
	ErrGatewayNotRunning = errors.New("gateway is not running")

	// ErrNilConfig indicates that a nil configuration was provided.
	ErrNilConfig = errors.New("configuration is required")

	// ErrInvalidConfig wraps configuration that cannot be turned into a
	// runtime.
	ErrInvalidConfig = errors.New("invalid configuration")
)
