// Package middleware provides the HTTP middleware that wraps the gateway
// filter chain.
//
// Middleware follow the func(http.Handler) http.Handler shape:
//
//	handler := middleware.Recovery(logger)(
//	    middleware.RequestID()(chainHandler),
//	)
//
// ClientIPExtractor resolves the caller address used as the default
// rate-limit key. X-Forwarded-For is only honoured when the direct peer is
// a configured trusted proxy.
package middleware
