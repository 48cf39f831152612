// Package proxy forwards admitted requests to backend instances.
//
// Each attempt runs under its own timeout. Idempotent requests without a
// body get one retry on a different healthy instance after a connection
// failure; timeouts and client cancellation are never retried. Hop-by-hop
// headers are dropped, X-Forwarded-* headers are set and the verified
// identity travels upstream as X-Auth-* headers.
package proxy
