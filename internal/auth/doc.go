// Package auth authenticates inbound requests with HMAC-signed bearer
// tokens.
//
// Requests whose path falls under a public prefix bypass authentication.
// All others must carry "Authorization: Bearer <token>"; any failure is an
// *AuthError classified as missing, malformed, expired or bad signature.
// The classification feeds logs and metrics and is never shown to clients.
//
// Verified claims are forwarded upstream as X-Auth-* headers after any
// client supplied X-Auth-* headers have been removed.
package auth
