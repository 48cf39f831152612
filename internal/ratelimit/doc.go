// Package ratelimit enforces per-caller request budgets with token
// buckets.
//
// A Policy names a bucket shape and how callers are keyed; a Limiter
// charges one token per request against the bucket for the caller's key.
// Bucket state lives in a store.Store, either process-local or shared
// through Redis.
//
// A bucket left idle past its TTL is dropped. The caller's next request
// starts from a full bucket again, which can admit a burst slightly
// earlier than an exact ledger would.
package ratelimit
