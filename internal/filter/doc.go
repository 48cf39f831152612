// Package filter implements the ordered request pipeline of the gateway.
//
// Filters wrap each other like onion layers: a filter sees the request on
// the way in, calls next, and sees the result on the way out. The chain is
// built once and shared by all requests; per-request state lives in a
// Context.
package filter
