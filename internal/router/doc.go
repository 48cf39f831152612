// Package router maps request paths to logical services and picks a
// backend instance for them.
//
// A RuleSet resolves a path by longest segment-aware prefix. A Router
// picks among the healthy instances of the current registry snapshot
// round-robin, with one atomic cursor per service.
package router
