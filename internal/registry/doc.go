// Package registry keeps a local, periodically refreshed view of the
// backend instances behind each logical service.
//
// A Source (static configuration, a polled HTTP endpoint or Consul)
// pushes the full instance set into a View. The View classifies each
// instance by heartbeat age as healthy, suspect or evicted and publishes
// an immutable Snapshot through an atomic pointer, so request goroutines
// never block on or observe a partial update. A View that has not heard
// from its source within the staleness threshold refuses lookups.
package registry
