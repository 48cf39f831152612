package health

import (
	"context"
	"time"
)

// RegistryState is the part of the registry view readiness depends on.
type RegistryState interface {
	Stale(now time.Time) bool
}

// RegistryCheck reports unhealthy while the registry view is stale.
func RegistryCheck(view RegistryState, clock func() time.Time) CheckFunc {
	if clock == nil {
		clock = time.Now
	}
	return func(context.Context) Check {
		if view.Stale(clock()) {
			return Check{Status: StatusUnhealthy, Message: "registry view is stale"}
		}
		return Check{Status: StatusHealthy}
	}
}

// BreakerState is implemented by stores that fall back when a shared
// backend fails.
type BreakerState interface {
	Healthy() bool
}

// StoreCheck reports degraded while the shared rate limit store is being
// bypassed. Requests are still limited by local buckets.
func StoreCheck(store BreakerState) CheckFunc {
	return func(context.Context) Check {
		if !store.Healthy() {
			return Check{Status: StatusDegraded, Message: "shared rate limit store unavailable, using local buckets"}
		}
		return Check{Status: StatusHealthy}
	}
}

// Pinger is a dependency that can be probed directly.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck probes a dependency. A failure yields onFailure.
func PingCheck(p Pinger, onFailure Status) CheckFunc {
	return func(ctx context.Context) Check {
		if err := p.Ping(ctx); err != nil {
			return Check{Status: onFailure, Message: err.Error()}
		}
		return Check{Status: StatusHealthy}
	}
}
