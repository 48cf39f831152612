package router

import (
	"time"

	"github.com/vyrodovalexey/edgegw/internal/registry"
	"github.com/vyrodovalexey/edgegw/internal/util"
)

// InstanceLookup yields the current registry snapshot for a service.
type InstanceLookup interface {
	Lookup(service string, now time.Time) (*registry.Snapshot, error)
}

// Router selects healthy instances from the registry view. It never calls
// the registry source; it only reads published snapshots.
type Router struct {
	lookup   InstanceLookup
	balancer *Balancer
	clock    func() time.Time
}

// Option configures a Router.
type Option func(*Router)

// WithClock sets the clock used for heartbeat checks.
func WithClock(clock func() time.Time) Option {
	return func(r *Router) {
		r.clock = clock
	}
}

// New creates a router over lookup.
func New(lookup InstanceLookup, opts ...Option) *Router {
	r := &Router{
		lookup:   lookup,
		balancer: NewBalancer(),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// PickInstance returns a healthy instance of service other than the ones
// in exclude, or a *util.NoInstanceError.
func (r *Router) PickInstance(service string, exclude ...string) (registry.ServiceInstance, error) {
	now := r.clock()

	snap, err := r.lookup.Lookup(service, now)
	if err != nil {
		return registry.ServiceInstance{}, err
	}

	inst, ok := r.balancer.Pick(service, snap.Instances(service), now, exclude...)
	if !ok {
		return registry.ServiceInstance{}, util.NewNoInstanceError(service, "")
	}
	return inst, nil
}
