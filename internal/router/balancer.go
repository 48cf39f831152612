package router

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vyrodovalexey/edgegw/internal/registry"
)

// Balancer picks instances round-robin with one cursor per service.
// Concurrent picks may occasionally land on the same instance; no lock is
// held across requests.
type Balancer struct {
	cursors sync.Map // map[string]*atomic.Uint64
}

// NewBalancer creates a balancer.
func NewBalancer() *Balancer {
	return &Balancer{}
}

// Pick returns the next pickable instance of service at now, skipping any
// instance whose ID is in exclude. It walks the list at most once.
func (b *Balancer) Pick(
	service string,
	instances []registry.ServiceInstance,
	now time.Time,
	exclude ...string,
) (registry.ServiceInstance, bool) {
	eligible := func(inst *registry.ServiceInstance) bool {
		return inst.Pickable(now) && !slices.Contains(exclude, inst.ID)
	}

	count := 0
	for i := range instances {
		if eligible(&instances[i]) {
			count++
		}
	}
	if count == 0 {
		return registry.ServiceInstance{}, false
	}

	target := int((b.cursor(service).Add(1) - 1) % uint64(count))
	for i := range instances {
		if !eligible(&instances[i]) {
			continue
		}
		if target == 0 {
			return instances[i], true
		}
		target--
	}
	return registry.ServiceInstance{}, false
}

func (b *Balancer) cursor(service string) *atomic.Uint64 {
	if c, ok := b.cursors.Load(service); ok {
		return c.(*atomic.Uint64)
	}
	c, _ := b.cursors.LoadOrStore(service, new(atomic.Uint64))
	return c.(*atomic.Uint64)
}
