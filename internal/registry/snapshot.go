package registry

import (
	"sort"
	"time"
)

// Snapshot is an immutable view of the registry at one point in time.
type Snapshot struct {
	services    map[string][]ServiceInstance
	refreshedAt time.Time
	version     uint64
}

var emptySnapshot = &Snapshot{services: map[string][]ServiceInstance{}}

func newSnapshot(instances map[string]*ServiceInstance, refreshedAt time.Time, version uint64) *Snapshot {
	services := make(map[string][]ServiceInstance)
	for _, inst := range instances {
		services[inst.ServiceName] = append(services[inst.ServiceName], *inst)
	}
	for _, list := range services {
		sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	}
	return &Snapshot{services: services, refreshedAt: refreshedAt, version: version}
}

// Instances returns the non-evicted instances of service ordered by ID.
// The returned slice is shared and must not be modified.
func (s *Snapshot) Instances(service string) []ServiceInstance {
	return s.services[service]
}

// Services returns the sorted names of all known services.
func (s *Snapshot) Services() []string {
	names := make([]string, 0, len(s.services))
	for name := range s.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of instances across all services.
func (s *Snapshot) Len() int {
	n := 0
	for _, list := range s.services {
		n += len(list)
	}
	return n
}

// RefreshedAt is the time of the last successful source update. Zero
// until the first update arrives.
func (s *Snapshot) RefreshedAt() time.Time {
	return s.refreshedAt
}

// Version increases with every published snapshot.
func (s *Snapshot) Version() uint64 {
	return s.version
}

// Stale reports whether the snapshot cannot be trusted at now. A snapshot
// that never received an update is always stale. A zero threshold
// disables the age check.
func (s *Snapshot) Stale(now time.Time, threshold time.Duration) bool {
	if s.refreshedAt.IsZero() {
		return true
	}
	return threshold > 0 && now.Sub(s.refreshedAt) > threshold
}
