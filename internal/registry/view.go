package registry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/vyrodovalexey/edgegw/internal/observability"
	"github.com/vyrodovalexey/edgegw/internal/util"
)

// View defaults.
const (
	DefaultHeartbeatTTL  = 90 * time.Second
	DefaultEvictionGrace = 60 * time.Second
	DefaultSweepInterval = 5 * time.Second
)

// Sink receives updates from a Source.
type Sink interface {
	// Apply replaces the instance set with records, the full state
	// reported by source.
	Apply(source string, records []InstanceRecord)

	// ReportError records a failed refresh.
	ReportError(source string, err error)
}

// View is the locally cached registry. Readers load an immutable Snapshot
// without locking; Apply and Sweep serialize on a writer mutex and publish
// a new Snapshot with an atomic swap.
type View struct {
	current atomic.Pointer[Snapshot]

	mu          sync.Mutex
	instances   map[string]*ServiceInstance
	refreshedAt time.Time
	version     uint64

	heartbeatTTL       time.Duration
	evictionGrace      time.Duration
	stalenessThreshold time.Duration

	clock     func() time.Time
	logger    observability.Logger
	metrics   *observability.Metrics
	staleWarn rate.Sometimes
}

// ViewOption configures a View.
type ViewOption func(*View)

// WithHeartbeatTTL sets the heartbeat TTL.
func WithHeartbeatTTL(d time.Duration) ViewOption {
	return func(v *View) {
		v.heartbeatTTL = d
	}
}

// WithEvictionGrace sets how long a suspect instance is kept.
func WithEvictionGrace(d time.Duration) ViewOption {
	return func(v *View) {
		v.evictionGrace = d
	}
}

// WithStalenessThreshold sets the age after which the view is stale.
func WithStalenessThreshold(d time.Duration) ViewOption {
	return func(v *View) {
		v.stalenessThreshold = d
	}
}

// WithClock sets the clock.
func WithClock(clock func() time.Time) ViewOption {
	return func(v *View) {
		v.clock = clock
	}
}

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) ViewOption {
	return func(v *View) {
		v.logger = logger
	}
}

// WithMetrics sets the metrics.
func WithMetrics(metrics *observability.Metrics) ViewOption {
	return func(v *View) {
		v.metrics = metrics
	}
}

// NewView creates an empty, stale view.
func NewView(opts ...ViewOption) *View {
	v := &View{
		instances:     make(map[string]*ServiceInstance),
		heartbeatTTL:  DefaultHeartbeatTTL,
		evictionGrace: DefaultEvictionGrace,
		clock:         time.Now,
		logger:        observability.NopLogger(),
		staleWarn:     rate.Sometimes{First: 1, Interval: time.Minute},
	}
	for _, opt := range opts {
		opt(v)
	}
	v.current.Store(emptySnapshot)
	return v
}

// Snapshot returns the current snapshot.
func (v *View) Snapshot() *Snapshot {
	return v.current.Load()
}

// Lookup returns the current snapshot, or a *util.NoInstanceError when the
// view is stale at now.
func (v *View) Lookup(service string, now time.Time) (*Snapshot, error) {
	snap := v.current.Load()
	if snap.Stale(now, v.stalenessThreshold) {
		return nil, util.NewNoInstanceError(service, "registry is stale")
	}
	return snap, nil
}

// Stale reports whether the view is stale at now.
func (v *View) Stale(now time.Time) bool {
	return v.current.Load().Stale(now, v.stalenessThreshold)
}

// Ready reports whether the view holds a fresh snapshot.
func (v *View) Ready() bool {
	return !v.Stale(v.clock())
}

// Apply implements Sink.
func (v *View) Apply(source string, records []InstanceRecord) {
	now := v.clock()

	v.mu.Lock()
	defer v.mu.Unlock()

	next := make(map[string]*ServiceInstance, len(records))
	for _, r := range records {
		if err := r.validate(); err != nil {
			v.logger.Warn("ignoring invalid registry record",
				observability.String("source", source),
				observability.String("instance", r.InstanceID),
				observability.Error(err),
			)
			continue
		}

		heartbeat := r.LastHeartbeatAt
		if heartbeat.IsZero() || heartbeat.After(now) {
			heartbeat = now
		}
		if prev, ok := v.instances[r.InstanceID]; ok && prev.LastHeartbeat.After(heartbeat) {
			heartbeat = prev.LastHeartbeat
		}

		interval := time.Duration(r.HeartbeatIntervalSeconds) * time.Second
		inst := &ServiceInstance{
			ID:                r.InstanceID,
			ServiceName:       r.ServiceName,
			Host:              r.Host,
			Port:              r.Port,
			HeartbeatInterval: interval,
			LastHeartbeat:     heartbeat,
			ttl:               effectiveTTL(v.heartbeatTTL, interval),
		}
		inst.State = inst.stateAt(now, v.evictionGrace)
		if inst.State == StateEvicted {
			continue
		}
		next[inst.ID] = inst
	}

	for id, prev := range v.instances {
		if _, ok := next[id]; !ok {
			v.logger.Info("instance deregistered",
				observability.String("service", prev.ServiceName),
				observability.String("instance", id),
			)
		}
	}

	v.instances = next
	v.refreshedAt = now
	v.publish()

	v.metrics.RecordRegistryRefresh(source, nil)
	v.metrics.SetRegistryStale(false)
	v.logger.Debug("registry updated",
		observability.String("source", source),
		observability.Int("instances", len(next)),
	)
}

// ReportError implements Sink.
func (v *View) ReportError(source string, err error) {
	v.metrics.RecordRegistryRefresh(source, err)
	v.logger.Warn("registry refresh failed",
		observability.String("source", source),
		observability.Error(err),
	)
}

// Sweep reclassifies every instance by heartbeat age at now, drops the
// evicted ones and publishes a new snapshot if anything changed. It
// returns the number of state changes.
func (v *View) Sweep(now time.Time) int {
	v.mu.Lock()
	defer v.mu.Unlock()

	changed := 0
	for id, inst := range v.instances {
		state := inst.stateAt(now, v.evictionGrace)
		if state == inst.State {
			continue
		}
		changed++

		v.logger.Info("instance health changed",
			observability.String("service", inst.ServiceName),
			observability.String("instance", id),
			observability.String("from", inst.State.String()),
			observability.String("to", state.String()),
		)

		if state == StateEvicted {
			delete(v.instances, id)
			continue
		}
		updated := *inst
		updated.State = state
		v.instances[id] = &updated
	}

	if changed > 0 {
		v.publish()
	}

	stale := v.current.Load().Stale(now, v.stalenessThreshold)
	v.metrics.SetRegistryStale(stale)
	if stale {
		v.staleWarn.Do(func() {
			v.logger.Warn("registry view is stale, discovery-backed routes return 503",
				observability.Time("refreshed_at", v.refreshedAt),
				observability.Duration("threshold", v.stalenessThreshold),
			)
		})
	}
	return changed
}

// RunSweeper calls Sweep every interval until ctx is done.
func (v *View) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			v.Sweep(v.clock())
		}
	}
}

// publish must be called with mu held.
func (v *View) publish() {
	v.version++
	snap := newSnapshot(v.instances, v.refreshedAt, v.version)
	v.current.Store(snap)

	v.metrics.ResetRegistryInstances()
	for _, service := range snap.Services() {
		counts := map[HealthState]int{}
		for _, inst := range snap.Instances(service) {
			counts[inst.State]++
		}
		for _, state := range []HealthState{StateHealthy, StateSuspect} {
			v.metrics.SetRegistryInstances(service, state.String(), counts[state])
		}
	}
}
