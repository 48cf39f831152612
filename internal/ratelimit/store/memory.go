package store

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vyrodovalexey/edgegw/internal/observability"
)

// DefaultCleanupInterval is how often idle buckets are swept.
const DefaultCleanupInterval = time.Minute

type memoryBucket struct {
	mu       sync.Mutex
	state    Bucket
	idleTTL  time.Duration
	lastSeen time.Time
	evicted  bool
}

// MemoryStore keeps buckets in process memory with a mutex per bucket.
type MemoryStore struct {
	buckets sync.Map // map[string]*memoryBucket
	size    atomic.Int64

	logger          observability.Logger
	clock           func() time.Time
	cleanupInterval time.Duration

	stopCh    chan struct{}
	doneCh    chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithCleanupInterval sets the idle sweep interval. Zero or negative
// disables the background sweep.
func WithCleanupInterval(d time.Duration) MemoryOption {
	return func(s *MemoryStore) {
		s.cleanupInterval = d
	}
}

// WithMemoryLogger sets the logger.
func WithMemoryLogger(logger observability.Logger) MemoryOption {
	return func(s *MemoryStore) {
		s.logger = logger
	}
}

// WithMemoryClock sets the clock used by the background sweep.
func WithMemoryClock(clock func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		s.clock = clock
	}
}

// NewMemoryStore creates an in-memory store and starts its sweep loop.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		logger:          observability.NopLogger(),
		clock:           time.Now,
		cleanupInterval: DefaultCleanupInterval,
		stopCh:          make(chan struct{}),
		doneCh:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.cleanupInterval > 0 {
		go s.cleanupLoop()
	} else {
		close(s.doneCh)
	}
	return s
}

// Take implements Store.
func (s *MemoryStore) Take(_ context.Context, key string, limit Limit, now time.Time) (Result, error) {
	if s.closed.Load() {
		return Result{}, ErrStoreClosed
	}

	for {
		b := s.load(key, limit, now)

		b.mu.Lock()
		if b.evicted {
			// Lost a race with the sweeper; the next load creates a fresh bucket.
			b.mu.Unlock()
			continue
		}
		var res Result
		b.state, res = Take(b.state, limit, now)
		b.idleTTL = limit.IdleTTL
		if now.After(b.lastSeen) {
			b.lastSeen = now
		}
		b.mu.Unlock()

		return res, nil
	}
}

func (s *MemoryStore) load(key string, limit Limit, now time.Time) *memoryBucket {
	if v, ok := s.buckets.Load(key); ok {
		return v.(*memoryBucket)
	}

	fresh := &memoryBucket{
		state:    NewBucket(limit, now),
		idleTTL:  limit.IdleTTL,
		lastSeen: now,
	}
	v, loaded := s.buckets.LoadOrStore(key, fresh)
	if !loaded {
		s.size.Add(1)
	}
	return v.(*memoryBucket)
}

// EvictIdle removes every bucket not touched within its idle TTL as of
// now and returns how many were removed.
func (s *MemoryStore) EvictIdle(now time.Time) int {
	evicted := 0
	s.buckets.Range(func(key, value any) bool {
		b := value.(*memoryBucket)

		b.mu.Lock()
		idle := b.idleTTL > 0 && now.Sub(b.lastSeen) > b.idleTTL
		if idle {
			b.evicted = true
		}
		b.mu.Unlock()

		if idle {
			s.buckets.Delete(key)
			s.size.Add(-1)
			evicted++
		}
		return true
	})
	return evicted
}

// Len returns the number of live buckets.
func (s *MemoryStore) Len() int {
	return int(s.size.Load())
}

// Close stops the sweep loop. It is safe to call more than once.
func (s *MemoryStore) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.stopCh)
	})
	<-s.doneCh
	return nil
}

func (s *MemoryStore) cleanupLoop() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			if n := s.EvictIdle(s.clock()); n > 0 {
				s.logger.Debug("evicted idle rate limit buckets",
					observability.Int("count", n),
					observability.Int("remaining", s.Len()),
				)
			}
		}
	}
}
