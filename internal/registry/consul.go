package registry

import (
	"context"
	"fmt"
	"strconv"
	"time"

	consulapi "github.com/hashicorp/consul/api"

	"github.com/vyrodovalexey/edgegw/internal/config"
	"github.com/vyrodovalexey/edgegw/internal/observability"
)

const (
	defaultConsulWaitTime = 30 * time.Second
	consulRetryDelay      = time.Second

	// MetaHeartbeatInterval is the service meta key carrying the
	// instance heartbeat interval in seconds.
	MetaHeartbeatInterval = "heartbeatIntervalSeconds"
)

// ConsulConfig configures a ConsulSource.
type ConsulConfig struct {
	Address    string
	Datacenter string
	Token      string
	WaitTime   time.Duration
	Services   []string
}

// ConsulSource watches the Consul health catalog with blocking queries and
// reports the passing instances of the configured services.
type ConsulSource struct {
	client   *consulapi.Client
	services []string
	waitTime time.Duration
	logger   observability.Logger
}

// ConsulOption configures a ConsulSource.
type ConsulOption func(*ConsulSource)

// WithConsulLogger sets the logger.
func WithConsulLogger(logger observability.Logger) ConsulOption {
	return func(s *ConsulSource) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewConsulSource creates a Consul source.
func NewConsulSource(cfg ConsulConfig, opts ...ConsulOption) (*ConsulSource, error) {
	consulCfg := consulapi.DefaultConfig()
	if cfg.Address != "" {
		consulCfg.Address = cfg.Address
	}
	consulCfg.Datacenter = cfg.Datacenter
	consulCfg.Token = cfg.Token

	client, err := consulapi.NewClient(consulCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create consul client: %w", err)
	}

	waitTime := cfg.WaitTime
	if waitTime <= 0 {
		waitTime = defaultConsulWaitTime
	}

	s := &ConsulSource{
		client:   client,
		services: cfg.Services,
		waitTime: waitTime,
		logger:   observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Name implements Source.
func (s *ConsulSource) Name() string {
	return config.SourceConsul
}

// Run implements Source. Each blocking query on the health state returns
// on any change or after the wait time; either way the passing instances
// are re-read and applied, which also keeps the view fresh.
func (s *ConsulSource) Run(ctx context.Context, sink Sink) error {
	var lastIndex uint64

	for {
		if ctx.Err() != nil {
			return nil
		}

		q := (&consulapi.QueryOptions{
			WaitIndex: lastIndex,
			WaitTime:  s.waitTime,
		}).WithContext(ctx)

		_, meta, err := s.client.Health().State(consulapi.HealthAny, q)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			sink.ReportError(s.Name(), fmt.Errorf("consul blocking query failed: %w", err))
			if !sleepCtx(ctx, consulRetryDelay) {
				return nil
			}
			continue
		}

		if meta.LastIndex < lastIndex {
			lastIndex = 0
		} else {
			lastIndex = meta.LastIndex
		}

		records, err := s.fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			sink.ReportError(s.Name(), err)
			if !sleepCtx(ctx, consulRetryDelay) {
				return nil
			}
			continue
		}
		sink.Apply(s.Name(), records)
	}
}

func (s *ConsulSource) fetch(ctx context.Context) ([]InstanceRecord, error) {
	now := time.Now()
	var records []InstanceRecord

	for _, service := range s.services {
		q := (&consulapi.QueryOptions{}).WithContext(ctx)
		entries, _, err := s.client.Health().Service(service, "", true, q)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch passing instances of %s: %w", service, err)
		}
		if len(entries) == 0 {
			s.logger.Debug("service has no passing instances",
				observability.String("service", service),
			)
		}

		for _, e := range entries {
			if r, ok := entryToRecord(e, now); ok {
				records = append(records, r)
			}
		}
	}
	return records, nil
}

func entryToRecord(e *consulapi.ServiceEntry, now time.Time) (InstanceRecord, bool) {
	if e == nil || e.Service == nil {
		return InstanceRecord{}, false
	}

	addr := e.Service.Address
	if addr == "" && e.Node != nil {
		addr = e.Node.Address
	}
	if addr == "" {
		return InstanceRecord{}, false
	}

	r := InstanceRecord{
		InstanceID:      e.Service.ID,
		ServiceName:     e.Service.Service,
		Host:            addr,
		Port:            e.Service.Port,
		LastHeartbeatAt: now,
	}
	if v, ok := e.Service.Meta[MetaHeartbeatInterval]; ok {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			r.HeartbeatIntervalSeconds = secs
		}
	}
	return r, true
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
