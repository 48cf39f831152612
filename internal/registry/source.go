package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/vyrodovalexey/edgegw/internal/config"
	"github.com/vyrodovalexey/edgegw/internal/observability"
)

// DefaultRefreshInterval is the polling interval of polling sources.
const DefaultRefreshInterval = 10 * time.Second

// Source feeds a Sink with the instance set of an external registry.
type Source interface {
	// Name identifies the source in logs and metrics.
	Name() string

	// Run delivers updates to sink until ctx is done.
	Run(ctx context.Context, sink Sink) error
}

type fetchFunc func(ctx context.Context) ([]InstanceRecord, error)

// poll fetches immediately and then every interval.
func poll(ctx context.Context, name string, interval time.Duration, sink Sink, fetch fetchFunc) error {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}

	refresh := func() {
		records, err := fetch(ctx)
		if err != nil {
			if ctx.Err() == nil {
				sink.ReportError(name, err)
			}
			return
		}
		sink.Apply(name, records)
	}

	refresh()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			refresh()
		}
	}
}

// NewSource builds the source selected by cfg. Consul watches the
// services named by routes when no explicit list is configured.
func NewSource(cfg config.RegistryConfig, routes []config.RouteConfig, logger observability.Logger) (Source, error) {
	interval := cfg.RefreshInterval.Duration()

	switch cfg.Source {
	case config.SourceStatic, "":
		return NewStaticSource(cfg.Static, interval), nil
	case config.SourceHTTP:
		return NewHTTPSource(cfg.HTTP.URL, interval), nil
	case config.SourceConsul:
		services := cfg.Consul.Services
		if len(services) == 0 {
			services = routeServices(routes)
		}
		return NewConsulSource(ConsulConfig{
			Address:    cfg.Consul.Address,
			Datacenter: cfg.Consul.Datacenter,
			Token:      cfg.Consul.Token,
			WaitTime:   cfg.Consul.WaitTime.Duration(),
			Services:   services,
		}, WithConsulLogger(logger))
	default:
		return nil, fmt.Errorf("unknown registry source %q", cfg.Source)
	}
}

func routeServices(routes []config.RouteConfig) []string {
	seen := make(map[string]bool, len(routes))
	services := make([]string, 0, len(routes))
	for _, r := range routes {
		if r.ServiceName == "" || seen[r.ServiceName] {
			continue
		}
		seen[r.ServiceName] = true
		services = append(services, r.ServiceName)
	}
	return services
}
