package main

import (
	"context"

	"github.com/vyrodovalexey/edgegw/internal/config"
	"github.com/vyrodovalexey/edgegw/internal/gateway"
	"github.com/vyrodovalexey/edgegw/internal/observability"
)

// application holds all application components.
type application struct {
	gateway *gateway.Gateway
	metrics *observability.Metrics
	tracer  *observability.Tracer
	config  *config.Config
}

// initApplication initializes all application components.
func initApplication(cfg *config.Config, logger observability.Logger) *application {
	metrics := observability.NewMetrics("edgegw")
	metrics.SetBuildInfo(version, gitCommit)

	tracer := initTracer(cfg, logger)
	if tracer == nil {
		return nil
	}

	opts := []gateway.Option{
		gateway.WithLogger(logger),
		gateway.WithMetrics(metrics),
		gateway.WithVersion(version),
	}
	if cfg.Tracing.Enabled {
		opts = append(opts, gateway.WithTracer(tracer))
	}

	gw, err := gateway.New(context.Background(), cfg, opts...)
	if err != nil {
		fatalWithSync(logger, "failed to create gateway", observability.Error(err))
		return nil // unreachable in production; allows test to continue
	}

	return &application{
		gateway: gw,
		metrics: metrics,
		tracer:  tracer,
		config:  cfg,
	}
}
