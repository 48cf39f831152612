package main

import (
	"context"

	"github.com/vyrodovalexey/edgegw/internal/config"
	"github.com/vyrodovalexey/edgegw/internal/observability"
)

// loadAndValidateConfig loads and validates the configuration.
func loadAndValidateConfig(configPath string, logger observability.Logger) *config.Config {
	logger.Info("starting edgegw",
		observability.String("version", version),
		observability.String("config", configPath),
	)

	// LoadConfig applies defaults and validates.
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fatalWithSync(logger, "failed to load configuration", observability.Error(err))
		return nil // unreachable in production; allows test to continue
	}

	logger.Info("configuration loaded",
		observability.String("address", cfg.Server.Address),
		observability.String("admin_address", cfg.Admin.Address),
		observability.Int("routes", len(cfg.Routes)),
		observability.Int("public_paths", len(cfg.Auth.PublicPaths)),
		observability.String("rate_limit_store", cfg.RateLimit.Store),
		observability.String("registry_source", cfg.Registry.Source),
	)

	return cfg
}

// resolveLogConfig merges the logging section of the file with the
// flags. Non-empty flags win.
func resolveLogConfig(flags cliFlags, cfg *config.Config) observability.LogConfig {
	return observability.LogConfig{
		Level:  orDefault(flags.logLevel, cfg.Logging.Level),
		Format: orDefault(flags.logFormat, cfg.Logging.Format),
		Output: cfg.Logging.Output,
	}
}

// reconfigureLogger replaces the bootstrap logger when the file asks for
// different logging.
func reconfigureLogger(bootstrap observability.Logger, flags cliFlags, cfg *config.Config) observability.Logger {
	logCfg := resolveLogConfig(flags, cfg)
	if logCfg.Level == orDefault(flags.logLevel, "info") &&
		logCfg.Format == orDefault(flags.logFormat, "json") &&
		(logCfg.Output == "" || logCfg.Output == "stdout") {
		return bootstrap
	}

	logger, err := observability.NewLogger(logCfg)
	if err != nil {
		bootstrap.Warn("invalid logging configuration, keeping defaults", observability.Error(err))
		return bootstrap
	}
	_ = bootstrap.Sync()
	return logger
}

// initTracer initializes the tracer.
func initTracer(cfg *config.Config, logger observability.Logger) *observability.Tracer {
	tracer, err := observability.NewTracer(context.Background(), observability.TracerConfig{
		ServiceName:  cfg.Tracing.ServiceName,
		OTLPEndpoint: cfg.Tracing.Endpoint,
		SamplingRate: cfg.Tracing.SamplingRate,
		Enabled:      cfg.Tracing.Enabled,
	})
	if err != nil {
		fatalWithSync(logger, "failed to initialize tracer", observability.Error(err))
		return nil // unreachable in production; allows test to continue
	}

	return tracer
}
