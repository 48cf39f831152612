// Package observability provides logging, metrics, and tracing
// for the edge gateway.
//
// # Logging
//
// The Logger interface wraps zap. Components accept a Logger through a
// functional option and default to NopLogger:
//
//	logger, err := observability.NewLogger(observability.DefaultLogConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer func() { _ = logger.Sync() }()
//
//	logger.WithContext(ctx).Info("request completed",
//	    observability.String("route", "/users"),
//	    observability.Int("status", 200),
//	)
//
// # Metrics
//
// Metrics are registered on a dedicated Prometheus registry and served
// by the admin listener:
//
//	metrics := observability.NewMetrics("edgegw")
//	mux.Handle("/metrics", metrics.Handler())
//
// # Tracing
//
// OpenTelemetry tracing with OTLP/gRPC export and W3C trace context
// propagation. A disabled tracer still yields valid, non-recording spans.
package observability
