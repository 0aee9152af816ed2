// Package observability provides structured logging, Prometheus metrics, health
// probes and server lifecycle helpers.
//
// # Structured Logging
//
// Create logger:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("mode", "enforce").Info("engine ready")
//
// Context-aware logging:
//
//	ctx = observability.WithLogger(ctx, logger)
//	observability.FromContext(ctx).WithError(err).Error("request failed")
//
// # Prometheus Metrics
//
// Metrics are registered on an injected registry so tests can use their own:
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.RecordDecision("single", true)
//	http.Handle("/metrics", observability.MetricsHandler(registry))
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(version)
//	checker.Register("rules", func(ctx context.Context) error { return nil })
//	observability.RegisterHealthRoutes(mux, checker)
//
// # Serving
//
// Serve runs several http.Servers under one errgroup and shuts them down
// together when the context is cancelled.
//
// # Related Packages
//
//   - pkg/config: Observability configuration
//   - pkg/contextkeys: Context keys shared with the logger
package observability
