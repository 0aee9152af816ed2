package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/platinummonkey/gatekeeper/pkg/api"
	"github.com/platinummonkey/gatekeeper/pkg/config"
	"github.com/platinummonkey/gatekeeper/pkg/observability"
	"github.com/platinummonkey/gatekeeper/pkg/rbac"
	"github.com/platinummonkey/gatekeeper/pkg/session"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "gatekeeper: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout).
		WithField("service", "gatekeeper").
		WithField("version", version)

	tracerProvider, err := observability.InitTracing(context.Background(), cfg.Observability.Tracing(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = observability.ShutdownTracing(ctx, tracerProvider, logger)
	}()

	model, err := rbac.LoadRuleModel(cfg.Rules.File)
	if err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}
	logger.WithFields(map[string]interface{}{
		"file":  cfg.Rules.File,
		"roles": len(model.Roles()),
		"rules": model.RuleCount(),
	}).Info("Rule model loaded")

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
		metrics.RulesLoaded.Set(float64(model.RuleCount()))
		metrics.RolesLoaded.Set(float64(len(model.Roles())))
	}

	engine := rbac.NewEngine(model, rbac.WithMode(cfg.Rules.Mode), rbac.WithLogger(logger))
	accessOpts := []rbac.AccessLayerOption{
		rbac.WithMemoIdentities(cfg.Rules.MemoIdentities),
		rbac.WithMemoEntriesPerIdentity(cfg.Rules.MemoEntriesPerIdentity),
		rbac.WithMemoTTL(cfg.Rules.MemoTTL),
	}
	if metrics != nil {
		accessOpts = append(accessOpts, rbac.WithMetrics(metrics))
	}
	access := rbac.NewAccessLayer(engine, accessOpts...)

	resolver, err := newResolver(cfg.Session)
	if err != nil {
		return err
	}

	serverOpts := []api.Option{
		api.WithLogger(logger),
		api.WithResolver(resolver),
		api.WithCORS(cfg.Server.CORSAllowedOrigins),
	}
	if metrics != nil {
		serverOpts = append(serverOpts, api.WithMetrics(metrics))
	}
	if tracerProvider != nil {
		serverOpts = append(serverOpts, api.WithTracerProvider(tracerProvider))
	}
	server := api.NewServer(model, access, serverOpts...)

	health := observability.NewHealthChecker(version)
	health.Register("rules", func(ctx context.Context) error {
		if model.RuleCount() == 0 {
			return fmt.Errorf("no rules loaded")
		}
		return nil
	})

	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, health)
	if cfg.Observability.MetricsEnabled {
		healthMux.Handle("/metrics", observability.MetricsHandler(registry))
	}

	mainServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	healthServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:      healthMux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.WithFields(map[string]interface{}{
		"mode":          string(cfg.Rules.Mode),
		"trust_headers": cfg.Session.TrustHeaders,
		"tokens":        cfg.Session.Secret != "",
		"tracing":       tracerProvider != nil,
	}).Info("Starting Gatekeeper")

	return observability.Serve(ctx, logger, cfg.Server.ShutdownTimeout, mainServer, healthServer)
}

// newResolver builds the session resolver chain: signed tokens first, then
// proxy headers when trusted
func newResolver(cfg config.SessionConfig) (session.Resolver, error) {
	var chain session.ChainResolver
	if cfg.Secret != "" {
		opts := []session.TokenOption{session.WithCookie(cfg.Cookie)}
		if cfg.Issuer != "" {
			opts = append(opts, session.WithIssuer(cfg.Issuer))
		}
		chain = append(chain, session.NewTokenResolver([]byte(cfg.Secret), opts...))
	}
	if cfg.TrustHeaders {
		chain = append(chain, session.HeaderResolver{})
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("no session resolver configured: set GATEKEEPER_SESSION_SECRET or GATEKEEPER_TRUST_IDENTITY_HEADERS")
	}
	return chain, nil
}
