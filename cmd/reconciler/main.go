package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/xndrbrgs/pampampay-reconciler/internal/alert"
	"github.com/xndrbrgs/pampampay-reconciler/internal/api"
	"github.com/xndrbrgs/pampampay-reconciler/internal/circuitbreaker"
	"github.com/xndrbrgs/pampampay-reconciler/internal/config"
	"github.com/xndrbrgs/pampampay-reconciler/internal/domain/model"
	"github.com/xndrbrgs/pampampay-reconciler/internal/ledger"
	"github.com/xndrbrgs/pampampay-reconciler/internal/reconcile"
	"github.com/xndrbrgs/pampampay-reconciler/internal/store/postgres"
	redispkg "github.com/xndrbrgs/pampampay-reconciler/internal/store/redis"
	"github.com/xndrbrgs/pampampay-reconciler/internal/tracing"
	"github.com/xndrbrgs/pampampay-reconciler/internal/webhook"
	"github.com/xndrbrgs/pampampay-reconciler/internal/webhook/normalizer"
)

var newStreamFactory = func(redisURL, stream string) (redispkg.TransitionPublisher, error) {
	return redispkg.NewStream(redisURL, stream)
}

// enabledProviders returns the providers with a webhook secret configured, in
// the fixed catalog order so logs and metrics stay stable across restarts.
func enabledProviders(cfg *config.Config) []model.Provider {
	var out []model.Provider
	for _, p := range model.AllProviders() {
		if cfg.Providers[p].Enabled() {
			out = append(out, p)
		}
	}
	return out
}

func resolvePublisher(cfg *config.Config, logger *slog.Logger) (redispkg.TransitionPublisher, error) {
	if !cfg.Redis.StreamEnabled {
		return redispkg.NewInMemoryStream(), nil
	}

	redisURL := strings.TrimSpace(cfg.Redis.URL)
	if redisURL == "" {
		return nil, fmt.Errorf("initialize redis stream transport: redis URL is empty")
	}

	stream, err := newStreamFactory(redisURL, cfg.Redis.StreamName)
	if err != nil {
		return nil, fmt.Errorf("initialize redis stream transport: %w", err)
	}

	logger.Info("redis stream transport enabled",
		"redis_url", cfg.Redis.URL,
		"stream", cfg.Redis.StreamName,
	)
	return stream, nil
}

// buildAlerter assembles the alert fan-out from config. Each outbound channel
// gets its own circuit breaker so a dead endpoint cannot stall webhook
// handling. Returns nil when no channel is configured.
func buildAlerter(cfg *config.Config, logger *slog.Logger) alert.Alerter {
	var channels []alert.Alerter
	if cfg.Alert.SlackWebhookURL != "" {
		channels = append(channels, alert.NewBreakerAlerter(
			alert.NewSlackAlerter(cfg.Alert.SlackWebhookURL),
			circuitbreaker.New(circuitbreaker.Config{}),
		))
	}
	if cfg.Alert.WebhookURL != "" {
		channels = append(channels, alert.NewBreakerAlerter(
			alert.NewWebhookAlerter(cfg.Alert.WebhookURL),
			circuitbreaker.New(circuitbreaker.Config{}),
		))
	}
	if len(channels) == 0 {
		return nil
	}
	return alert.NewMultiAlerter(cfg.Alert.Cooldown, logger, channels...)
}

func runHTTPServer(ctx context.Context, name string, port int, handler http.Handler, logger *slog.Logger) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
			logger.Warn("server shutdown error", "server", name, "error", err)
		}
	}()

	logger.Info("server started", "server", name, "port", port)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("%s server: %w", name, err)
	}
	return nil
}

func metricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func main() {
	logLevel := slog.LevelInfo
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	switch cfg.Log.Level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	providers := enabledProviders(cfg)
	providerNames := make([]string, len(providers))
	for i, p := range providers {
		providerNames[i] = p.String()
	}
	sort.Strings(providerNames)

	logger.Info("starting reconciler",
		"providers", strings.Join(providerNames, ","),
		"webhook_port", cfg.Server.WebhookPort,
		"api_port", cfg.Server.APIPort,
		"metrics_port", cfg.Server.MetricsPort,
		"stream_enabled", cfg.Redis.StreamEnabled,
	)

	// Initialize OpenTelemetry tracing
	tracingEndpoint := ""
	if cfg.Tracing.Enabled {
		tracingEndpoint = cfg.Tracing.OTLPEndpoint
	}
	shutdownTracing, err := tracing.Init(context.Background(), "pampampay-reconciler", tracingEndpoint, cfg.Tracing.Insecure, cfg.Tracing.SampleRatio)
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracing shutdown error", "error", err)
		}
	}()
	if cfg.Tracing.Enabled {
		logger.Info("tracing enabled", "endpoint", cfg.Tracing.OTLPEndpoint)
	}

	// Connect to PostgreSQL
	db, err := postgres.New(postgres.Config{
		URL:             cfg.DB.URL,
		MaxOpenConns:    cfg.DB.MaxOpenConns,
		MaxIdleConns:    cfg.DB.MaxIdleConns,
		ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
	})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("connected to database")

	if err := db.RunMigrations(cfg.DB.MigrationsDir); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	publisher, err := resolvePublisher(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize transition publisher", "error", err, "redis_url", cfg.Redis.URL)
		os.Exit(1)
	}
	defer publisher.Close()

	alerter := buildAlerter(cfg, logger)

	repo := postgres.NewTransferRepo(db)
	applier := reconcile.NewApplier(repo, publisher, alerter, logger)
	sweeper := reconcile.NewSweeper(repo, providers, alerter, cfg.Reconcile.StalePendingAfter, logger)
	projector := ledger.NewProjector(repo, providers, logger)

	webhookSrv := webhook.NewServer(
		webhook.NewVerifier(cfg.Providers),
		normalizer.NewRegistry(),
		applier,
		cfg.Providers,
		cfg.Reconcile.ApplyTimeout,
		logger,
	)

	ratelimit := api.NewRateLimitMiddleware(cfg.Server.TrustProxyHeaders, logger)
	defer ratelimit.Stop()
	apiSrv := api.NewServer(projector, repo, cfg.Providers, cfg.ReceiverAccountID, logger,
		api.WithPinger(db),
		api.WithRateLimit(ratelimit),
	)

	// Context with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return runHTTPServer(gCtx, "webhook", cfg.Server.WebhookPort, webhookSrv.Handler(), logger)
	})
	g.Go(func() error {
		return runHTTPServer(gCtx, "api", cfg.Server.APIPort, apiSrv.Handler(), logger)
	})
	g.Go(func() error {
		return runHTTPServer(gCtx, "metrics", cfg.Server.MetricsPort, metricsHandler(), logger)
	})

	// Stale PENDING watchdog
	g.Go(func() error {
		err := sweeper.RunPeriodic(gCtx, cfg.Reconcile.SweepInterval)
		if err != nil && err != context.Canceled {
			return err
		}
		return nil
	})

	// Signal handler
	g.Go(func() error {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.Error("reconciler exited with error", "error", err)
		os.Exit(1)
	}

	logger.Info("reconciler shut down gracefully")
}
