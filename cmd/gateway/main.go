// Command gateway runs the x402 reverse-proxy payment gateway.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/stacksx402/gateway/internal/config"
	"github.com/stacksx402/gateway/internal/facilitator"
	"github.com/stacksx402/gateway/internal/httpserver"
	"github.com/stacksx402/gateway/internal/idempotency"
	"github.com/stacksx402/gateway/internal/lifecycle"
	"github.com/stacksx402/gateway/internal/logger"
	"github.com/stacksx402/gateway/internal/metrics"
	"github.com/stacksx402/gateway/internal/policy"
	"github.com/stacksx402/gateway/internal/proxy"
	"github.com/stacksx402/gateway/internal/ttlcache"
)

// Defaults for the built-in echo route when no explicit price is configured.
// Mock-mode development works without any payment env vars.
const (
	defaultEchoAmount = "100000"
	mockPayToAddress  = "ST1MOCKRECIPIENT00000000000000000000"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "gateway:", err)
		os.Exit(1)
	}
}

func run() error {
	// Missing .env is fine; containers inject real environment.
	_ = godotenv.Load()

	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	appLogger := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Service:     "x402-gateway",
		Environment: cfg.Logging.Environment,
	})

	resources := lifecycle.NewManager()
	defer func() {
		if err := resources.Close(); err != nil {
			appLogger.Error().Err(err).Msg("main.cleanup_failed")
		}
	}()

	registry, err := buildRegistry(cfg)
	if err != nil {
		return err
	}

	metricsCollector := metrics.New()

	idempotencyCache := ttlcache.NewWithSweepInterval[idempotency.Response](
		cfg.Cache.IdempotencyTTL.Duration, cfg.Cache.SweepInterval.Duration)
	resources.RegisterFunc("idempotency-cache", func() error {
		idempotencyCache.Stop()
		return nil
	})

	nonceCache := ttlcache.NewWithSweepInterval[struct{}](
		cfg.Cache.NonceTTL.Duration, cfg.Cache.SweepInterval.Duration)
	resources.RegisterFunc("nonce-cache", func() error {
		nonceCache.Stop()
		return nil
	})

	facilitatorClient := facilitator.NewClient(cfg.X402.FacilitatorURL,
		facilitator.WithMetrics(metricsCollector))

	proxyOpts := []proxy.Option{proxy.WithMetrics(metricsCollector)}
	if cfg.Proxy.RequirePolicy {
		proxyOpts = append(proxyOpts, proxy.WithPolicyRequirement(func(path, method string) bool {
			_, ok := registry.Match(path, method)
			return ok
		}))
	}
	proxyHandler := proxy.NewHandler(cfg.Proxy.UpstreamURL, cfg.Proxy.Prefix,
		cfg.Proxy.Timeout.Duration, proxyOpts...)

	server := httpserver.New(httpserver.Deps{
		Config:           cfg,
		Registry:         registry,
		Facilitator:      facilitatorClient,
		Proxy:            proxyHandler,
		IdempotencyCache: idempotencyCache,
		NonceCache:       nonceCache,
		Metrics:          metricsCollector,
		Logger:           appLogger,
	})

	reportCacheSizes(metricsCollector, idempotencyCache, nonceCache)

	return serve(server, cfg, appLogger)
}

// buildRegistry assembles the route policy catalogue: the built-in echo
// route plus every route declared in the config file.
func buildRegistry(cfg *config.Config) (*policy.Registry, error) {
	registry := policy.NewRegistry(cfg.Proxy.Prefix)

	payTo := cfg.X402.PayTo
	if payTo == "" {
		payTo = mockPayToAddress
	}
	amount := cfg.X402.DefaultAmount
	if amount == "" {
		amount = defaultEchoAmount
	}
	asset := cfg.X402.Asset
	if asset == "" {
		asset = "STX"
	}

	echo, err := policy.NewBuilder("/v1/premium/echo").
		Method(http.MethodGet).
		Price(amount, asset).
		PayTo(payTo).
		Network(cfg.X402.Network).
		Description("Premium echo endpoint").
		Build()
	if err != nil {
		return nil, err
	}
	if err := registry.Register(echo); err != nil {
		return nil, err
	}

	for name, route := range cfg.Routes {
		b := policy.NewBuilder(route.Path).
			Method(route.Method).
			PayTo(payTo).
			Network(cfg.X402.Network).
			Description(route.Description)

		routeAmount := route.Amount
		if routeAmount == "" {
			routeAmount = amount
		}
		routeAsset := route.Asset
		if routeAsset == "" {
			routeAsset = asset
		}
		b.Price(routeAmount, routeAsset)

		if route.MimeType != "" {
			b.MimeType(route.MimeType)
		}
		if route.TimeoutSeconds > 0 {
			b.Timeout(route.TimeoutSeconds)
		}
		if len(route.Extra) > 0 {
			b.Extra(route.Extra)
		}

		p, err := b.Build()
		if err != nil {
			return nil, fmt.Errorf("route %s: %w", name, err)
		}
		if err := registry.Register(p); err != nil {
			return nil, fmt.Errorf("route %s: %w", name, err)
		}
	}

	return registry, nil
}

// reportCacheSizes keeps the cache gauges current without a dedicated
// goroutine per cache.
func reportCacheSizes(m *metrics.Metrics, idem *ttlcache.Cache[idempotency.Response], nonces *ttlcache.Cache[struct{}]) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			m.CacheEntries.WithLabelValues("idempotency").Set(float64(idem.Len()))
			m.CacheEntries.WithLabelValues("nonce").Set(float64(nonces.Len()))
		}
	}()
}

// serve runs the HTTP server until SIGINT/SIGTERM, then drains connections.
func serve(server *httpserver.Server, cfg *config.Config, appLogger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		appLogger.Info().
			Str("address", cfg.Server.Address).
			Bool("mock_payments", cfg.X402.MockPayments).
			Str("network", cfg.X402.Network).
			Str("upstream", cfg.Proxy.UpstreamURL).
			Msg("main.server_starting")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	appLogger.Info().Msg("main.shutdown_started")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	appLogger.Info().Msg("main.shutdown_complete")
	return nil
}
