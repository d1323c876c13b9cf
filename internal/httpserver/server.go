// Package httpserver wires the gateway's routes and middleware pipeline.
package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/stacksx402/gateway/internal/config"
	"github.com/stacksx402/gateway/internal/discovery"
	"github.com/stacksx402/gateway/internal/idempotency"
	"github.com/stacksx402/gateway/internal/logger"
	"github.com/stacksx402/gateway/internal/metrics"
	"github.com/stacksx402/gateway/internal/paywall"
	"github.com/stacksx402/gateway/internal/policy"
	"github.com/stacksx402/gateway/internal/proxy"
	"github.com/stacksx402/gateway/internal/ttlcache"
)

var serverStartTime = time.Now()

// Server wires handlers, middleware, and dependencies.
type Server struct {
	handlers
	httpServer *http.Server
}

// Deps carries everything the router needs.
type Deps struct {
	Config           *config.Config
	Registry         *policy.Registry
	Facilitator      paywall.Facilitator
	Proxy            *proxy.Handler
	IdempotencyCache *ttlcache.Cache[idempotency.Response]
	NonceCache       *ttlcache.Cache[struct{}]
	Metrics          *metrics.Metrics
	Logger           zerolog.Logger
}

type handlers struct {
	cfg      *config.Config
	registry *policy.Registry
	logger   zerolog.Logger
}

// New builds the HTTP server with configured router.
func New(deps Deps) *Server {
	router := chi.NewRouter()
	ConfigureRouter(router, deps)

	return &Server{
		handlers: handlers{
			cfg:      deps.Config,
			registry: deps.Registry,
			logger:   deps.Logger,
		},
		httpServer: &http.Server{
			Addr:         deps.Config.Server.Address,
			ReadTimeout:  deps.Config.Server.ReadTimeout.Duration,
			WriteTimeout: deps.Config.Server.WriteTimeout.Duration,
			IdleTimeout:  deps.Config.Server.IdleTimeout.Duration,
			Handler:      router,
		},
	}
}

// ConfigureRouter attaches gateway routes to an existing router.
func ConfigureRouter(router chi.Router, deps Deps) {
	if router == nil {
		return
	}

	cfg := deps.Config
	handler := handlers{
		cfg:      cfg,
		registry: deps.Registry,
		logger:   deps.Logger,
	}

	if len(cfg.Server.CORSAllowedOrigins) > 0 {
		router.Use(cors.New(cors.Options{
			AllowedOrigins:   cfg.Server.CORSAllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"*"},
			ExposedHeaders:   []string{"payment-required", "payment-response", "X-Request-ID"},
			AllowCredentials: false,
			MaxAge:           300,
		}).Handler)
	}

	router.Use(securityHeadersMiddleware)
	router.Use(logger.Middleware(deps.Logger))
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	if deps.Metrics != nil {
		router.Use(deps.Metrics.InFlight)
	}

	// Lightweight endpoints with a short timeout; none of these touch the
	// facilitator or the upstream.
	router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(5 * time.Second))
		r.Get("/gateway-health", handler.health)
		r.Get("/.well-known/x402", discovery.NewHandler(deps.Registry, discovery.Config{
			Name:          cfg.Discovery.Name,
			Description:   cfg.Discovery.Description,
			ImageURL:      cfg.Discovery.ImageURL,
			PublicBaseURL: cfg.PublicBase(),
		}).ServeHTTP)
		if deps.Metrics != nil {
			r.Handle("/metrics", deps.Metrics.Handler())
		}
	})

	// Paid routes run the full pipeline. The write timeout already bounds
	// the whole exchange; facilitator calls carry their own per-policy
	// deadline inside the gate.
	router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(90 * time.Second))
		r.Use(idempotency.Middleware(deps.IdempotencyCache, deps.Metrics))
		r.Use(paywall.ValidateSignature(deps.Registry, deps.Metrics))
		r.Use(paywall.ReplayGuard(deps.NonceCache, deps.Metrics))
		r.Use(paywall.Gate(deps.Registry, deps.Facilitator, paywall.GateConfig{
			BaseURL:      cfg.X402.BaseURL,
			Network:      cfg.X402.Network,
			MockPayments: cfg.X402.MockPayments,
		}, deps.Metrics))

		r.Get("/v1/premium/echo", handler.premiumEcho)
		r.Handle("/proxy/*", deps.Proxy)
	})
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
