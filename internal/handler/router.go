package handler

import (
	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/florascope/florascope/internal/metrics"
	"github.com/florascope/florascope/internal/middleware"
	"github.com/florascope/florascope/internal/service"
)

// RouterConfig collects everything the HTTP surface needs.
type RouterConfig struct {
	Logger *slog.Logger

	Identifications *service.IdentificationService
	Usage           *service.UsageService
	Subscriptions   *service.SubscriptionService
	Stats           *service.StatsService

	// Database and Cache back /readyz; nil means not configured.
	Database HealthChecker
	Cache    HealthChecker
	Metrics  metrics.Snapshotter

	RateLimit          middleware.RateLimitConfig
	CORSAllowedOrigins []string
	MaxRequestBodySize int64
	IsDevelopment      bool
}

// NewRouter configures the chi router with all routes and middleware.
func NewRouter(cfg RouterConfig) *chi.Mux {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	h := New()
	healthHandler := NewHealthHandler(logger, cfg.Database, cfg.Cache)
	metricsHandler := NewMetricsHandler(cfg.Metrics)
	identifyHandler := NewIdentifyHandler(cfg.Identifications, logger)
	usageHandler := NewUsageHandler(cfg.Usage, logger)
	subscriptionHandler := NewSubscriptionHandler(cfg.Subscriptions, logger)
	statsHandler := NewStatsHandler(cfg.Stats, logger)

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.CORSAllowedOrigins

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Security(middleware.SecurityConfig{IsDevelopment: cfg.IsDevelopment}))
	r.Use(middleware.CORS(corsCfg))
	r.Use(middleware.MaxBodySize(cfg.MaxRequestBodySize))

	// Operational endpoints
	r.Get("/", h.Hello)
	r.Get("/healthz", healthHandler.Healthz)
	r.Get("/readyz", healthHandler.Readyz)
	r.Get("/metrics", metricsHandler.Metrics)

	r.Route("/api", func(r chi.Router) {
		// Each identification costs an upstream call.
		r.With(middleware.RateLimitIP(cfg.RateLimit)).Post("/identify-plant", identifyHandler.Identify)
		r.Get("/history/{userId}", identifyHandler.History)
		r.Get("/usage/{userId}", usageHandler.Get)

		r.Post("/create-subscription", subscriptionHandler.Create)
		r.Post("/subscription-success", subscriptionHandler.Success)
		r.Post("/cancel-subscription", subscriptionHandler.Cancel)
		r.Post("/webhooks/stripe", subscriptionHandler.Webhook)

		r.Get("/stats/species", statsHandler.PopularSpecies)
	})

	// 404 and 405 handlers
	r.NotFound(h.NotFound)
	r.MethodNotAllowed(h.MethodNotAllowed)

	return r
}

