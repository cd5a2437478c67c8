// Package main is the entrypoint for the Florascope API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/florascope/florascope/internal/activity"
	"github.com/florascope/florascope/internal/billing"
	"github.com/florascope/florascope/internal/cache"
	"github.com/florascope/florascope/internal/classifier"
	"github.com/florascope/florascope/internal/config"
	"github.com/florascope/florascope/internal/handler"
	"github.com/florascope/florascope/internal/imagestore"
	"github.com/florascope/florascope/internal/metrics"
	"github.com/florascope/florascope/internal/middleware"
	"github.com/florascope/florascope/internal/quota"
	"github.com/florascope/florascope/internal/repository"
	"github.com/florascope/florascope/internal/server"
	"github.com/florascope/florascope/internal/service"
)

func main() {
	// Initialize context
	ctx := context.Background()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := initLogger(cfg)
	metricsRecorder := metrics.NewInMemory()

	// Initialize storage
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error(
			"failed to open storage",
			slog.String("driver", cfg.StorageDriver),
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		os.Exit(1)
	}
	defer store.Close()

	// Initialize cache (optional)
	var cacheClient *cache.Cache
	if cfg.RedisURL != "" {
		cacheClient, err = cache.New(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error(
				"failed to connect to Redis",
				slog.String("error", sanitizeError(err, cfg.RedisURL)),
				slog.String("redis_url", redactURL(cfg.RedisURL)),
			)
			os.Exit(1)
		}
		defer cacheClient.Close()
		logger.Info("connected to Redis")
	} else {
		logger.Warn("REDIS_URL not set; result cache and rate limiting disabled, sightings written directly")
	}

	// Initialize classifiers
	chain, err := buildClassifier(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to configure classifiers", "error", err)
		os.Exit(1)
	}

	// Initialize image store
	images, err := buildImageStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to configure image store", "error", err)
		os.Exit(1)
	}

	// Initialize billing (optional)
	var provider billing.Provider
	if cfg.StripeEnabled() {
		adapter, err := billing.NewStripeAdapter(billing.StripeConfig{
			SecretKey:     cfg.StripeSecretKey,
			WebhookSecret: cfg.StripeWebhookSecret,
			PriceID:       cfg.StripePriceID,
		}, logger)
		if err != nil {
			logger.Error("failed to configure Stripe", "error", err)
			os.Exit(1)
		}
		provider = adapter
	} else {
		logger.Warn("STRIPE_SECRET_KEY not set; subscription endpoints disabled")
	}

	policy := quota.Policy{
		FreeDailyLimit:      cfg.FreeDailyLimit,
		TrialDays:           cfg.TrialDays,
		PremiumMonthlyLimit: cfg.PremiumMonthlyLimit,
	}

	// Interfaces stay nil, not typed nil, when Redis is absent.
	var (
		results   service.ResultCache
		sightings activity.Recorder
		limiter   middleware.IPLimiter
		redisPing handler.HealthChecker
		worker    *activity.Worker
	)
	if cacheClient != nil {
		results = cache.NewResultCache(cacheClient, cfg.ResultCacheTTL)
		sightings = activity.NewPublisher(cacheClient.Client(), logger, metricsRecorder)
		limiter = cacheClient
		redisPing = cacheClient

		worker = activity.NewWorker(cacheClient.Client(), store, logger, activity.WorkerConfig{
			ConsumerID: activity.NewConsumerID(),
			Metrics:    metricsRecorder,
		})
	} else {
		sightings = activity.NewDirect(store, logger, metricsRecorder)
	}

	// Initialize services
	identifications := service.NewIdentificationService(service.IdentificationDeps{
		Store:               store,
		Classifier:          chain,
		Images:              images,
		Results:             results,
		Sightings:           sightings,
		Policy:              policy,
		Logger:              logger,
		Metrics:             metricsRecorder,
		MaxImageBytes:       cfg.MaxImageBytes,
		HistoryDefaultLimit: cfg.HistoryDefaultLimit,
		HistoryMaxLimit:     cfg.HistoryMaxLimit,
	})
	subscriptions := service.NewSubscriptionService(store, provider, policy, logger, metricsRecorder)

	// Setup router
	r := handler.NewRouter(handler.RouterConfig{
		Logger:          logger,
		Identifications: identifications,
		Usage:           service.NewUsageService(store, policy),
		Subscriptions:   subscriptions,
		Stats:           service.NewStatsService(store),
		Database:        store,
		Cache:           redisPing,
		Metrics:         metricsRecorder,
		RateLimit: middleware.RateLimitConfig{
			Logger:     logger,
			Limiter:    limiter,
			Enabled:    cfg.RateLimitEnabled,
			RPS:        cfg.RateLimitRPS,
			Burst:      cfg.RateLimitBurst,
			TrustProxy: cfg.TrustProxy,
		},
		CORSAllowedOrigins: cfg.GetCORSAllowedOrigins(),
		MaxRequestBodySize: cfg.MaxRequestBodySize,
		IsDevelopment:      cfg.IsDevelopment(),
	})

	// Create and run server
	srv := server.New(r, server.Options{
		Port:            cfg.AppPort,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, logger)

	if worker != nil {
		go func() {
			if err := worker.Run(context.Background()); err != nil {
				logger.Error("sighting worker stopped", "error", err)
			}
		}()
		srv.OnShutdown("sighting-worker", worker.Shutdown)
	}

	logger.Info("starting server",
		"port", cfg.AppPort,
		"base_url", cfg.BaseURL,
		"env", cfg.AppEnv,
		"storage", cfg.StorageDriver,
		"providers", strings.Join(cfg.EnabledProviders(), ","),
		"image_store", cfg.ImageStore,
		"billing", provider != nil,
	)

	if err := srv.Run(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// openStore connects the configured storage driver, migrating Postgres
// when AUTO_MIGRATE is set.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (repository.Store, error) {
	if cfg.StorageDriver != config.StoragePostgres {
		logger.Warn("using in-memory storage; data is lost on restart")
		return repository.NewMemoryStore(), nil
	}

	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if cfg.AutoMigrate {
		if err := repo.Migrate(ctx); err != nil {
			repo.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		logger.Info("database migrations applied")
	}
	logger.Info("connected to database")
	return repo, nil
}

// buildClassifier assembles the provider chain in configured order.
func buildClassifier(ctx context.Context, cfg *config.Config, logger *slog.Logger) (classifier.Classifier, error) {
	client := classifier.NewHTTPClient(cfg.ClassifierTimeout)

	var providers []classifier.Classifier
	for _, name := range cfg.EnabledProviders() {
		switch name {
		case config.ProviderPlantID:
			providers = append(providers, classifier.NewPlantID(cfg.PlantIDAPIKey, cfg.PlantIDBaseURL, client))
		case config.ProviderOpenAI:
			providers = append(providers, classifier.NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, client))
		case config.ProviderGemini:
			gemini, err := classifier.NewGemini(ctx, classifier.GeminiConfig{
				APIKey:     cfg.GeminiAPIKey,
				Model:      cfg.GeminiModel,
				HTTPClient: client,
			})
			if err != nil {
				return nil, fmt.Errorf("gemini: %w", err)
			}
			providers = append(providers, gemini)
		}
	}
	if len(providers) == 0 {
		return nil, errors.New("no classifier provider has credentials")
	}
	return classifier.NewChain(logger, cfg.ClassifierMaxAttempts, providers...), nil
}

// buildImageStore returns the inline store or an S3 bucket store.
func buildImageStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (imagestore.Store, error) {
	if cfg.ImageStore != config.ImageStoreS3 {
		return imagestore.Inline{}, nil
	}

	s3Store, err := imagestore.NewS3(ctx, imagestore.S3Config{
		Endpoint:      cfg.S3Endpoint,
		Region:        cfg.S3Region,
		Bucket:        cfg.S3Bucket,
		AccessKey:     cfg.S3AccessKey,
		SecretKey:     cfg.S3SecretKey,
		UsePathStyle:  cfg.S3UsePathStyle,
		PublicBaseURL: cfg.S3PublicBaseURL,
	}, logger)
	if err != nil {
		return nil, err
	}
	if err := s3Store.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure bucket: %w", err)
	}
	return s3Store, nil
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	var h slog.Handler

	level := parseLogLevel(cfg.LogLevel)

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)

	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s]+`)

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		username := parsed.User.Username()
		if username == "" {
			parsed.User = url.User("redacted")
		} else {
			parsed.User = url.User(username)
		}
	}

	return parsed.String()
}

func sanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted := redactURL(secret)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}
