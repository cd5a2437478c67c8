// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Storage drivers.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// Image store backends.
const (
	ImageStoreInline = "inline"
	ImageStoreS3     = "s3"
)

// Classifier provider names accepted in CLASSIFIER_PROVIDERS.
const (
	ProviderPlantID = "plantid"
	ProviderOpenAI  = "openai"
	ProviderGemini  = "gemini"
)

// Config holds all application configuration.
// All fields are populated from environment variables.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`
	BaseURL string `env:"BASE_URL" envDefault:"http://localhost:8080"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts. Writes cover a full classifier round trip.
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Storage
	StorageDriver string `env:"STORAGE_DRIVER" envDefault:"memory"`
	DatabaseURL   string `env:"DATABASE_URL"`
	AutoMigrate   bool   `env:"AUTO_MIGRATE" envDefault:"true"`

	// Cache (Redis). Optional: rate limiting, the result cache and the
	// sighting stream are disabled without it.
	RedisURL       string        `env:"REDIS_URL"`
	ResultCacheTTL time.Duration `env:"RESULT_CACHE_TTL" envDefault:"24h"`

	// Quotas
	FreeDailyLimit      int `env:"FREE_DAILY_LIMIT" envDefault:"3"`
	TrialDays           int `env:"TRIAL_DAYS" envDefault:"5"`
	PremiumMonthlyLimit int `env:"PREMIUM_MONTHLY_LIMIT" envDefault:"100"`
	HistoryDefaultLimit int `env:"HISTORY_DEFAULT_LIMIT" envDefault:"10"`
	HistoryMaxLimit     int `env:"HISTORY_MAX_LIMIT" envDefault:"50"`

	// Classifiers, tried in order.
	ClassifierProviders   []string      `env:"CLASSIFIER_PROVIDERS" envSeparator:"," envDefault:"plantid,openai"`
	ClassifierMaxAttempts int           `env:"CLASSIFIER_MAX_ATTEMPTS" envDefault:"2"`
	ClassifierTimeout     time.Duration `env:"CLASSIFIER_TIMEOUT" envDefault:"30s"`
	PlantIDAPIKey         string        `env:"PLANT_ID_API_KEY"`
	PlantIDBaseURL        string        `env:"PLANT_ID_BASE_URL" envDefault:"https://plant.id/api/v3"`
	OpenAIAPIKey          string        `env:"OPENAI_API_KEY"`
	OpenAIBaseURL         string        `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1"`
	OpenAIModel           string        `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	GeminiAPIKey          string        `env:"GEMINI_API_KEY"`
	GeminiModel           string        `env:"GEMINI_MODEL" envDefault:"gemini-2.0-flash"`

	// Images
	MaxImageBytes   int    `env:"MAX_IMAGE_BYTES" envDefault:"8388608"`
	ImageStore      string `env:"IMAGE_STORE" envDefault:"inline"`
	S3Endpoint      string `env:"S3_ENDPOINT"`
	S3Region        string `env:"S3_REGION" envDefault:"us-east-1"`
	S3Bucket        string `env:"S3_BUCKET"`
	S3AccessKey     string `env:"S3_ACCESS_KEY"`
	S3SecretKey     string `env:"S3_SECRET_KEY"`
	S3UsePathStyle  bool   `env:"S3_USE_PATH_STYLE" envDefault:"true"`
	S3PublicBaseURL string `env:"S3_PUBLIC_BASE_URL"`

	// Stripe. Subscription endpoints answer 503 without a secret key.
	StripeSecretKey     string `env:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`
	StripePriceID       string `env:"STRIPE_PRICE_ID"`

	// Rate limiting (per client IP, identify endpoint only)
	RateLimitEnabled bool `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RateLimitRPS     int  `env:"RATE_LIMIT_RPS" envDefault:"2"`
	RateLimitBurst   int  `env:"RATE_LIMIT_BURST" envDefault:"5"`

	// TrustProxy takes the client IP from X-Forwarded-For / X-Real-IP.
	// Enable only behind a proxy that overwrites those headers.
	TrustProxy bool `env:"TRUST_PROXY" envDefault:"false"`

	// CORS configuration
	// Comma-separated list of allowed origins (e.g., "capacitor://localhost,https://app.example.com")
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:""`

	// Request body size limit in bytes. Base64 inflates images by a third.
	MaxRequestBodySize int64 `env:"MAX_REQUEST_BODY_SIZE" envDefault:"12582912"`
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// StripeEnabled reports whether subscription endpoints can reach Stripe.
func (c *Config) StripeEnabled() bool {
	return c.StripeSecretKey != ""
}

// GetCORSAllowedOrigins parses the comma-separated origins string into a slice.
func (c *Config) GetCORSAllowedOrigins() []string {
	if c.CORSAllowedOrigins == "" {
		return nil
	}

	origins := strings.Split(c.CORSAllowedOrigins, ",")
	result := make([]string, 0, len(origins))

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// EnabledProviders returns the configured providers that have credentials,
// preserving the configured order.
func (c *Config) EnabledProviders() []string {
	var enabled []string
	for _, p := range c.ClassifierProviders {
		name := strings.ToLower(strings.TrimSpace(p))
		switch {
		case name == ProviderPlantID && c.PlantIDAPIKey != "":
			enabled = append(enabled, name)
		case name == ProviderOpenAI && c.OpenAIAPIKey != "":
			enabled = append(enabled, name)
		case name == ProviderGemini && c.GeminiAPIKey != "":
			enabled = append(enabled, name)
		}
	}
	return enabled
}

// Validate checks option combinations that env tags cannot express.
func (c *Config) Validate() error {
	var errs []error

	switch c.StorageDriver {
	case StorageMemory:
	case StoragePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required when STORAGE_DRIVER=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver))
	}

	switch c.ImageStore {
	case ImageStoreInline:
	case ImageStoreS3:
		if c.S3Bucket == "" {
			errs = append(errs, errors.New("S3_BUCKET is required when IMAGE_STORE=s3"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown IMAGE_STORE %q", c.ImageStore))
	}

	for _, p := range c.ClassifierProviders {
		switch strings.ToLower(strings.TrimSpace(p)) {
		case ProviderPlantID, ProviderOpenAI, ProviderGemini:
		default:
			errs = append(errs, fmt.Errorf("unknown classifier provider %q", p))
		}
	}
	if len(c.EnabledProviders()) == 0 {
		errs = append(errs, errors.New("no classifier provider has an API key configured"))
	}

	if c.FreeDailyLimit < 0 || c.PremiumMonthlyLimit < 0 || c.TrialDays < 0 {
		errs = append(errs, errors.New("quota limits must not be negative"))
	}
	if c.HistoryDefaultLimit <= 0 || c.HistoryMaxLimit < c.HistoryDefaultLimit {
		errs = append(errs, errors.New("HISTORY_DEFAULT_LIMIT must be positive and not exceed HISTORY_MAX_LIMIT"))
	}
	if c.StripeEnabled() && c.StripePriceID == "" {
		errs = append(errs, errors.New("STRIPE_PRICE_ID is required when STRIPE_SECRET_KEY is set"))
	}

	return errors.Join(errs...)
}

// Load parses environment variables and returns a validated Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
