package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port     int    `env:"PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// External services
	CatalogAPIURL     string `env:"CATALOG_API_URL" envDefault:"http://localhost:8081"`
	SettingsAPIURL    string `env:"SETTINGS_API_URL" envDefault:"http://localhost:8082"`
	PaymentGatewayURL string `env:"PAYMENT_GATEWAY_URL" envDefault:"http://localhost:8090"`
	PaymentGatewayKey string `env:"PAYMENT_GATEWAY_KEY"`

	// HTTP client
	HTTPTimeout time.Duration `env:"HTTP_TIMEOUT" envDefault:"10s"`

	// Resilience
	MaxRetries     int           `env:"MAX_RETRIES" envDefault:"3"`
	InitialBackoff time.Duration `env:"INITIAL_BACKOFF" envDefault:"100ms"`
	MaxConcurrency int           `env:"MAX_CONCURRENCY" envDefault:"8"`

	// Cache
	CatalogCacheTTL time.Duration `env:"CATALOG_CACHE_TTL" envDefault:"1m"`
	FeeRateCacheTTL time.Duration `env:"FEE_RATE_CACHE_TTL" envDefault:"5m"`
	FlowTTL         time.Duration `env:"FLOW_TTL" envDefault:"30m"`

	// Fees
	FallbackFeeRate string `env:"FALLBACK_FEE_RATE" envDefault:"0.02"`

	// Observability
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	// Supabase
	UseSupabase        bool   `env:"USE_SUPABASE" envDefault:"false"`
	SupabaseURL        string `env:"SUPABASE_URL"`
	SupabaseAnonKey    string `env:"SUPABASE_ANON_KEY"`
	SupabaseServiceKey string `env:"SUPABASE_SERVICE_ROLE_KEY"`

	// Sessions / access
	JWTSecret    string `env:"JWT_SECRET" envDefault:"bfa-default-dev-secret-change-me"`
	InvestorRole string `env:"INVESTOR_ROLE" envDefault:"INVESTOR"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
}

// devJWTSecret is the JWT_SECRET default. It is only accepted with
// LOG_LEVEL=debug.
const devJWTSecret = "bfa-default-dev-secret-change-me"

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.FlowTTL <= 0 || cfg.CatalogCacheTTL <= 0 || cfg.FeeRateCacheTTL <= 0 {
		return nil, fmt.Errorf("cache and flow TTLs must be positive")
	}
	if _, err := cfg.FallbackRate(); err != nil {
		return nil, err
	}
	if cfg.JWTSecret == "" || (cfg.JWTSecret == devJWTSecret && cfg.LogLevel != "debug") {
		return nil, fmt.Errorf("JWT_SECRET must be set outside debug mode")
	}
	return cfg, nil
}

// FallbackRate parses FALLBACK_FEE_RATE.
func (c *Config) FallbackRate() (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(c.FallbackFeeRate)
	if err != nil {
		return decimal.Zero, fmt.Errorf("FALLBACK_FEE_RATE: %w", err)
	}
	if rate.IsNegative() {
		return decimal.Zero, fmt.Errorf("FALLBACK_FEE_RATE must not be negative")
	}
	return rate, nil
}
