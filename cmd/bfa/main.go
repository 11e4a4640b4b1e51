package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boddenberg/contribution-bfa-go/internal/config"
	"github.com/boddenberg/contribution-bfa-go/internal/domain"
	"github.com/boddenberg/contribution-bfa-go/internal/handler"
	"github.com/boddenberg/contribution-bfa-go/internal/infra/cache"
	"github.com/boddenberg/contribution-bfa-go/internal/infra/client"
	"github.com/boddenberg/contribution-bfa-go/internal/infra/observability"
	"github.com/boddenberg/contribution-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/contribution-bfa-go/internal/infra/session"
	"github.com/boddenberg/contribution-bfa-go/internal/infra/supabase"
	"github.com/boddenberg/contribution-bfa-go/internal/port"
	"github.com/boddenberg/contribution-bfa-go/internal/service"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const serviceName = "contribution-bfa"

func main() {
	// --- Config ---
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel, serviceName)
	defer logger.Sync()

	fallbackRate, _ := cfg.FallbackRate()
	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.Bool("use_supabase", cfg.UseSupabase),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("catalog_cache_ttl", cfg.CatalogCacheTTL),
		zap.Duration("fee_rate_cache_ttl", cfg.FeeRateCacheTTL),
		zap.Duration("flow_ttl", cfg.FlowTTL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
		zap.String("fallback_fee_rate", fallbackRate.String()),
		zap.String("investor_role", cfg.InvestorRole),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, serviceName)
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Cache ---
	catalogCache := cache.New[*domain.Catalog](cfg.CatalogCacheTTL)
	defer catalogCache.Close()
	feeRateCache := cache.New[decimal.Decimal](cfg.FeeRateCacheTTL)
	defer feeRateCache.Close()
	flowStore := cache.New[*service.Flow](cfg.FlowTTL)
	defer flowStore.Close()

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}
	catalogCB := resilience.NewCircuitBreaker("catalog")
	gatewayCB := resilience.NewCircuitBreaker("payment-gateway")

	// --- Clients ---
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	var catalogClient port.CatalogService
	var settingsClient port.SettingsProvider

	if cfg.UseSupabase && cfg.SupabaseURL != "" {
		logger.Info("using Supabase as catalog backend",
			zap.String("supabase_url", cfg.SupabaseURL),
		)
		supabaseClient := supabase.NewClient(
			httpClient,
			cfg.SupabaseURL,
			cfg.SupabaseAnonKey,
			cfg.SupabaseServiceKey,
			catalogCB,
			resilienceCfg,
			logger,
		)
		catalogClient = supabaseClient
		settingsClient = supabaseClient
	} else {
		logger.Info("using HTTP API clients as catalog backend")
		catalogClient = client.NewCatalogClient(httpClient, cfg.CatalogAPIURL, catalogCB, resilienceCfg)
		settingsClient = client.NewSettingsClient(httpClient, cfg.SettingsAPIURL, catalogCB, resilienceCfg)
	}

	gatewayClient := client.NewGatewayClient(httpClient, cfg.PaymentGatewayURL, cfg.PaymentGatewayKey, gatewayCB)
	sessions := session.NewProvider(cfg.JWTSecret)

	// --- Services ---
	gate := service.NewAccessGate(sessions, cfg.InvestorRole, logger)
	deps := service.FlowDeps{
		Catalog:  service.NewCatalogLoader(catalogClient, catalogCache, cfg.MaxConcurrency, metrics, logger),
		FeeRates: service.NewFeeRateService(settingsClient, feeRateCache, fallbackRate, metrics, logger),
		Gate:     gate,
		Metrics:  metrics,
		Logger:   logger,
	}
	submitter := service.NewPaymentSubmitter(gatewayClient, gate, cfg.HTTPTimeout, metrics, logger)
	contrib := service.NewContributionService(flowStore, deps, submitter)

	// --- Router ---
	router := handler.NewRouter(contrib, sessions, metrics, cfg.CORSAllowedOrigins, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
