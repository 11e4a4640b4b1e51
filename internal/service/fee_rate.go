package service

import (
	"context"
	"errors"

	"github.com/boddenberg/contribution-bfa-go/internal/domain"
	"github.com/boddenberg/contribution-bfa-go/internal/infra/observability"
	"github.com/boddenberg/contribution-bfa-go/internal/port"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const feeRateCacheKey = "platform-fee-rate"

// FeeRateService reads the platform fee rate once per flow, with a
// process-wide cache in front of the settings provider.
type FeeRateService struct {
	settings port.SettingsProvider
	cache    port.Cache[decimal.Decimal]
	fallback decimal.Decimal
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewFeeRateService creates the fee rate reader. A zero fallback means
// DefaultPlatformFeeRate.
func NewFeeRateService(
	settings port.SettingsProvider,
	cache port.Cache[decimal.Decimal],
	fallback decimal.Decimal,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *FeeRateService {
	if fallback.IsZero() {
		fallback = DefaultPlatformFeeRate
	}
	return &FeeRateService{
		settings: settings,
		cache:    cache,
		fallback: fallback,
		metrics:  metrics,
		logger:   logger,
	}
}

// CurrentRate returns the platform fee rate. It never fails: when the
// settings provider errors the fallback rate is returned as provisional.
func (s *FeeRateService) CurrentRate(ctx context.Context) domain.FeeRate {
	ctx, span := tracer.Start(ctx, "FeeRateService.CurrentRate")
	defer span.End()

	if rate, ok := s.cache.Get(feeRateCacheKey); ok {
		s.metrics.IncrCacheHit("fee_rate")
		return domain.FeeRate{Value: rate}
	}
	s.metrics.IncrCacheMiss("fee_rate")

	rate, err := s.settings.GetPlatformFeeRate(ctx)
	if err == nil && rate.IsNegative() {
		err = errors.New("negative platform fee rate")
	}
	if err != nil {
		s.logger.Warn("platform fee rate unavailable, using fallback",
			zap.String("fallback", s.fallback.String()),
			zap.Error(err),
		)
		s.metrics.IncrExternalError("settings")
		return domain.FeeRate{Value: s.fallback, Provisional: true}
	}

	s.cache.Set(feeRateCacheKey, rate)
	return domain.FeeRate{Value: rate}
}
