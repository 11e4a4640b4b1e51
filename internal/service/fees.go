package service

import (
	"strings"

	"github.com/boddenberg/contribution-bfa-go/internal/domain"

	"github.com/shopspring/decimal"
)

// ============================================================
// Fee Calculator
// ============================================================

// DefaultPlatformFeeRate is used when the settings provider cannot be read.
var DefaultPlatformFeeRate = decimal.RequireFromString("0.02")

// PlatformFee returns amount × rate.
func PlatformFee(amount, rate decimal.Decimal) decimal.Decimal {
	return amount.Mul(rate)
}

// Total returns amount plus its platform fee.
func Total(amount, rate decimal.Decimal) decimal.Decimal {
	return amount.Add(PlatformFee(amount, rate))
}

// Breakdown computes the fee breakdown for a raw amount as typed or
// stored. Empty, non-numeric or non-positive input yields an all-zero
// breakdown instead of an error.
func Breakdown(input string, rate domain.FeeRate) domain.FeeBreakdown {
	zero := domain.FeeBreakdown{
		Base:        decimal.Zero,
		PlatformFee: decimal.Zero,
		Total:       decimal.Zero,
		Rate:        rate.Value,
		Provisional: rate.Provisional,
	}

	input = strings.TrimSpace(input)
	if input == "" {
		return zero
	}
	amount, err := decimal.NewFromString(input)
	if err != nil || !amount.IsPositive() {
		return zero
	}

	return domain.FeeBreakdown{
		Base:        amount,
		PlatformFee: PlatformFee(amount, rate.Value),
		Total:       Total(amount, rate.Value),
		Rate:        rate.Value,
		Provisional: rate.Provisional,
	}
}
