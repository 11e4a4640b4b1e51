package service_test

import (
	"testing"

	"github.com/boddenberg/contribution-bfa-go/internal/domain"
	"github.com/boddenberg/contribution-bfa-go/internal/service"

	"github.com/stretchr/testify/assert"
)

func TestBreakdown_InvestorExample(t *testing.T) {
	b := service.Breakdown("100", domain.FeeRate{Value: dec("0.02")})

	assert.True(t, b.Base.Equal(dec("100")))
	assert.True(t, b.PlatformFee.Equal(dec("2")))
	assert.True(t, b.Total.Equal(dec("102")))

	v := b.View()
	assert.Equal(t, "100.00", v.Base)
	assert.Equal(t, "2.00", v.PlatformFee)
	assert.Equal(t, "102.00", v.Total)
	assert.Equal(t, "2", v.RatePercent)
}

func TestBreakdown_TotalIsBasePlusFee(t *testing.T) {
	rates := []string{"0", "0.02", "0.035", "0.1"}
	amounts := []string{"0.01", "1", "12.34", "99.99", "250.50", "1000000"}

	for _, r := range rates {
		for _, a := range amounts {
			rate := domain.FeeRate{Value: dec(r)}
			b := service.Breakdown(a, rate)
			assert.Truef(t, b.Total.Equal(b.Base.Add(b.PlatformFee)), "rate=%s amount=%s", r, a)
			assert.Truef(t, b.PlatformFee.Equal(dec(a).Mul(dec(r))), "rate=%s amount=%s", r, a)
			assert.False(t, b.PlatformFee.IsNegative())
		}
	}
}

func TestBreakdown_UnusableInputIsZero(t *testing.T) {
	for _, in := range []string{"", "   ", "abc", "-5", "0", "0.00", "1e", "12,50"} {
		b := service.Breakdown(in, domain.FeeRate{Value: dec("0.02")})
		assert.Truef(t, b.Base.IsZero(), "input %q", in)
		assert.Truef(t, b.PlatformFee.IsZero(), "input %q", in)
		assert.Truef(t, b.Total.IsZero(), "input %q", in)
		assert.Equal(t, "0.00", b.View().Total)
	}
}

func TestBreakdown_DisplayRounding(t *testing.T) {
	b := service.Breakdown("12.34", domain.FeeRate{Value: dec("0.02")})

	// Exact arithmetic underneath, two places only for display.
	assert.True(t, b.PlatformFee.Equal(dec("0.2468")))
	assert.True(t, b.Total.Equal(dec("12.5868")))
	assert.Equal(t, "0.25", b.View().PlatformFee)
	assert.Equal(t, "12.59", b.View().Total)
}

func TestBreakdown_CarriesProvisionalRate(t *testing.T) {
	b := service.Breakdown("10", domain.FeeRate{Value: dec("0.02"), Provisional: true})
	assert.True(t, b.Provisional)
	assert.True(t, b.View().Provisional)
}

func TestBreakdown_TrimsInput(t *testing.T) {
	b := service.Breakdown(" 50 ", domain.FeeRate{Value: dec("0.02")})
	assert.True(t, b.Total.Equal(dec("51")))
}
