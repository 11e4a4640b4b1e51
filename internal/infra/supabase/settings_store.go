package supabase

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

const platformFeeRateKey = "platform_fee_rate"

type settingRow struct {
	Key   string          `json:"key"`
	Value decimal.Decimal `json:"value"`
}

// GetPlatformFeeRate reads the platform fee rate from platform_settings.
func (c *Client) GetPlatformFeeRate(ctx context.Context) (decimal.Decimal, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetPlatformFeeRate")
	defer span.End()

	var rows []settingRow
	if err := c.query(ctx, "settings", "platform_settings?key=eq."+platformFeeRateKey+"&limit=1", &rows); err != nil {
		return decimal.Zero, err
	}
	if len(rows) == 0 {
		return decimal.Zero, errors.New("platform fee rate is not configured")
	}
	return rows[0].Value, nil
}
