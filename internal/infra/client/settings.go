package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/boddenberg/contribution-bfa-go/internal/infra/resilience"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
)

// SettingsClient reads platform settings from the Settings API.
type SettingsClient struct {
	httpClient *http.Client
	baseURL    string
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
}

// NewSettingsClient creates a new SettingsClient.
func NewSettingsClient(httpClient *http.Client, baseURL string, cb *gobreaker.CircuitBreaker, cfg resilience.Config) *SettingsClient {
	return &SettingsClient{
		httpClient: httpClient,
		baseURL:    baseURL,
		cb:         cb,
		cfg:        cfg,
	}
}

type platformFeeResponse struct {
	Rate decimal.Decimal `json:"rate"`
}

// GetPlatformFeeRate returns the platform fee as a fraction (0.02 = 2%).
func (c *SettingsClient) GetPlatformFeeRate(ctx context.Context) (decimal.Decimal, error) {
	ctx, span := tracer.Start(ctx, "SettingsClient.GetPlatformFeeRate")
	defer span.End()

	var body platformFeeResponse

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			url := fmt.Sprintf("%s/v1/settings/platform-fee", c.baseURL)
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return resilience.Permanent(err)
			}

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("settings API returned status %d", resp.StatusCode)
			}

			return json.NewDecoder(resp.Body).Decode(&body)
		})
	})

	if err != nil {
		return decimal.Zero, wrapExternal("settings", 0, err)
	}
	return body.Rate, nil
}
