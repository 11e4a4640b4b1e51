package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/boddenberg/contribution-bfa-go/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
)

// Gateway error codes that carry meaning for the contributor.
const (
	gatewayCodeDuplicatePurchase = "DUPLICATE_PURCHASE"
	gatewayCodeRejected          = "PAYMENT_REJECTED"
)

// GatewayClient creates checkout sessions on the external payment gateway.
// Requests are never retried: one call is one payment attempt.
type GatewayClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	cb         *gobreaker.CircuitBreaker
}

// NewGatewayClient creates a new GatewayClient.
func NewGatewayClient(httpClient *http.Client, baseURL, apiKey string, cb *gobreaker.CircuitBreaker) *GatewayClient {
	return &GatewayClient{
		httpClient: httpClient,
		baseURL:    baseURL,
		apiKey:     apiKey,
		cb:         cb,
	}
}

type gatewayMilestoneRequest struct {
	MilestoneID   string `json:"milestoneId"`
	ContributorID string `json:"contributorId"`
}

type gatewayCustomRequest struct {
	PhaseID       string          `json:"phaseId"`
	Amount        decimal.Decimal `json:"amount"`
	ContributorID string          `json:"contributorId"`
}

type gatewaySessionResponse struct {
	RedirectURL string `json:"redirectUrl"`
	SessionID   string `json:"sessionId"`
}

type gatewayErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CreatePaymentForMilestone opens a checkout session for a milestone purchase.
func (c *GatewayClient) CreatePaymentForMilestone(ctx context.Context, milestoneID, contributorID, idempotencyKey string) (*domain.PaymentRedirect, error) {
	ctx, span := tracer.Start(ctx, "GatewayClient.CreatePaymentForMilestone")
	defer span.End()
	span.SetAttributes(attribute.String("milestone.id", milestoneID))

	return c.createSession(ctx, "/v1/payments/milestone", gatewayMilestoneRequest{
		MilestoneID:   milestoneID,
		ContributorID: contributorID,
	}, idempotencyKey)
}

// CreatePaymentForPhaseCustomAmount opens a checkout session for a custom
// contribution to a phase.
func (c *GatewayClient) CreatePaymentForPhaseCustomAmount(ctx context.Context, phaseID string, amount decimal.Decimal, contributorID, idempotencyKey string) (*domain.PaymentRedirect, error) {
	ctx, span := tracer.Start(ctx, "GatewayClient.CreatePaymentForPhaseCustomAmount")
	defer span.End()
	span.SetAttributes(
		attribute.String("phase.id", phaseID),
		attribute.String("amount", amount.StringFixed(2)),
	)

	return c.createSession(ctx, "/v1/payments/phase", gatewayCustomRequest{
		PhaseID:       phaseID,
		Amount:        amount,
		ContributorID: contributorID,
	}, idempotencyKey)
}

func (c *GatewayClient) createSession(ctx context.Context, path string, payload any, idempotencyKey string) (*domain.PaymentRedirect, error) {
	var status int

	result, err := c.cb.Execute(func() (any, error) {
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", idempotencyKey)
		if c.apiKey != "" {
			req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		status = resp.StatusCode

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, gatewayError(resp.StatusCode, raw)
		}

		var session gatewaySessionResponse
		if err := json.Unmarshal(raw, &session); err != nil {
			return nil, fmt.Errorf("decode gateway response: %w", err)
		}
		return &domain.PaymentRedirect{
			RedirectURL: session.RedirectURL,
			SessionID:   session.SessionID,
			CreatedAt:   time.Now(),
		}, nil
	})

	if err != nil {
		var failed *domain.ErrPaymentRequestFailed
		if errors.As(err, &failed) {
			return nil, failed
		}
		return nil, wrapExternal("payment_gateway", status, err)
	}
	return result.(*domain.PaymentRedirect), nil
}

// gatewayError classifies a non-2xx gateway answer. Structured codes win
// over the status; a duplicate purchase keeps the gateway's message.
func gatewayError(status int, raw []byte) error {
	var body gatewayErrorResponse
	_ = json.Unmarshal(raw, &body)
	message := strings.TrimSpace(body.Message)

	switch {
	case body.Code == gatewayCodeDuplicatePurchase, status == http.StatusConflict:
		if message == "" {
			message = "This milestone was already funded by this account."
		}
		return &domain.ErrPaymentRequestFailed{Cause: domain.CauseDuplicatePurchase, Message: message}
	case body.Code == gatewayCodeRejected:
		return &domain.ErrPaymentRequestFailed{Cause: domain.CauseRejected, Message: message}
	}
	return &domain.ErrExternalService{
		Service: "payment_gateway",
		Status:  status,
		Err:     fmt.Errorf("payment gateway returned status %d: %s", status, message),
	}
}
