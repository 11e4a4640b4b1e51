package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/boddenberg/contribution-bfa-go/internal/domain"
	"github.com/boddenberg/contribution-bfa-go/internal/infra/client"
	"github.com/boddenberg/contribution-bfa-go/internal/infra/resilience"

	"github.com/shopspring/decimal"
)

var fastRetry = resilience.Config{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxConcurrency: 4}

func TestCatalogClient_GetPhasesForProject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/projects/proj-1/phases" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id":"ph-1","projectId":"proj-1","number":1,"status":"PROCESS","targetAmount":"1000.50","raisedAmount":"10"}]`))
	}))
	defer srv.Close()

	c := client.NewCatalogClient(srv.Client(), srv.URL, resilience.NewCircuitBreaker("test"), fastRetry)
	phases, err := c.GetPhasesForProject(context.Background(), "proj-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(phases) != 1 || phases[0].ID != "ph-1" || !phases[0].IsOpen() {
		t.Fatalf("unexpected phases: %+v", phases)
	}
	if !phases[0].TargetAmount.Equal(decimal.RequireFromString("1000.50")) {
		t.Errorf("expected target 1000.50, got %s", phases[0].TargetAmount)
	}
}

func TestCatalogClient_GetMilestonesFillsPhaseID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":"ms-1","title":"Backer","price":100,"rewards":[{"name":"Sticker","quantity":1}]}]`))
	}))
	defer srv.Close()

	c := client.NewCatalogClient(srv.Client(), srv.URL, resilience.NewCircuitBreaker("test"), fastRetry)
	milestones, err := c.GetMilestonesForPhase(context.Background(), "ph-9")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(milestones) != 1 || milestones[0].PhaseID != "ph-9" {
		t.Fatalf("unexpected milestones: %+v", milestones)
	}
	if len(milestones[0].Rewards) != 1 {
		t.Errorf("expected 1 reward, got %d", len(milestones[0].Rewards))
	}
}

func TestCatalogClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := client.NewCatalogClient(srv.Client(), srv.URL, resilience.NewCircuitBreaker("test"), fastRetry)
	phases, err := c.GetPhasesForProject(context.Background(), "proj-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if phases == nil || len(phases) != 0 {
		t.Errorf("expected empty phase list, got %v", phases)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 calls, got %d", calls.Load())
	}
}

func TestCatalogClient_NotFoundIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := client.NewCatalogClient(srv.Client(), srv.URL, resilience.NewCircuitBreaker("test"), fastRetry)
	_, err := c.GetPhasesForProject(context.Background(), "missing")

	var notFound *domain.ErrNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 call, got %d", calls.Load())
	}
}

func TestSettingsClient_GetPlatformFeeRate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/settings/platform-fee" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"rate":"0.025"}`))
	}))
	defer srv.Close()

	c := client.NewSettingsClient(srv.Client(), srv.URL, resilience.NewCircuitBreaker("test"), fastRetry)
	rate, err := c.GetPlatformFeeRate(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rate.Equal(decimal.RequireFromString("0.025")) {
		t.Errorf("expected 0.025, got %s", rate)
	}
}

func TestSettingsClient_Failure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := client.NewSettingsClient(srv.Client(), srv.URL, resilience.NewCircuitBreaker("test"), fastRetry)
	_, err := c.GetPlatformFeeRate(context.Background())

	var external *domain.ErrExternalService
	if !errors.As(err, &external) {
		t.Fatalf("expected ErrExternalService, got %v", err)
	}
	if external.Service != "settings" {
		t.Errorf("expected service settings, got %s", external.Service)
	}
}

func TestGatewayClient_CreatePaymentForMilestone(t *testing.T) {
	var gotKey, gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/payments/milestone" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotKey = r.Header.Get("Idempotency-Key")
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"redirectUrl":"https://pay.example/s/1","sessionId":"s-1"}`))
	}))
	defer srv.Close()

	c := client.NewGatewayClient(srv.Client(), srv.URL, "secret", resilience.NewCircuitBreaker("test"))
	redirect, err := c.CreatePaymentForMilestone(context.Background(), "ms-1", "user-1", "key-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if redirect.RedirectURL != "https://pay.example/s/1" || redirect.SessionID != "s-1" {
		t.Errorf("unexpected redirect: %+v", redirect)
	}
	if gotKey != "key-1" {
		t.Errorf("expected idempotency key key-1, got %q", gotKey)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("expected bearer auth, got %q", gotAuth)
	}
	if gotBody["milestoneId"] != "ms-1" {
		t.Errorf("expected milestoneId ms-1, got %v", gotBody)
	}
	if gotBody["contributorId"] != "user-1" {
		t.Errorf("expected contributorId user-1, got %v", gotBody)
	}
}

func TestGatewayClient_CreatePaymentForPhaseCustomAmount(t *testing.T) {
	var gotBody struct {
		PhaseID       string          `json:"phaseId"`
		Amount        decimal.Decimal `json:"amount"`
		ContributorID string          `json:"contributorId"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/payments/phase" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"redirectUrl":"https://pay.example/s/2"}`))
	}))
	defer srv.Close()

	c := client.NewGatewayClient(srv.Client(), srv.URL, "", resilience.NewCircuitBreaker("test"))
	_, err := c.CreatePaymentForPhaseCustomAmount(context.Background(), "ph-1", decimal.RequireFromString("12.34"), "user-1", "key-2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotBody.PhaseID != "ph-1" || !gotBody.Amount.Equal(decimal.RequireFromString("12.34")) || gotBody.ContributorID != "user-1" {
		t.Errorf("unexpected body: %+v", gotBody)
	}
}

func TestGatewayClient_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantCause domain.PaymentFailureCause
		wantMsg   string
		external  bool
	}{
		{"duplicate code", http.StatusUnprocessableEntity, `{"code":"DUPLICATE_PURCHASE","message":"Already funded by you."}`, domain.CauseDuplicatePurchase, "Already funded by you.", false},
		{"conflict without body", http.StatusConflict, ``, domain.CauseDuplicatePurchase, "This milestone was already funded by this account.", false},
		{"rejected", http.StatusBadRequest, `{"code":"PAYMENT_REJECTED","message":"card declined"}`, domain.CauseRejected, "", false},
		{"unprocessable", http.StatusUnprocessableEntity, `{"message":"bad amount"}`, "", "", true},
		{"server error", http.StatusInternalServerError, `{"message":"oops"}`, "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := client.NewGatewayClient(srv.Client(), srv.URL, "", resilience.NewCircuitBreaker("test"))
			_, err := c.CreatePaymentForMilestone(context.Background(), "ms-1", "user-1", "key")
			if err == nil {
				t.Fatal("expected error")
			}
			if calls.Load() != 1 {
				t.Errorf("gateway calls are never retried, got %d", calls.Load())
			}

			if tt.external {
				var external *domain.ErrExternalService
				if !errors.As(err, &external) {
					t.Fatalf("expected ErrExternalService, got %T", err)
				}
				if external.Status != tt.status {
					t.Errorf("expected status %d, got %d", tt.status, external.Status)
				}
				return
			}

			var failed *domain.ErrPaymentRequestFailed
			if !errors.As(err, &failed) {
				t.Fatalf("expected ErrPaymentRequestFailed, got %T", err)
			}
			if failed.Cause != tt.wantCause {
				t.Errorf("expected cause %s, got %s", tt.wantCause, failed.Cause)
			}
			if tt.wantMsg != "" && err.Error() != tt.wantMsg {
				t.Errorf("expected message %q, got %q", tt.wantMsg, err.Error())
			}
		})
	}
}

func TestGatewayClient_RefusalsKeepBreakerClosed(t *testing.T) {
	var refusing atomic.Bool
	refusing.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if refusing.Load() {
			w.WriteHeader(http.StatusConflict)
			w.Write([]byte(`{"code":"DUPLICATE_PURCHASE","message":"Already funded by this account."}`))
			return
		}
		w.Write([]byte(`{"redirectUrl":"https://pay.example/s/3"}`))
	}))
	defer srv.Close()

	c := client.NewGatewayClient(srv.Client(), srv.URL, "", resilience.NewCircuitBreaker("gateway"))
	for i := 0; i < 8; i++ {
		_, err := c.CreatePaymentForMilestone(context.Background(), "ms-1", "user-1", "key")
		var failed *domain.ErrPaymentRequestFailed
		if !errors.As(err, &failed) || failed.Cause != domain.CauseDuplicatePurchase {
			t.Fatalf("attempt %d: expected duplicate purchase, got %v", i, err)
		}
		if err.Error() != "Already funded by this account." {
			t.Errorf("attempt %d: message not kept, got %q", i, err.Error())
		}
	}

	refusing.Store(false)
	redirect, err := c.CreatePaymentForMilestone(context.Background(), "ms-2", "user-2", "key-2")
	if err != nil {
		t.Fatalf("breaker should stay closed after refusals, got %v", err)
	}
	if redirect.RedirectURL != "https://pay.example/s/3" {
		t.Errorf("unexpected redirect %+v", redirect)
	}
}

func TestCatalogClient_NotFoundKeepsBreakerClosed(t *testing.T) {
	var missing atomic.Bool
	missing.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if missing.Load() {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := client.NewCatalogClient(srv.Client(), srv.URL, resilience.NewCircuitBreaker("catalog"), fastRetry)
	for i := 0; i < 6; i++ {
		if _, err := c.GetPhasesForProject(context.Background(), "missing"); err == nil {
			t.Fatal("expected not found")
		}
	}

	missing.Store(false)
	if _, err := c.GetPhasesForProject(context.Background(), "proj-1"); err != nil {
		t.Fatalf("breaker should stay closed after not-found answers, got %v", err)
	}
}
