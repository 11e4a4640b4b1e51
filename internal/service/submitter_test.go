package service_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/boddenberg/contribution-bfa-go/internal/domain"
	"github.com/boddenberg/contribution-bfa-go/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func confirmedFlow(t *testing.T, h *harness) *service.Flow {
	t.Helper()
	f := openFlow(t, h, domain.CreateFlowRequest{PhaseID: "ph-1", MilestoneID: "ms-1", TermsAccepted: true})
	require.Equal(t, domain.StepConfirm, f.State().Step)
	return f
}

func TestSubmit_SecondSubmitWhileInFlight(t *testing.T) {
	h := newHarness(t)
	h.gateway.entered = make(chan struct{}, 1)
	h.gateway.release = make(chan struct{})
	ctx := context.Background()
	f := confirmedFlow(t, h)

	type result struct {
		redirect *domain.PaymentRedirect
		err      error
	}
	first := make(chan result, 1)
	go func() {
		r, err := h.svc.Submit(ctx, f.ID())
		first <- result{r, err}
	}()

	select {
	case <-h.gateway.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("gateway was never called")
	}

	assert.True(t, f.View().Submitting)

	_, err := h.svc.Submit(ctx, f.ID())
	assert.ErrorIs(t, err, domain.ErrSubmissionInFlight)
	_, err = f.ChangeSelection(ctx)
	assert.ErrorIs(t, err, domain.ErrSubmissionInFlight)
	assert.Equal(t, domain.StepConfirm, f.State().Step)

	close(h.gateway.release)
	res := <-first
	require.NoError(t, res.err)
	assert.Equal(t, "https://pay.example/session/abc", res.redirect.RedirectURL)

	assert.Equal(t, 1, h.gateway.callCount())
	assert.Equal(t, float64(1), h.metrics.PaymentSubmissions("in_flight"))
	assert.False(t, f.View().Submitting)
}

func TestSubmit_RepeatAfterSuccessReusesRedirect(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	f := confirmedFlow(t, h)

	first, err := h.svc.Submit(ctx, f.ID())
	require.NoError(t, err)
	second, err := h.svc.Submit(ctx, f.ID())
	require.NoError(t, err)

	assert.Equal(t, first.RedirectURL, second.RedirectURL)
	assert.Equal(t, 1, h.gateway.callCount())
}

func TestSubmit_DuplicatePurchaseMessageIsVerbatim(t *testing.T) {
	const msg = "You already funded this milestone on 2026-03-02."
	h := newHarness(t)
	h.gateway.err = &domain.ErrPaymentRequestFailed{Cause: domain.CauseDuplicatePurchase, Message: msg}
	ctx := context.Background()
	f := confirmedFlow(t, h)

	_, err := h.svc.Submit(ctx, f.ID())
	var failed *domain.ErrPaymentRequestFailed
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, domain.CauseDuplicatePurchase, failed.Cause)
	assert.Equal(t, msg, err.Error())

	v := f.View()
	assert.Equal(t, domain.StepConfirm, v.State.Step, "a failed submit stays on the confirm step")
	require.NotNil(t, v.PaymentError)
	assert.Equal(t, msg, v.PaymentError.Message)
	assert.True(t, v.PaymentError.Retryable)
	assert.False(t, v.Submitting)
}

func TestSubmit_FailureThenRetrySucceeds(t *testing.T) {
	h := newHarness(t)
	h.gateway.err = &domain.ErrExternalService{Service: "payment_gateway", Status: http.StatusBadGateway, Err: errUpstream}
	ctx := context.Background()
	f := confirmedFlow(t, h)

	_, err := h.svc.Submit(ctx, f.ID())
	require.Error(t, err)
	require.NotNil(t, f.View().PaymentError)

	h.gateway.mu.Lock()
	h.gateway.err = nil
	h.gateway.mu.Unlock()

	_, err = h.svc.Submit(ctx, f.ID())
	require.NoError(t, err)
	assert.Nil(t, f.View().PaymentError)
	assert.Equal(t, 2, h.gateway.callCount())
}

func TestSubmit_ClassifiesGatewayErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want domain.PaymentFailureCause
	}{
		{"circuit open", &domain.ErrCircuitOpen{Service: "payment_gateway"}, domain.CauseUnavailable},
		{"deadline", context.DeadlineExceeded, domain.CauseUnavailable},
		{"canceled", context.Canceled, domain.CauseUnavailable},
		{"503", &domain.ErrExternalService{Status: http.StatusServiceUnavailable, Err: errUpstream}, domain.CauseUnavailable},
		{"409", &domain.ErrExternalService{Status: http.StatusConflict, Err: errUpstream}, domain.CauseDuplicatePurchase},
		{"422", &domain.ErrExternalService{Status: http.StatusUnprocessableEntity, Err: errUpstream}, domain.CauseRejected},
		{"500", &domain.ErrExternalService{Status: http.StatusInternalServerError, Err: errUpstream}, domain.CauseGatewayError},
		{"opaque", errors.New("boom"), domain.CauseGatewayError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.gateway.err = tt.err
			f := confirmedFlow(t, h)

			_, err := h.svc.Submit(context.Background(), f.ID())
			var failed *domain.ErrPaymentRequestFailed
			require.ErrorAs(t, err, &failed)
			assert.Equal(t, tt.want, failed.Cause)
			assert.Equal(t, float64(1), h.metrics.PaymentSubmissions(string(tt.want)))
		})
	}
}

func TestSubmit_EmptyRedirectIsAGatewayError(t *testing.T) {
	h := newHarness(t)
	h.gateway.redirect = &domain.PaymentRedirect{}
	f := confirmedFlow(t, h)

	_, err := h.svc.Submit(context.Background(), f.ID())
	var failed *domain.ErrPaymentRequestFailed
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, domain.CauseGatewayError, failed.Cause)
}

func TestSubmit_RechecksAccess(t *testing.T) {
	h := newHarness(t)
	f := confirmedFlow(t, h)

	h.sessions.set(&domain.SessionState{})
	_, err := h.svc.Submit(context.Background(), f.ID())
	var denied *domain.ErrAccessDenied
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, domain.DenialUnauthenticated, denied.Reason)
	assert.Equal(t, 0, h.gateway.callCount())
	assert.Equal(t, "sign_in", f.View().PaymentError.Action)
}

func TestSubmit_CallerCancellationDoesNotAbortPayment(t *testing.T) {
	h := newHarness(t)
	h.gateway.entered = make(chan struct{}, 1)
	h.gateway.release = make(chan struct{})
	f := confirmedFlow(t, h)

	ctx, cancel := context.WithCancel(context.Background())
	type result struct {
		redirect *domain.PaymentRedirect
		err      error
	}
	done := make(chan result, 1)
	go func() {
		r, err := h.svc.Submit(ctx, f.ID())
		done <- result{r, err}
	}()

	select {
	case <-h.gateway.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("gateway was never called")
	}
	cancel()
	close(h.gateway.release)

	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, "https://pay.example/session/abc", res.redirect.RedirectURL)
	assert.NoError(t, h.gateway.lastCall().ctxErr)

	v := f.View()
	assert.Nil(t, v.PaymentError)
	assert.Equal(t, res.redirect.RedirectURL, v.RedirectURL)
}

func TestSubmit_SendsContributor(t *testing.T) {
	h := newHarness(t)
	f := confirmedFlow(t, h)

	_, err := h.svc.Submit(context.Background(), f.ID())
	require.NoError(t, err)
	assert.Equal(t, "user-1", h.gateway.lastCall().contributorID)
	assert.Equal(t, "ms-1", h.gateway.lastCall().milestoneID)
}

func TestSubmit_RejectsAnotherAccount(t *testing.T) {
	h := newHarness(t)
	f := confirmedFlow(t, h)

	h.sessions.set(&domain.SessionState{Authenticated: true, Subject: "user-3", Role: domain.RoleInvestor})
	_, err := h.svc.Submit(context.Background(), f.ID())
	var denied *domain.ErrAccessDenied
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, domain.DenialNotOwner, denied.Reason)
	assert.Equal(t, 0, h.gateway.callCount())
	assert.Equal(t, float64(1), h.metrics.AccessDenials(string(domain.DenialNotOwner)))
}

func TestFlow_ConfirmIsBoundToFirstInvestor(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	f := confirmedFlow(t, h)

	_, err := f.ChangeSelection(ctx)
	require.NoError(t, err)

	h.sessions.set(&domain.SessionState{Authenticated: true, Subject: "user-3", Role: domain.RoleInvestor})
	_, err = f.ProceedToConfirm(ctx)
	var denied *domain.ErrAccessDenied
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, domain.DenialNotOwner, denied.Reason)
	assert.Equal(t, domain.SubStateSelecting, f.State().Sub)

	h.sessions.set(investor())
	v, err := f.ProceedToConfirm(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.StepConfirm, v.State.Step)
}

func TestCauseFromStatus(t *testing.T) {
	assert.Equal(t, domain.CauseDuplicatePurchase, service.CauseFromStatus(http.StatusConflict))
	assert.Equal(t, domain.CauseUnavailable, service.CauseFromStatus(http.StatusTooManyRequests))
	assert.Equal(t, domain.CauseRejected, service.CauseFromStatus(http.StatusBadRequest))
	assert.Equal(t, domain.CauseGatewayError, service.CauseFromStatus(http.StatusBadGateway))
	assert.Equal(t, domain.CauseGatewayError, service.CauseFromStatus(0))
}
