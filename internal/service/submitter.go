package service

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/boddenberg/contribution-bfa-go/internal/domain"
	"github.com/boddenberg/contribution-bfa-go/internal/infra/observability"
	"github.com/boddenberg/contribution-bfa-go/internal/port"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const defaultGatewayTimeout = 30 * time.Second

// PaymentSubmitter hands a confirmed selection to the payment gateway.
type PaymentSubmitter struct {
	gateway port.PaymentGateway
	gate    AccessChecker
	timeout time.Duration
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewPaymentSubmitter creates the submitter. timeout bounds one gateway
// call; zero means 30s.
func NewPaymentSubmitter(gateway port.PaymentGateway, gate AccessChecker, timeout time.Duration, metrics *observability.Metrics, logger *zap.Logger) *PaymentSubmitter {
	if timeout <= 0 {
		timeout = defaultGatewayTimeout
	}
	return &PaymentSubmitter{gateway: gateway, gate: gate, timeout: timeout, metrics: metrics, logger: logger}
}

// Submit creates the checkout session for a flow in S4 and returns the URL
// the browser must navigate to. The gateway is called at most once per
// call; a call made while another is in flight returns
// domain.ErrSubmissionInFlight without contacting it. Once sent, the
// request is not cancelled with the caller. Failures leave the flow in S4.
func (s *PaymentSubmitter) Submit(ctx context.Context, f *Flow) (*domain.PaymentRedirect, error) {
	ctx, span := tracer.Start(ctx, "PaymentSubmitter.Submit")
	defer span.End()
	span.SetAttributes(attribute.String("flow.id", f.id))

	if !f.submitting.CompareAndSwap(false, true) {
		s.metrics.IncrPaymentSubmission("in_flight")
		return nil, domain.ErrSubmissionInFlight
	}
	defer f.submitting.Store(false)

	f.mu.Lock()
	if f.m.state != stateConfirm {
		err := invalid(&f.m, "submit")
		f.mu.Unlock()
		return nil, err
	}
	if f.m.redirect != nil {
		redirect := *f.m.redirect
		f.mu.Unlock()
		return &redirect, nil
	}
	sel := f.m.sel
	owner := f.m.owner
	fees := Breakdown(sel.ActiveAmount(), f.m.rate)
	f.mu.Unlock()

	// Time may have passed since the confirm step; the session is read again.
	access := s.gate.Check(ctx)
	reason := access.DenialReason()
	if reason == "" && owner != "" && access.Subject != owner {
		reason = domain.DenialNotOwner
	}
	if reason != "" {
		err := &domain.ErrAccessDenied{Reason: reason}
		s.metrics.IncrAccessDenied(string(err.Reason))
		s.finish(f, nil, err)
		return nil, err
	}

	req, err := buildPaymentRequest(sel, fees, access.Subject)
	if err != nil {
		s.finish(f, nil, err)
		return nil, err
	}

	// The caller going away does not abandon a payment already sent.
	gwCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	start := time.Now()
	var redirect *domain.PaymentRedirect
	switch req.Type {
	case domain.PaymentTypeMilestone:
		redirect, err = s.gateway.CreatePaymentForMilestone(gwCtx, req.MilestoneID, req.ContributorID, req.IdempotencyKey)
	default:
		redirect, err = s.gateway.CreatePaymentForPhaseCustomAmount(gwCtx, req.PhaseID, req.Amount, req.ContributorID, req.IdempotencyKey)
	}
	s.metrics.RecordRequestDuration("payment_gateway", time.Since(start))

	if err == nil && (redirect == nil || redirect.RedirectURL == "") {
		err = &domain.ErrPaymentRequestFailed{Cause: domain.CauseGatewayError, Message: "gateway returned no redirect URL"}
	}
	if err != nil {
		failed := classifyPaymentError(err)
		s.metrics.IncrPaymentSubmission(string(failed.Cause))
		s.logger.Error("payment request failed",
			zap.String("flow_id", f.id),
			zap.String("type", string(req.Type)),
			zap.String("cause", string(failed.Cause)),
			zap.Error(err),
		)
		s.finish(f, nil, failed)
		return nil, failed
	}

	s.metrics.IncrPaymentSubmission("success")
	s.logger.Info("payment session created",
		zap.String("flow_id", f.id),
		zap.String("type", string(req.Type)),
		zap.String("total", fees.Total.StringFixed(2)),
	)
	s.finish(f, redirect, nil)
	return redirect, nil
}

func (s *PaymentSubmitter) finish(f *Flow, redirect *domain.PaymentRedirect, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.m.redirect = redirect
	f.m.paymentErr = err
	f.m.updatedAt = time.Now()
}

// buildPaymentRequest turns the active choice into a gateway request.
// Milestone prices are taken as published and not re-checked against the
// phase budget.
func buildPaymentRequest(sel domain.Selection, fees domain.FeeBreakdown, contributorID string) (*domain.PaymentRequest, error) {
	if !fees.Base.IsPositive() {
		return nil, &domain.ErrValidation{Field: "selection", Message: "nothing to pay"}
	}

	req := &domain.PaymentRequest{
		Type:           sel.PaymentType,
		Amount:         fees.Base,
		ContributorID:  contributorID,
		IdempotencyKey: uuid.New().String(),
	}
	switch sel.PaymentType {
	case domain.PaymentTypeMilestone:
		if sel.Milestone == nil {
			return nil, &domain.ErrValidation{Field: "milestoneId", Message: "no milestone selected"}
		}
		req.MilestoneID = sel.Milestone.ID
	case domain.PaymentTypeCustom:
		if sel.Phase == nil || sel.CustomAmount == nil {
			return nil, &domain.ErrValidation{Field: "customAmount", Message: "no amount entered"}
		}
		amount, err := decimal.NewFromString(*sel.CustomAmount)
		if err != nil {
			return nil, &domain.ErrValidation{Field: "customAmount", Message: err.Error()}
		}
		req.PhaseID = sel.Phase.ID
		req.Amount = amount
	default:
		return nil, &domain.ErrValidation{Field: "paymentType", Message: "unknown payment type"}
	}
	return req, nil
}

// classifyPaymentError maps whatever the gateway client returned into
// domain.ErrPaymentRequestFailed.
func classifyPaymentError(err error) *domain.ErrPaymentRequestFailed {
	var (
		failed      *domain.ErrPaymentRequestFailed
		circuitOpen *domain.ErrCircuitOpen
		external    *domain.ErrExternalService
	)
	switch {
	case errors.As(err, &failed):
		return failed
	case errors.As(err, &circuitOpen):
		return &domain.ErrPaymentRequestFailed{Cause: domain.CauseUnavailable, Err: err}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return &domain.ErrPaymentRequestFailed{Cause: domain.CauseUnavailable, Err: err}
	case errors.As(err, &external):
		return &domain.ErrPaymentRequestFailed{Cause: CauseFromStatus(external.Status), Err: err}
	}
	return &domain.ErrPaymentRequestFailed{Cause: domain.CauseGatewayError, Err: err}
}

// CauseFromStatus classifies a gateway HTTP status that carried no
// structured error code.
func CauseFromStatus(status int) domain.PaymentFailureCause {
	switch {
	case status == http.StatusConflict:
		return domain.CauseDuplicatePurchase
	case status == http.StatusServiceUnavailable, status == http.StatusTooManyRequests:
		return domain.CauseUnavailable
	case status >= 400 && status < 500:
		return domain.CauseRejected
	}
	return domain.CauseGatewayError
}
