package domain

import (
	"errors"
	"fmt"
)

// Error types for consistent error handling across the BFA.

// ErrNotFound indicates a resource was not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrExternalService indicates a failure in an external service call.
type ErrExternalService struct {
	Service string
	Status  int
	Err     error
}

func (e *ErrExternalService) Error() string {
	return fmt.Sprintf("external service error [%s]: %v", e.Service, e.Err)
}

func (e *ErrExternalService) Unwrap() error {
	return e.Err
}

// ErrCircuitOpen indicates the circuit breaker is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}

// ErrValidation indicates a validation error (bad input).
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrCatalogUnavailable means the phase list of a project could not be
// fetched. The flow cannot expose phases until a retry succeeds.
type ErrCatalogUnavailable struct {
	ProjectID string
	Err       error
}

func (e *ErrCatalogUnavailable) Error() string {
	return fmt.Sprintf("funding catalog unavailable for project %s: %v", e.ProjectID, e.Err)
}

func (e *ErrCatalogUnavailable) Unwrap() error {
	return e.Err
}

// ErrMilestoneFetchPartial records that one phase's milestones failed to load.
type ErrMilestoneFetchPartial struct {
	PhaseID string
	Err     error
}

func (e *ErrMilestoneFetchPartial) Error() string {
	return fmt.Sprintf("milestones unavailable for phase %s: %v", e.PhaseID, e.Err)
}

func (e *ErrMilestoneFetchPartial) Unwrap() error {
	return e.Err
}

// AccessDenialReason says why the access gate refused a transition.
type AccessDenialReason string

const (
	DenialUnauthenticated AccessDenialReason = "unauthenticated"
	DenialWrongRole       AccessDenialReason = "wrong_role"
	DenialNotOwner        AccessDenialReason = "not_owner"
)

// ErrAccessDenied blocks the move toward payment until the caller signs
// in or obtains the investor role.
type ErrAccessDenied struct {
	Reason AccessDenialReason
}

func (e *ErrAccessDenied) Error() string {
	switch e.Reason {
	case DenialUnauthenticated:
		return "sign in to contribute"
	case DenialWrongRole:
		return "only investor accounts can contribute"
	case DenialNotOwner:
		return "this contribution belongs to another account"
	}
	return "access denied"
}

// PaymentFailureCause classifies a failed payment request.
type PaymentFailureCause string

const (
	CauseDuplicatePurchase PaymentFailureCause = "duplicate_purchase"
	CauseRejected          PaymentFailureCause = "rejected"
	CauseGatewayError      PaymentFailureCause = "gateway_error"
	CauseUnavailable       PaymentFailureCause = "unavailable"
)

// ErrPaymentRequestFailed is returned when the gateway did not create a
// checkout session. For CauseDuplicatePurchase, Message is the gateway's
// own text and is shown to the user as is.
type ErrPaymentRequestFailed struct {
	Cause   PaymentFailureCause
	Message string
	Err     error
}

func (e *ErrPaymentRequestFailed) Error() string {
	if e.Cause == CauseDuplicatePurchase && e.Message != "" {
		return e.Message
	}
	if e.Message != "" {
		return fmt.Sprintf("payment request failed [%s]: %s", e.Cause, e.Message)
	}
	return fmt.Sprintf("payment request failed [%s]", e.Cause)
}

func (e *ErrPaymentRequestFailed) Unwrap() error {
	return e.Err
}

// ErrInvalidTransition means an action is not allowed from the current step.
type ErrInvalidTransition struct {
	From   FlowState
	Action string
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("action %q not allowed in state %s", e.Action, e.From)
}

// ErrSubmissionInFlight is returned when a submit arrives while another
// one is still waiting for the gateway.
var ErrSubmissionInFlight = errors.New("payment submission already in progress")
