package service

import (
	"fmt"

	"github.com/boddenberg/contribution-bfa-go/internal/domain"
)

// ============================================================
// Transition reducers
//
// Each reducer handles one trigger. It validates the current state,
// mutates the selection it owns and returns the next state. A reducer
// that returns an error leaves the model untouched.
// ============================================================

var (
	stateTerms       = domain.FlowState{Step: domain.StepTerms}
	statePhaseSelect = domain.FlowState{Step: domain.StepPhaseSelect}
	stateSelecting   = domain.FlowState{Step: domain.StepMilestoneSelect, Sub: domain.SubStateSelecting}
	stateAuthWarning = domain.FlowState{Step: domain.StepMilestoneSelect, Sub: domain.SubStateAuthWarning}
	stateRoleWarning = domain.FlowState{Step: domain.StepMilestoneSelect, Sub: domain.SubStateRoleWarning}
	stateConfirm     = domain.FlowState{Step: domain.StepConfirm}
)

// accessFunc evaluates the access gate. Reducers call it only when they
// attempt the move into S4.
type accessFunc func() domain.AccessState

func invalid(m *flowModel, action string) error {
	return &domain.ErrInvalidTransition{From: m.state, Action: action}
}

func reduceAcceptTerms(m *flowModel, accepted bool) (domain.FlowState, error) {
	if m.state.Step != domain.StepTerms {
		return m.state, invalid(m, "accept_terms")
	}
	m.sel.TermsAccepted = accepted
	return m.state, nil
}

// reduceProceed leaves S1. The terms gate is checked before anything else,
// preselected or not.
func reduceProceed(m *flowModel, access accessFunc) (domain.FlowState, error) {
	if m.state.Step != domain.StepTerms {
		return m.state, invalid(m, "proceed")
	}
	if !m.sel.TermsAccepted {
		return m.state, &domain.ErrValidation{Field: "termsAccepted", Message: "terms must be accepted to continue"}
	}
	if m.catalog == nil {
		if m.catalogErr != nil {
			return m.state, m.catalogErr
		}
		return m.state, &domain.ErrCatalogUnavailable{ProjectID: m.projectID, Err: fmt.Errorf("catalog not loaded")}
	}

	if m.sel.Phase == nil {
		open := m.catalog.OpenPhases()
		if len(open) != 1 {
			return statePhaseSelect, nil
		}
		phase := open[0]
		m.sel.Phase = &phase
	}

	// A resolved preselected milestone goes straight for the confirm step.
	if m.sel.Milestone != nil && m.sel.PaymentType == domain.PaymentTypeMilestone && m.sel.HasPayableChoice() {
		return attemptConfirm(m, access)
	}
	return stateSelecting, nil
}

func reduceSelectPhase(m *flowModel, phaseID string) (domain.FlowState, error) {
	if m.state.Step != domain.StepPhaseSelect {
		return m.state, invalid(m, "select_phase")
	}
	phase, ok := m.catalog.Phase(phaseID)
	if !ok {
		return m.state, &domain.ErrNotFound{Resource: "phase", ID: phaseID}
	}
	if !phase.IsOpen() {
		return m.state, &domain.ErrValidation{Field: "phaseId", Message: "phase is not open for funding"}
	}

	m.sel.ClearPhase()
	m.sel.Phase = &phase
	return stateSelecting, nil
}

func reduceSelectMilestone(m *flowModel, milestoneID string) (domain.FlowState, error) {
	if m.state.Step != domain.StepMilestoneSelect {
		return m.state, invalid(m, "select_milestone")
	}
	milestone, ok := m.catalog.Milestone(m.sel.Phase.ID, milestoneID)
	if !ok {
		return m.state, &domain.ErrNotFound{Resource: "milestone", ID: milestoneID}
	}

	m.sel.Milestone = &milestone
	m.sel.PaymentType = domain.PaymentTypeMilestone
	return m.state, nil
}

// reduceEditCustomAmount accepts "" (clears) or a value matching
// domain.CustomAmountPattern. Anything else is rejected untouched.
func reduceEditCustomAmount(m *flowModel, input string) (domain.FlowState, error) {
	if m.state.Step != domain.StepMilestoneSelect {
		return m.state, invalid(m, "edit_custom_amount")
	}
	if input == "" {
		m.sel.CustomAmount = nil
		return m.state, nil
	}
	if !domain.CustomAmountPattern.MatchString(input) {
		return m.state, &domain.ErrValidation{
			Field:   "customAmount",
			Message: "must be a number with at most two decimal places",
		}
	}

	amount := input
	m.sel.CustomAmount = &amount
	m.sel.PaymentType = domain.PaymentTypeCustom
	return m.state, nil
}

func reduceSetPaymentType(m *flowModel, t domain.PaymentType) (domain.FlowState, error) {
	if m.state.Step != domain.StepMilestoneSelect {
		return m.state, invalid(m, "set_payment_type")
	}
	switch t {
	case domain.PaymentTypeMilestone, domain.PaymentTypeCustom:
	default:
		return m.state, &domain.ErrValidation{Field: "paymentType", Message: "must be milestone or custom"}
	}
	m.sel.PaymentType = t
	return m.state, nil
}

func reduceProceedToConfirm(m *flowModel, access accessFunc) (domain.FlowState, error) {
	if m.state.Step != domain.StepMilestoneSelect {
		return m.state, invalid(m, "proceed_to_confirm")
	}
	return attemptConfirm(m, access)
}

// attemptConfirm is the S3 → S4 guard shared by the explicit trigger and
// preselection.
func attemptConfirm(m *flowModel, access accessFunc) (domain.FlowState, error) {
	if !m.sel.HasPayableChoice() {
		return m.state, &domain.ErrValidation{
			Field:   "selection",
			Message: "choose a milestone or enter an amount greater than zero",
		}
	}

	a := access()
	m.lastAccess = a
	m.checked = true
	switch a.DenialReason() {
	case domain.DenialUnauthenticated:
		return stateAuthWarning, nil
	case domain.DenialWrongRole:
		return stateRoleWarning, nil
	}
	if m.owner != "" && m.owner != a.Subject {
		return m.state, &domain.ErrAccessDenied{Reason: domain.DenialNotOwner}
	}
	m.owner = a.Subject
	return stateConfirm, nil
}

func reduceDismissWarning(m *flowModel) (domain.FlowState, error) {
	if m.state != stateAuthWarning && m.state != stateRoleWarning {
		return m.state, invalid(m, "dismiss_warning")
	}
	return stateSelecting, nil
}

func reduceChangePhase(m *flowModel) (domain.FlowState, error) {
	if m.state.Step != domain.StepMilestoneSelect {
		return m.state, invalid(m, "change_phase")
	}
	m.sel.ClearPhase()
	return statePhaseSelect, nil
}

func reduceChangeSelection(m *flowModel) (domain.FlowState, error) {
	if m.state.Step != domain.StepConfirm {
		return m.state, invalid(m, "change_selection")
	}
	m.paymentErr = nil
	m.redirect = nil
	return stateSelecting, nil
}
