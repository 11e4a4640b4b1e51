package domain

import "time"

// ============================================================
// Contribution flow state
// ============================================================

// Step is a primary step of the contribution flow.
type Step string

const (
	StepTerms           Step = "S1_TERMS"
	StepPhaseSelect     Step = "S2_PHASE_SELECT"
	StepMilestoneSelect Step = "S3_MILESTONE_SELECT"
	StepConfirm         Step = "S4_CONFIRM"
)

// SubState refines StepMilestoneSelect. Other steps use SubStateNone.
type SubState string

const (
	SubStateNone        SubState = ""
	SubStateSelecting   SubState = "SELECTING"
	SubStateAuthWarning SubState = "AUTH_WARNING"
	SubStateRoleWarning SubState = "ROLE_WARNING"
)

// FlowState is the tagged state value of a flow.
type FlowState struct {
	Step Step     `json:"step"`
	Sub  SubState `json:"subState,omitempty"`
}

func (s FlowState) String() string {
	if s.Sub == SubStateNone {
		return string(s.Step)
	}
	return string(s.Step) + "/" + string(s.Sub)
}

// CreateFlowRequest opens a flow. PhaseID and MilestoneID come from a
// shared link and are optional.
type CreateFlowRequest struct {
	ProjectID     string `json:"projectId"`
	PhaseID       string `json:"phaseId,omitempty"`
	MilestoneID   string `json:"milestoneId,omitempty"`
	TermsAccepted bool   `json:"termsAccepted,omitempty"`
}

// PhaseOption is a phase as offered in S2.
type PhaseOption struct {
	Phase
	MilestoneCount  int  `json:"milestoneCount"`
	MilestonesError bool `json:"milestonesError"`
}

// ErrorView is an error rendered next to the step where it happened.
type ErrorView struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
	Action    string `json:"action,omitempty"` // retry, sign_in
}

// FlowView is everything the browser needs to render the current step.
type FlowView struct {
	FlowID           string           `json:"flowId"`
	ProjectID        string           `json:"projectId"`
	State            FlowState        `json:"state"`
	Selection        Selection        `json:"selection"`
	Phases           []PhaseOption    `json:"phases"`
	Milestones       []Milestone      `json:"milestones"`
	CustomAmountOnly bool             `json:"customAmountOnly"`
	Fees             FeeBreakdownView `json:"fees"`
	CatalogError     *ErrorView       `json:"catalogError,omitempty"`
	PaymentError     *ErrorView       `json:"paymentError,omitempty"`
	Notices          []string         `json:"notices,omitempty"`
	Submitting       bool             `json:"submitting"`
	RedirectURL      string           `json:"redirectUrl,omitempty"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}
