package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/boddenberg/contribution-bfa-go/internal/domain"
	"github.com/boddenberg/contribution-bfa-go/internal/infra/observability"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// CatalogReader loads a project's funding catalog.
type CatalogReader interface {
	Load(ctx context.Context, projectID string) (*domain.Catalog, error)
	Invalidate(projectID string)
}

// FeeRateReader returns the platform fee rate in effect.
type FeeRateReader interface {
	CurrentRate(ctx context.Context) domain.FeeRate
}

// AccessChecker evaluates the access gate.
type AccessChecker interface {
	Check(ctx context.Context) domain.AccessState
}

// FlowDeps are the collaborators a flow is built with. Session and
// settings reach the flow only through these, never through globals.
type FlowDeps struct {
	Catalog  CatalogReader
	FeeRates FeeRateReader
	Gate     AccessChecker
	Metrics  *observability.Metrics
	Logger   *zap.Logger
}

type preselection struct {
	phaseID     string
	milestoneID string
	resolved    bool
}

// flowModel is the state a reducer works on. It is copied before every
// transition and only committed when the reducer succeeds.
type flowModel struct {
	projectID  string
	state      domain.FlowState
	sel        domain.Selection
	catalog    *domain.Catalog
	catalogErr error
	rate       domain.FeeRate
	pre        preselection
	lastAccess domain.AccessState
	checked    bool   // gate evaluated by the current reducer
	owner      string // subject of the first session that passed the gate
	autoStart  bool   // terms accepted at creation, initial proceed not taken yet
	notices    []string
	paymentErr error
	redirect   *domain.PaymentRedirect
	updatedAt  time.Time
}

// Flow is one contributor's walk through the contribution steps.
// Operations are serialized; the in-flight payment request is guarded
// separately so it never holds the lock while waiting on the gateway.
type Flow struct {
	id   string
	deps FlowDeps

	mu sync.Mutex
	m  flowModel

	submitting atomic.Bool
}

// NewFlow opens a flow: it loads the catalog and fee rate, resolves any
// preselection and, when the terms were accepted up front, runs the S1
// proceed transition. A catalog failure is not returned; it is kept on
// the flow as a retryable error.
func NewFlow(ctx context.Context, id string, req *domain.CreateFlowRequest, deps FlowDeps) (*Flow, error) {
	if req.ProjectID == "" {
		return nil, &domain.ErrValidation{Field: "projectId", Message: "is required"}
	}

	ctx, span := tracer.Start(ctx, "Flow.New")
	defer span.End()
	span.SetAttributes(
		attribute.String("flow.id", id),
		attribute.String("project.id", req.ProjectID),
	)

	f := &Flow{
		id:   id,
		deps: deps,
		m: flowModel{
			projectID: req.ProjectID,
			state:     stateTerms,
			sel: domain.Selection{
				TermsAccepted: req.TermsAccepted,
				PaymentType:   domain.PaymentTypeMilestone,
			},
			pre: preselection{
				phaseID:     req.PhaseID,
				milestoneID: req.MilestoneID,
			},
			updatedAt: time.Now(),
		},
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.m.rate = deps.FeeRates.CurrentRate(ctx)
	f.loadCatalogLocked(ctx)
	f.m.autoStart = req.TermsAccepted
	f.autoStartLocked(ctx)

	return f, nil
}

// autoStartLocked runs the S1 proceed for a flow whose terms were accepted
// at creation, once a catalog is available.
func (f *Flow) autoStartLocked(ctx context.Context) {
	if !f.m.autoStart || f.m.catalog == nil {
		return
	}
	f.m.autoStart = false
	if f.m.state != stateTerms || !f.m.sel.TermsAccepted {
		return
	}
	if err := f.applyLocked(ctx, "proceed", func(m *flowModel) (domain.FlowState, error) {
		return reduceProceed(m, f.accessFunc(ctx))
	}); err != nil {
		f.deps.Logger.Debug("initial proceed not taken",
			zap.String("flow_id", f.id),
			zap.Error(err),
		)
	}
}

// ID returns the flow id.
func (f *Flow) ID() string { return f.id }

// ProjectID returns the project the flow contributes to.
func (f *Flow) ProjectID() string { return f.m.projectID }

// AcceptTerms records the terms checkbox. Only allowed in S1.
func (f *Flow) AcceptTerms(ctx context.Context, accepted bool) (*domain.FlowView, error) {
	return f.do(ctx, "accept_terms", func(m *flowModel) (domain.FlowState, error) {
		return reduceAcceptTerms(m, accepted)
	})
}

// Proceed leaves S1.
func (f *Flow) Proceed(ctx context.Context) (*domain.FlowView, error) {
	return f.do(ctx, "proceed", func(m *flowModel) (domain.FlowState, error) {
		return reduceProceed(m, f.accessFunc(ctx))
	})
}

// SelectPhase picks an open phase in S2.
func (f *Flow) SelectPhase(ctx context.Context, phaseID string) (*domain.FlowView, error) {
	return f.do(ctx, "select_phase", func(m *flowModel) (domain.FlowState, error) {
		return reduceSelectPhase(m, phaseID)
	})
}

// SelectMilestone picks a milestone of the selected phase in S3.
func (f *Flow) SelectMilestone(ctx context.Context, milestoneID string) (*domain.FlowView, error) {
	return f.do(ctx, "select_milestone", func(m *flowModel) (domain.FlowState, error) {
		return reduceSelectMilestone(m, milestoneID)
	})
}

// EditCustomAmount applies a keystroke-level edit of the custom amount field.
func (f *Flow) EditCustomAmount(ctx context.Context, input string) (*domain.FlowView, error) {
	return f.do(ctx, "edit_custom_amount", func(m *flowModel) (domain.FlowState, error) {
		return reduceEditCustomAmount(m, input)
	})
}

// SetPaymentType switches between the milestone and custom choice.
func (f *Flow) SetPaymentType(ctx context.Context, t domain.PaymentType) (*domain.FlowView, error) {
	return f.do(ctx, "set_payment_type", func(m *flowModel) (domain.FlowState, error) {
		return reduceSetPaymentType(m, t)
	})
}

// ProceedToConfirm attempts S3 → S4. A denied gate is not an error: the
// flow lands in the matching warning sub-state.
func (f *Flow) ProceedToConfirm(ctx context.Context) (*domain.FlowView, error) {
	return f.do(ctx, "proceed_to_confirm", func(m *flowModel) (domain.FlowState, error) {
		return reduceProceedToConfirm(m, f.accessFunc(ctx))
	})
}

// DismissWarning closes an access warning without re-checking the gate.
func (f *Flow) DismissWarning(ctx context.Context) (*domain.FlowView, error) {
	return f.do(ctx, "dismiss_warning", reduceDismissWarning)
}

// ChangePhase goes back from S3 to S2 and clears the phase.
func (f *Flow) ChangePhase(ctx context.Context) (*domain.FlowView, error) {
	return f.do(ctx, "change_phase", reduceChangePhase)
}

// ChangeSelection goes back from S4 to S3. Not allowed while a payment
// request is in flight.
func (f *Flow) ChangeSelection(ctx context.Context) (*domain.FlowView, error) {
	return f.do(ctx, "change_selection", func(m *flowModel) (domain.FlowState, error) {
		if f.submitting.Load() {
			return m.state, domain.ErrSubmissionInFlight
		}
		return reduceChangeSelection(m)
	})
}

// RetryCatalog reloads a failed or partial catalog and re-reads a
// provisional fee rate. The selection is kept.
func (f *Flow) RetryCatalog(ctx context.Context) (*domain.FlowView, error) {
	ctx, span := tracer.Start(ctx, "Flow.RetryCatalog")
	defer span.End()

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.m.rate.Provisional {
		f.m.rate = f.deps.FeeRates.CurrentRate(ctx)
	}
	if f.m.catalog == nil || len(f.m.catalog.PartialPhases) > 0 {
		f.deps.Catalog.Invalidate(f.m.projectID)
		f.loadCatalogLocked(ctx)
		f.autoStartLocked(ctx)
	}
	f.m.updatedAt = time.Now()

	if f.m.catalogErr != nil {
		return f.viewLocked(), f.m.catalogErr
	}
	return f.viewLocked(), nil
}

// View renders the current step.
func (f *Flow) View() *domain.FlowView {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.viewLocked()
}

// State returns the current state value.
func (f *Flow) State() domain.FlowState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.m.state
}

// Selection returns a copy of the current selection.
func (f *Flow) Selection() domain.Selection {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.m.sel
}

// Fees returns the live fee breakdown of the active choice.
func (f *Flow) Fees() domain.FeeBreakdown {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Breakdown(f.m.sel.ActiveAmount(), f.m.rate)
}

func (f *Flow) do(ctx context.Context, action string, reduce func(*flowModel) (domain.FlowState, error)) (*domain.FlowView, error) {
	ctx, span := tracer.Start(ctx, "Flow."+action)
	defer span.End()
	span.SetAttributes(attribute.String("flow.id", f.id))

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.applyLocked(ctx, action, reduce); err != nil {
		return nil, err
	}
	return f.viewLocked(), nil
}

// applyLocked runs a reducer on a copy of the model and commits it on success.
func (f *Flow) applyLocked(ctx context.Context, action string, reduce func(*flowModel) (domain.FlowState, error)) error {
	next := f.m
	to, err := reduce(&next)
	if err != nil {
		f.deps.Logger.Debug("flow action rejected",
			zap.String("flow_id", f.id),
			zap.String("action", action),
			zap.String("state", f.m.state.String()),
			zap.Error(err),
		)
		return err
	}

	from := f.m.state
	checked := next.checked
	next.checked = false
	next.state = to
	next.updatedAt = time.Now()
	f.m = next

	if from != to {
		f.deps.Metrics.RecordTransition(from.String(), to.String())
		f.deps.Logger.Debug("flow transition",
			zap.String("flow_id", f.id),
			zap.String("action", action),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}
	if checked && !f.m.lastAccess.Allowed() {
		denial := string(f.m.lastAccess.DenialReason())
		f.deps.Metrics.IncrAccessDenied(denial)
		f.deps.Logger.Warn("access gate denied confirm step",
			zap.String("flow_id", f.id),
			zap.String("reason", denial),
		)
	}
	return nil
}

func (f *Flow) accessFunc(ctx context.Context) accessFunc {
	return func() domain.AccessState {
		return f.deps.Gate.Check(ctx)
	}
}

func (f *Flow) loadCatalogLocked(ctx context.Context) {
	cat, err := f.deps.Catalog.Load(ctx, f.m.projectID)
	if err != nil {
		var unavailable *domain.ErrCatalogUnavailable
		if !errors.As(err, &unavailable) {
			err = &domain.ErrCatalogUnavailable{ProjectID: f.m.projectID, Err: err}
		}
		f.m.catalogErr = err
		return
	}

	f.m.catalog = cat
	f.m.catalogErr = nil
	f.refreshSelectionLocked()
	if !f.m.pre.resolved && f.m.state == stateTerms {
		f.resolvePreselectionLocked()
	}
}

// refreshSelectionLocked re-points the selection at a freshly loaded catalog.
func (f *Flow) refreshSelectionLocked() {
	sel := &f.m.sel
	if sel.Phase == nil {
		return
	}
	phase, ok := f.m.catalog.Phase(sel.Phase.ID)
	if !ok {
		return
	}
	sel.Phase = &phase
	if sel.Milestone != nil {
		if ms, ok := f.m.catalog.Milestone(phase.ID, sel.Milestone.ID); ok {
			sel.Milestone = &ms
		}
	}
}

// resolvePreselectionLocked resolves deep-link ids against the loaded
// catalog exactly once. Ids that do not resolve are dropped with a notice.
func (f *Flow) resolvePreselectionLocked() {
	pre := &f.m.pre
	if pre.phaseID == "" && pre.milestoneID == "" {
		pre.resolved = true
		return
	}
	cat := f.m.catalog

	phaseID := pre.phaseID
	if phaseID == "" {
		for pid, milestones := range cat.MilestonesByPhase {
			for _, ms := range milestones {
				if ms.ID == pre.milestoneID {
					phaseID = pid
				}
			}
		}
		if phaseID == "" {
			f.notice("The shared milestone is no longer available.")
			pre.resolved = true
			return
		}
	}

	phase, ok := cat.Phase(phaseID)
	if !ok || !phase.IsOpen() {
		f.notice("The shared funding phase is not open for contributions.")
		pre.resolved = true
		return
	}
	f.m.sel.Phase = &phase

	if pre.milestoneID != "" {
		switch ms, ok := cat.Milestone(phaseID, pre.milestoneID); {
		case ok:
			f.m.sel.Milestone = &ms
			f.m.sel.PaymentType = domain.PaymentTypeMilestone
		case cat.MilestonesPartial(phaseID):
			f.notice("Milestones for this phase could not be loaded; choose again after retrying.")
		default:
			f.notice("The shared milestone is no longer available.")
		}
	}

	pre.resolved = true
	f.deps.Logger.Debug("preselection resolved",
		zap.String("flow_id", f.id),
		zap.String("phase_id", phaseID),
		zap.Bool("milestone", f.m.sel.Milestone != nil),
	)
}

func (f *Flow) notice(msg string) {
	f.m.notices = append(f.m.notices, msg)
}

func (f *Flow) viewLocked() *domain.FlowView {
	m := &f.m
	v := &domain.FlowView{
		FlowID:     f.id,
		ProjectID:  m.projectID,
		State:      m.state,
		Selection:  m.sel,
		Phases:     []domain.PhaseOption{},
		Milestones: []domain.Milestone{},
		Fees:       Breakdown(m.sel.ActiveAmount(), m.rate).View(),
		Notices:    append([]string(nil), m.notices...),
		Submitting: f.submitting.Load(),
		UpdatedAt:  m.updatedAt,
	}

	if m.catalogErr != nil {
		v.CatalogError = errorView(m.catalogErr)
	}
	if m.catalog != nil {
		for _, p := range m.catalog.OpenPhases() {
			v.Phases = append(v.Phases, domain.PhaseOption{
				Phase:           p,
				MilestoneCount:  len(m.catalog.MilestonesByPhase[p.ID]),
				MilestonesError: m.catalog.MilestonesPartial(p.ID),
			})
		}
		if m.sel.Phase != nil {
			if ms := m.catalog.MilestonesByPhase[m.sel.Phase.ID]; len(ms) > 0 {
				v.Milestones = ms
			}
			v.CustomAmountOnly = len(v.Milestones) == 0
		}
	}
	if m.state.Sub == domain.SubStateAuthWarning || m.state.Sub == domain.SubStateRoleWarning {
		v.PaymentError = errorView(&domain.ErrAccessDenied{Reason: m.lastAccess.DenialReason()})
	}
	if m.paymentErr != nil {
		v.PaymentError = errorView(m.paymentErr)
	}
	if m.redirect != nil {
		v.RedirectURL = m.redirect.RedirectURL
	}
	return v
}

// errorView renders a flow error inline. Every kind except AccessDenied
// offers a retry.
func errorView(err error) *domain.ErrorView {
	var (
		unavailable *domain.ErrCatalogUnavailable
		denied      *domain.ErrAccessDenied
		failed      *domain.ErrPaymentRequestFailed
	)
	switch {
	case errors.As(err, &denied):
		return &domain.ErrorView{Kind: "access_denied", Message: denied.Error(), Action: "sign_in"}
	case errors.As(err, &unavailable):
		return &domain.ErrorView{
			Kind:      "catalog_unavailable",
			Message:   "Funding options could not be loaded. Please try again.",
			Retryable: true,
			Action:    "retry",
		}
	case errors.As(err, &failed):
		return &domain.ErrorView{
			Kind:      fmt.Sprintf("payment_request_failed:%s", failed.Cause),
			Message:   failed.Error(),
			Retryable: true,
			Action:    "retry",
		}
	}
	return &domain.ErrorView{Kind: "error", Message: err.Error(), Retryable: true, Action: "retry"}
}
