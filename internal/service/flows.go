package service

import (
	"context"
	"time"

	"github.com/boddenberg/contribution-bfa-go/internal/domain"
	"github.com/boddenberg/contribution-bfa-go/internal/port"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// FlowStore holds live flows. Entries expire after a period of inactivity.
type FlowStore interface {
	port.Cache[*Flow]
	Len() int
}

// ContributionService owns the live contribution flows and the entry
// points the HTTP layer calls.
type ContributionService struct {
	flows     FlowStore
	deps      FlowDeps
	submitter *PaymentSubmitter
}

// NewContributionService wires the flow registry.
func NewContributionService(flows FlowStore, deps FlowDeps, submitter *PaymentSubmitter) *ContributionService {
	return &ContributionService{flows: flows, deps: deps, submitter: submitter}
}

// CreateFlow opens and registers a new flow.
func (s *ContributionService) CreateFlow(ctx context.Context, req *domain.CreateFlowRequest) (*Flow, error) {
	f, err := NewFlow(ctx, uuid.New().String(), req, s.deps)
	if err != nil {
		return nil, err
	}
	s.flows.Set(f.ID(), f)
	s.deps.Metrics.SetActiveFlows(s.flows.Len())

	s.deps.Logger.Info("contribution flow opened",
		zap.String("flow_id", f.ID()),
		zap.String("project_id", req.ProjectID),
		zap.Bool("preselected", req.PhaseID != "" || req.MilestoneID != ""),
		zap.String("state", f.State().String()),
	)
	return f, nil
}

// Flow returns a live flow and extends its lifetime.
func (s *ContributionService) Flow(flowID string) (*Flow, error) {
	f, ok := s.flows.Get(flowID)
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "flow", ID: flowID}
	}
	s.flows.Set(flowID, f)
	return f, nil
}

// Submit sends the flow's confirmed selection to the payment gateway.
func (s *ContributionService) Submit(ctx context.Context, flowID string) (*domain.PaymentRedirect, error) {
	f, err := s.Flow(flowID)
	if err != nil {
		return nil, err
	}
	return s.submitter.Submit(ctx, f)
}

// Catalog returns the funding catalog of a project.
func (s *ContributionService) Catalog(ctx context.Context, projectID string) (*domain.Catalog, error) {
	if projectID == "" {
		return nil, &domain.ErrValidation{Field: "projectId", Message: "is required"}
	}
	return s.deps.Catalog.Load(ctx, projectID)
}

// PreviewFees computes the fee breakdown of an arbitrary amount at the
// current platform rate.
func (s *ContributionService) PreviewFees(ctx context.Context, amount string) domain.FeeBreakdown {
	return Breakdown(amount, s.deps.FeeRates.CurrentRate(ctx))
}

// ActiveFlows returns the number of live flows.
func (s *ContributionService) ActiveFlows() int {
	n := s.flows.Len()
	s.deps.Metrics.SetActiveFlows(n)
	return n
}

// Health reports the state of the flow registry and the settings backend.
// A provisional fee rate means the settings backend could not be read.
func (s *ContributionService) Health(ctx context.Context) domain.HealthStatus {
	now := time.Now().Format(time.RFC3339)
	services := []domain.ServiceHealth{
		{Name: "bfa-api", Status: "healthy", LastChecked: now},
	}

	start := time.Now()
	rate := s.deps.FeeRates.CurrentRate(ctx)
	settings := domain.ServiceHealth{
		Name:        "settings",
		Status:      "healthy",
		LatencyMs:   time.Since(start).Milliseconds(),
		LastChecked: now,
	}
	if rate.Provisional {
		settings.Status = "degraded"
		settings.Detail = "using fallback platform fee rate"
	}
	services = append(services, settings)

	overall := "healthy"
	for _, svc := range services {
		if svc.Status != "healthy" {
			overall = "degraded"
		}
	}
	return domain.HealthStatus{Status: overall, Services: services, ActiveFlows: s.ActiveFlows()}
}
