package service_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/boddenberg/contribution-bfa-go/internal/domain"
	"github.com/boddenberg/contribution-bfa-go/internal/infra/cache"
	"github.com/boddenberg/contribution-bfa-go/internal/infra/observability"
	"github.com/boddenberg/contribution-bfa-go/internal/service"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// --- Mocks ---

type mockCatalog struct {
	mu             sync.Mutex
	phases         []domain.Phase
	phasesErr      error
	milestones     map[string][]domain.Milestone
	milestoneErrs  map[string]error
	phaseCalls     atomic.Int32
	milestoneCalls atomic.Int32
	inFlight       atomic.Int32
	maxInFlight    atomic.Int32
	milestoneDelay time.Duration
}

func (m *mockCatalog) GetPhasesForProject(_ context.Context, _ string) ([]domain.Phase, error) {
	m.phaseCalls.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phasesErr != nil {
		return nil, m.phasesErr
	}
	return append([]domain.Phase(nil), m.phases...), nil
}

func (m *mockCatalog) GetMilestonesForPhase(ctx context.Context, phaseID string) ([]domain.Milestone, error) {
	m.milestoneCalls.Add(1)
	n := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		cur := m.maxInFlight.Load()
		if n <= cur || m.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}
	if m.milestoneDelay > 0 {
		select {
		case <-time.After(m.milestoneDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.milestoneErrs[phaseID]; err != nil {
		return nil, err
	}
	return m.milestones[phaseID], nil
}

func (m *mockCatalog) setPhasesErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.phasesErr = err
}

func (m *mockCatalog) setMilestoneErr(phaseID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.milestoneErrs == nil {
		m.milestoneErrs = map[string]error{}
	}
	if err == nil {
		delete(m.milestoneErrs, phaseID)
		return
	}
	m.milestoneErrs[phaseID] = err
}

type mockSettings struct {
	rate  decimal.Decimal
	err   error
	calls atomic.Int32
}

func (m *mockSettings) GetPlatformFeeRate(_ context.Context) (decimal.Decimal, error) {
	m.calls.Add(1)
	return m.rate, m.err
}

type mockSessions struct {
	mu    sync.Mutex
	state *domain.SessionState
	err   error
}

func (m *mockSessions) GetSessionState(_ context.Context) (*domain.SessionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, m.err
}

func (m *mockSessions) set(st *domain.SessionState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = st
}

type gatewayCall struct {
	milestoneID    string
	phaseID        string
	amount         decimal.Decimal
	contributorID  string
	idempotencyKey string
	ctxErr         error // ctx.Err() when the call returned
}

type mockGateway struct {
	mu       sync.Mutex
	calls    []gatewayCall
	redirect *domain.PaymentRedirect
	err      error

	// entered is signalled when a call starts; release must then be closed
	// for it to return. Both nil means the call returns immediately.
	entered chan struct{}
	release chan struct{}
}

func (m *mockGateway) record(ctx context.Context, c gatewayCall) (*domain.PaymentRedirect, error) {
	m.mu.Lock()
	m.calls = append(m.calls, c)
	idx := len(m.calls) - 1
	entered, release := m.entered, m.release
	m.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[idx].ctxErr = ctx.Err()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.redirect, nil
}

func (m *mockGateway) CreatePaymentForMilestone(ctx context.Context, milestoneID, contributorID, key string) (*domain.PaymentRedirect, error) {
	return m.record(ctx, gatewayCall{milestoneID: milestoneID, contributorID: contributorID, idempotencyKey: key})
}

func (m *mockGateway) CreatePaymentForPhaseCustomAmount(ctx context.Context, phaseID string, amount decimal.Decimal, contributorID, key string) (*domain.PaymentRedirect, error) {
	return m.record(ctx, gatewayCall{phaseID: phaseID, amount: amount, contributorID: contributorID, idempotencyKey: key})
}

func (m *mockGateway) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *mockGateway) lastCall() gatewayCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[len(m.calls)-1]
}

// --- Fixtures ---

const testProject = "proj-1"

var errUpstream = errors.New("upstream down")

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// newCatalog returns two open phases and a finished one. ph-1 has two
// milestones, ph-2 has one.
func newCatalog() *mockCatalog {
	return &mockCatalog{
		phases: []domain.Phase{
			{ID: "ph-1", ProjectID: testProject, Number: 1, Status: domain.PhaseStatusProcess, TargetAmount: dec("10000")},
			{ID: "ph-2", ProjectID: testProject, Number: 2, Status: domain.PhaseStatusProcess, TargetAmount: dec("5000")},
			{ID: "ph-0", ProjectID: testProject, Number: 0, Status: domain.PhaseStatusFinished, TargetAmount: dec("1000")},
		},
		milestones: map[string][]domain.Milestone{
			"ph-1": {
				{ID: "ms-1", PhaseID: "ph-1", Title: "Backer", Price: dec("100")},
				{ID: "ms-2", PhaseID: "ph-1", Title: "Patron", Price: dec("250.50")},
			},
			"ph-2": {
				{ID: "ms-3", PhaseID: "ph-2", Title: "Early bird", Price: dec("40")},
			},
			"ph-0": {
				{ID: "ms-0", PhaseID: "ph-0", Title: "Closed", Price: dec("10")},
			},
		},
	}
}

func investor() *domain.SessionState {
	return &domain.SessionState{Authenticated: true, Subject: "user-1", Role: domain.RoleInvestor}
}

func founder() *domain.SessionState {
	return &domain.SessionState{Authenticated: true, Subject: "user-2", Role: domain.RoleFounder}
}

type harness struct {
	svc      *service.ContributionService
	catalog  *mockCatalog
	settings *mockSettings
	sessions *mockSessions
	gateway  *mockGateway
	metrics  *observability.Metrics
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		catalog:  newCatalog(),
		settings: &mockSettings{rate: dec("0.02")},
		sessions: &mockSessions{state: investor()},
		gateway: &mockGateway{redirect: &domain.PaymentRedirect{
			RedirectURL: "https://pay.example/session/abc",
			SessionID:   "abc",
		}},
		metrics: observability.NewMetrics(),
	}
	h.svc = h.build(t)
	return h
}

func (h *harness) build(t *testing.T) *service.ContributionService {
	t.Helper()
	logger := zap.NewNop()

	catalogCache := cache.New[*domain.Catalog](time.Minute)
	rateCache := cache.New[decimal.Decimal](time.Minute)
	flows := cache.New[*service.Flow](time.Minute)
	t.Cleanup(func() {
		catalogCache.Close()
		rateCache.Close()
		flows.Close()
	})

	gate := service.NewAccessGate(h.sessions, "", logger)
	deps := service.FlowDeps{
		Catalog:  service.NewCatalogLoader(h.catalog, catalogCache, 4, h.metrics, logger),
		FeeRates: service.NewFeeRateService(h.settings, rateCache, decimal.Zero, h.metrics, logger),
		Gate:     gate,
		Metrics:  h.metrics,
		Logger:   logger,
	}
	return service.NewContributionService(flows, deps, service.NewPaymentSubmitter(h.gateway, gate, 5*time.Second, h.metrics, logger))
}
