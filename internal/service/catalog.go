package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/boddenberg/contribution-bfa-go/internal/domain"
	"github.com/boddenberg/contribution-bfa-go/internal/infra/observability"
	"github.com/boddenberg/contribution-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/contribution-bfa-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("service")

// CatalogLoader fetches the phases of a project and, per phase, its
// milestones. Milestone fetches fan out concurrently and a failing phase
// only loses its own milestones.
type CatalogLoader struct {
	catalog  port.CatalogService
	cache    port.Cache[*domain.Catalog]
	bulkhead *resilience.Bulkhead
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewCatalogLoader creates the loader. maxConcurrency caps the number of
// milestone fetches in flight for one load.
func NewCatalogLoader(
	catalog port.CatalogService,
	cache port.Cache[*domain.Catalog],
	maxConcurrency int,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *CatalogLoader {
	if maxConcurrency <= 0 {
		maxConcurrency = 8
	}
	return &CatalogLoader{
		catalog:  catalog,
		cache:    cache,
		bulkhead: resilience.NewBulkhead(maxConcurrency),
		metrics:  metrics,
		logger:   logger,
	}
}

// Load returns the complete catalog of a project. It only returns once
// every per-phase milestone fetch has settled.
func (l *CatalogLoader) Load(ctx context.Context, projectID string) (*domain.Catalog, error) {
	ctx, span := tracer.Start(ctx, "CatalogLoader.Load")
	defer span.End()
	span.SetAttributes(attribute.String("project.id", projectID))

	start := time.Now()
	defer func() {
		l.metrics.RecordRequestDuration("catalog_load", time.Since(start))
	}()

	cacheKey := fmt.Sprintf("catalog:%s", projectID)
	if cached, ok := l.cache.Get(cacheKey); ok {
		l.metrics.IncrCacheHit("catalog")
		return cached, nil
	}
	l.metrics.IncrCacheMiss("catalog")

	phases, err := l.catalog.GetPhasesForProject(ctx, projectID)
	if err != nil {
		l.logger.Error("failed to fetch phases",
			zap.String("project_id", projectID),
			zap.Error(err),
		)
		l.metrics.IncrExternalError("catalog")
		return nil, &domain.ErrCatalogUnavailable{ProjectID: projectID, Err: err}
	}

	cat := &domain.Catalog{
		ProjectID:         projectID,
		Phases:            phases,
		MilestonesByPhase: make(map[string][]domain.Milestone, len(phases)),
		PartialPhases:     make(map[string]*domain.ErrMilestoneFetchPartial),
	}

	var mu sync.Mutex
	g, gCtx := errgroup.WithContext(ctx)

	for _, phase := range phases {
		phaseID := phase.ID
		// Goroutines never return an error: a failure is recorded against
		// its phase so the join never cancels sibling fetches.
		g.Go(func() error {
			milestones, err := l.fetchMilestones(gCtx, phaseID)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				l.logger.Warn("milestones unavailable for phase",
					zap.String("project_id", projectID),
					zap.String("phase_id", phaseID),
					zap.Error(err),
				)
				l.metrics.IncrExternalError("catalog_milestones")
				cat.MilestonesByPhase[phaseID] = []domain.Milestone{}
				cat.PartialPhases[phaseID] = &domain.ErrMilestoneFetchPartial{PhaseID: phaseID, Err: err}
				return nil
			}
			cat.MilestonesByPhase[phaseID] = milestones
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, &domain.ErrCatalogUnavailable{ProjectID: projectID, Err: err}
	}

	cat.LoadedAt = time.Now()
	if len(cat.PartialPhases) == 0 {
		l.cache.Set(cacheKey, cat)
	}

	l.logger.Debug("catalog loaded",
		zap.String("project_id", projectID),
		zap.Int("phases", len(cat.Phases)),
		zap.Int("partial_phases", len(cat.PartialPhases)),
	)
	return cat, nil
}

// Invalidate drops the cached catalog of a project.
func (l *CatalogLoader) Invalidate(projectID string) {
	l.cache.Delete(fmt.Sprintf("catalog:%s", projectID))
}

func (l *CatalogLoader) fetchMilestones(ctx context.Context, phaseID string) ([]domain.Milestone, error) {
	if err := l.bulkhead.Acquire(ctx); err != nil {
		return nil, err
	}
	defer l.bulkhead.Release()

	milestones, err := l.catalog.GetMilestonesForPhase(ctx, phaseID)
	if err != nil {
		return nil, err
	}
	if milestones == nil {
		milestones = []domain.Milestone{}
	}
	return milestones, nil
}
