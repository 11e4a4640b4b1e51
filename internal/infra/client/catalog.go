package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/boddenberg/contribution-bfa-go/internal/domain"
	"github.com/boddenberg/contribution-bfa-go/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("client")

// CatalogClient fetches phases and milestones from the Funding Catalog API.
type CatalogClient struct {
	httpClient *http.Client
	baseURL    string
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
}

// NewCatalogClient creates a new CatalogClient.
func NewCatalogClient(httpClient *http.Client, baseURL string, cb *gobreaker.CircuitBreaker, cfg resilience.Config) *CatalogClient {
	return &CatalogClient{
		httpClient: httpClient,
		baseURL:    baseURL,
		cb:         cb,
		cfg:        cfg,
	}
}

// GetPhasesForProject lists the funding phases of a project with retry,
// circuit breaker, and tracing.
func (c *CatalogClient) GetPhasesForProject(ctx context.Context, projectID string) ([]domain.Phase, error) {
	ctx, span := tracer.Start(ctx, "CatalogClient.GetPhasesForProject")
	defer span.End()
	span.SetAttributes(attribute.String("project.id", projectID))

	var phases []domain.Phase
	endpoint := fmt.Sprintf("%s/v1/projects/%s/phases", c.baseURL, url.PathEscape(projectID))
	if err := c.getJSON(ctx, endpoint, "project", projectID, &phases); err != nil {
		return nil, err
	}
	if phases == nil {
		phases = []domain.Phase{}
	}
	return phases, nil
}

// GetMilestonesForPhase lists the milestones of a phase.
func (c *CatalogClient) GetMilestonesForPhase(ctx context.Context, phaseID string) ([]domain.Milestone, error) {
	ctx, span := tracer.Start(ctx, "CatalogClient.GetMilestonesForPhase")
	defer span.End()
	span.SetAttributes(attribute.String("phase.id", phaseID))

	var milestones []domain.Milestone
	endpoint := fmt.Sprintf("%s/v1/phases/%s/milestones", c.baseURL, url.PathEscape(phaseID))
	if err := c.getJSON(ctx, endpoint, "phase", phaseID, &milestones); err != nil {
		return nil, err
	}
	for i := range milestones {
		if milestones[i].PhaseID == "" {
			milestones[i].PhaseID = phaseID
		}
	}
	return milestones, nil
}

func (c *CatalogClient) getJSON(ctx context.Context, endpoint, resource, id string, out any) error {
	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
			if err != nil {
				return resilience.Permanent(err)
			}
			req.Header.Set("Accept", "application/json")

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode == http.StatusNotFound {
				return resilience.Permanent(&domain.ErrNotFound{Resource: resource, ID: id})
			}
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("catalog API returned status %d", resp.StatusCode)
			}

			return json.NewDecoder(resp.Body).Decode(out)
		})
	})

	if err != nil {
		return wrapExternal("catalog", 0, err)
	}
	return nil
}
