package supabase

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/boddenberg/contribution-bfa-go/internal/domain"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

// phaseRow mirrors the funding_phases table.
type phaseRow struct {
	ID           string          `json:"id"`
	ProjectID    string          `json:"project_id"`
	PhaseNumber  int             `json:"phase_number"`
	Status       string          `json:"status"`
	TargetAmount decimal.Decimal `json:"target_amount"`
	RaisedAmount decimal.Decimal `json:"raised_amount"`
	StartDate    *time.Time      `json:"start_date"`
	EndDate      *time.Time      `json:"end_date"`
}

type rewardRow struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	ImageURL    string `json:"image_url"`
	Quantity    int    `json:"quantity"`
}

// milestoneRow mirrors the milestones table with its embedded rewards.
type milestoneRow struct {
	ID          string          `json:"id"`
	PhaseID     string          `json:"phase_id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Rewards     []rewardRow     `json:"milestone_rewards"`
}

// GetPhasesForProject lists a project's phases ordered by phase number.
func (c *Client) GetPhasesForProject(ctx context.Context, projectID string) ([]domain.Phase, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetPhasesForProject")
	defer span.End()
	span.SetAttributes(attribute.String("project.id", projectID))

	path := fmt.Sprintf("funding_phases?project_id=eq.%s&order=phase_number.asc", url.QueryEscape(projectID))
	var rows []phaseRow
	if err := c.query(ctx, "phases", path, &rows); err != nil {
		return nil, err
	}

	phases := make([]domain.Phase, 0, len(rows))
	for _, r := range rows {
		p := domain.Phase{
			ID:           r.ID,
			ProjectID:    r.ProjectID,
			Number:       r.PhaseNumber,
			Status:       domain.PhaseStatus(r.Status),
			TargetAmount: r.TargetAmount,
			RaisedAmount: r.RaisedAmount,
		}
		if r.StartDate != nil {
			p.StartDate = *r.StartDate
		}
		if r.EndDate != nil {
			p.EndDate = *r.EndDate
		}
		phases = append(phases, p)
	}
	span.SetAttributes(attribute.Int("phases.count", len(phases)))
	return phases, nil
}

// GetMilestonesForPhase lists a phase's milestones with their reward items.
func (c *Client) GetMilestonesForPhase(ctx context.Context, phaseID string) ([]domain.Milestone, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetMilestonesForPhase")
	defer span.End()
	span.SetAttributes(attribute.String("phase.id", phaseID))

	path := fmt.Sprintf("milestones?phase_id=eq.%s&select=*,milestone_rewards(*)&order=position.asc", url.QueryEscape(phaseID))
	var rows []milestoneRow
	if err := c.query(ctx, "milestones", path, &rows); err != nil {
		return nil, err
	}

	milestones := make([]domain.Milestone, 0, len(rows))
	for _, r := range rows {
		m := domain.Milestone{
			ID:          r.ID,
			PhaseID:     r.PhaseID,
			Title:       r.Title,
			Description: r.Description,
			Price:       r.Price,
			Rewards:     make([]domain.RewardItem, 0, len(r.Rewards)),
		}
		if m.PhaseID == "" {
			m.PhaseID = phaseID
		}
		for _, rw := range r.Rewards {
			m.Rewards = append(m.Rewards, domain.RewardItem{
				Name:        rw.Name,
				Description: rw.Description,
				ImageURL:    rw.ImageURL,
				Quantity:    rw.Quantity,
			})
		}
		milestones = append(milestones, m)
	}
	return milestones, nil
}
