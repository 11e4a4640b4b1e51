package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================
// Funding catalog (phases & milestones)
// ============================================================

// PhaseStatus is the lifecycle status of a funding phase.
type PhaseStatus string

const (
	PhaseStatusPlanned   PhaseStatus = "PLANNED"
	PhaseStatusProcess   PhaseStatus = "PROCESS" // open for funding
	PhaseStatusFinished  PhaseStatus = "FINISHED"
	PhaseStatusCancelled PhaseStatus = "CANCELLED"
)

// Phase is a time-boxed funding round within a project.
type Phase struct {
	ID           string          `json:"id"`
	ProjectID    string          `json:"projectId"`
	Number       int             `json:"number"`
	Status       PhaseStatus     `json:"status"`
	TargetAmount decimal.Decimal `json:"targetAmount"`
	RaisedAmount decimal.Decimal `json:"raisedAmount"`
	StartDate    time.Time       `json:"startDate"`
	EndDate      time.Time       `json:"endDate"`
}

// IsOpen reports whether contributions can be made to the phase.
func (p Phase) IsOpen() bool {
	return p.Status == PhaseStatusProcess
}

// RewardItem is one item bundled into a milestone.
type RewardItem struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	ImageURL    string `json:"imageUrl,omitempty"`
	Quantity    int    `json:"quantity"`
}

// Milestone is a fixed-price contribution tier tied to a phase.
type Milestone struct {
	ID          string          `json:"id"`
	PhaseID     string          `json:"phaseId"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Rewards     []RewardItem    `json:"rewards"`
}

// Catalog is the fully loaded funding catalog of one project.
// PartialPhases holds the phases whose milestone fetch failed; those
// phases are present in MilestonesByPhase with an empty list.
type Catalog struct {
	ProjectID         string                               `json:"projectId"`
	Phases            []Phase                              `json:"phases"`
	MilestonesByPhase map[string][]Milestone               `json:"milestonesByPhase"`
	PartialPhases     map[string]*ErrMilestoneFetchPartial `json:"-"`
	LoadedAt          time.Time                            `json:"loadedAt"`
}

// Phase looks up a phase by id.
func (c *Catalog) Phase(id string) (Phase, bool) {
	for _, p := range c.Phases {
		if p.ID == id {
			return p, true
		}
	}
	return Phase{}, false
}

// OpenPhases returns the phases open for funding, in catalog order.
func (c *Catalog) OpenPhases() []Phase {
	var open []Phase
	for _, p := range c.Phases {
		if p.IsOpen() {
			open = append(open, p)
		}
	}
	return open
}

// Milestone looks up a milestone of the given phase.
func (c *Catalog) Milestone(phaseID, milestoneID string) (Milestone, bool) {
	for _, m := range c.MilestonesByPhase[phaseID] {
		if m.ID == milestoneID {
			return m, true
		}
	}
	return Milestone{}, false
}

// MilestonesPartial reports whether the milestone list of a phase is
// incomplete because its fetch failed.
func (c *Catalog) MilestonesPartial(phaseID string) bool {
	_, ok := c.PartialPhases[phaseID]
	return ok
}
