// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"

	"github.com/boddenberg/contribution-bfa-go/internal/domain"

	"github.com/shopspring/decimal"
)

// CatalogService lists the funding phases of a project and their milestones.
type CatalogService interface {
	GetPhasesForProject(ctx context.Context, projectID string) ([]domain.Phase, error)
	GetMilestonesForPhase(ctx context.Context, phaseID string) ([]domain.Milestone, error)
}

// SettingsProvider reads platform-wide settings.
type SettingsProvider interface {
	GetPlatformFeeRate(ctx context.Context) (decimal.Decimal, error)
}

// SessionProvider reports who is calling. It never blocks on the network.
type SessionProvider interface {
	GetSessionState(ctx context.Context) (*domain.SessionState, error)
}

// PaymentGateway creates redirectable checkout sessions on behalf of a
// contributor.
type PaymentGateway interface {
	CreatePaymentForMilestone(ctx context.Context, milestoneID, contributorID, idempotencyKey string) (*domain.PaymentRedirect, error)
	CreatePaymentForPhaseCustomAmount(ctx context.Context, phaseID string, amount decimal.Decimal, contributorID, idempotencyKey string) (*domain.PaymentRedirect, error)
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}
