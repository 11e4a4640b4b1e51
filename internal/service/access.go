package service

import (
	"context"
	"strings"

	"github.com/boddenberg/contribution-bfa-go/internal/domain"
	"github.com/boddenberg/contribution-bfa-go/internal/port"

	"go.uber.org/zap"
)

// AccessGate decides whether the caller may move money: an
// authenticated session carrying the investor role.
type AccessGate struct {
	sessions     port.SessionProvider
	investorRole string
	logger       *zap.Logger
}

// NewAccessGate creates the gate. An empty investorRole means domain.RoleInvestor.
func NewAccessGate(sessions port.SessionProvider, investorRole string, logger *zap.Logger) *AccessGate {
	if investorRole == "" {
		investorRole = domain.RoleInvestor
	}
	return &AccessGate{sessions: sessions, investorRole: investorRole, logger: logger}
}

// Check reads the current session. A provider error reads as unauthenticated.
func (g *AccessGate) Check(ctx context.Context) domain.AccessState {
	st, err := g.sessions.GetSessionState(ctx)
	if err != nil {
		g.logger.Warn("session state unavailable", zap.Error(err))
		return domain.AccessState{}
	}
	if st == nil || !st.Authenticated {
		return domain.AccessState{}
	}
	return domain.AccessState{
		Authenticated:   true,
		HasInvestorRole: strings.EqualFold(st.Role, g.investorRole),
		Subject:         st.Subject,
	}
}
