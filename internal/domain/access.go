package domain

// Role names carried by the session.
const (
	RoleInvestor = "INVESTOR"
	RoleFounder  = "FOUNDER"
	RoleAdmin    = "ADMIN"
)

// SessionState is what the session provider knows about the caller.
type SessionState struct {
	Authenticated bool   `json:"authenticated"`
	Subject       string `json:"subject,omitempty"`
	Role          string `json:"role,omitempty"`
}

// AccessState is the result of one access gate evaluation.
type AccessState struct {
	Authenticated   bool   `json:"authenticated"`
	HasInvestorRole bool   `json:"hasInvestorRole"`
	Subject         string `json:"subject,omitempty"`
}

// Allowed reports whether the caller may move money.
func (a AccessState) Allowed() bool {
	return a.Authenticated && a.HasInvestorRole
}

// DenialReason returns why access is refused, or "" when it is not.
func (a AccessState) DenialReason() AccessDenialReason {
	switch {
	case !a.Authenticated:
		return DenialUnauthenticated
	case !a.HasInvestorRole:
		return DenialWrongRole
	}
	return ""
}
