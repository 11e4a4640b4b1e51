package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================
// Fees & Payment hand-off
// ============================================================

// FeeRate is the platform fee rate in effect for a flow.
// Provisional is set when the rate is the fallback value.
type FeeRate struct {
	Value       decimal.Decimal `json:"value"`
	Provisional bool            `json:"provisional"`
}

// FeeBreakdown is derived from the selection and the fee rate on every read.
type FeeBreakdown struct {
	Base        decimal.Decimal `json:"base"`
	PlatformFee decimal.Decimal `json:"platformFee"`
	Total       decimal.Decimal `json:"total"`
	Rate        decimal.Decimal `json:"rate"`
	Provisional bool            `json:"provisional"`
}

// FeeBreakdownView is the display form of a FeeBreakdown (two decimal places).
type FeeBreakdownView struct {
	Base        string `json:"base"`
	PlatformFee string `json:"platformFee"`
	Total       string `json:"total"`
	RatePercent string `json:"ratePercent"`
	Provisional bool   `json:"provisional"`
}

// View renders the breakdown for display.
func (b FeeBreakdown) View() FeeBreakdownView {
	return FeeBreakdownView{
		Base:        b.Base.StringFixed(2),
		PlatformFee: b.PlatformFee.StringFixed(2),
		Total:       b.Total.StringFixed(2),
		RatePercent: b.Rate.Mul(decimal.NewFromInt(100)).String(),
		Provisional: b.Provisional,
	}
}

// PaymentRequest is what the submitter hands to the payment gateway.
// Exactly one of MilestoneID or (PhaseID, Amount) is meaningful, per Type.
type PaymentRequest struct {
	Type           PaymentType     `json:"type"`
	MilestoneID    string          `json:"milestoneId,omitempty"`
	PhaseID        string          `json:"phaseId,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	ContributorID  string          `json:"contributorId"`
	IdempotencyKey string          `json:"idempotencyKey"`
}

// PaymentRedirect is the gateway checkout session the browser must navigate to.
type PaymentRedirect struct {
	RedirectURL string    `json:"redirectUrl"`
	SessionID   string    `json:"sessionId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}
