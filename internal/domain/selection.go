package domain

import (
	"regexp"

	"github.com/shopspring/decimal"
)

// PaymentType says which part of the selection is the active choice.
type PaymentType string

const (
	PaymentTypeMilestone PaymentType = "milestone"
	PaymentTypeCustom    PaymentType = "custom"
)

// CustomAmountPattern is the only accepted shape of a custom amount:
// a non-negative number with at most two decimal places.
var CustomAmountPattern = regexp.MustCompile(`^\d+(\.\d{1,2})?$`)

// Selection is what the contributor has chosen so far.
type Selection struct {
	TermsAccepted bool        `json:"termsAccepted"`
	Phase         *Phase      `json:"phase,omitempty"`
	Milestone     *Milestone  `json:"milestone,omitempty"`
	CustomAmount  *string     `json:"customAmount,omitempty"`
	PaymentType   PaymentType `json:"paymentType"`
}

// ActiveAmount returns the amount of the active choice as the raw input
// the fee calculator consumes. It is empty when nothing is chosen.
func (s *Selection) ActiveAmount() string {
	switch s.PaymentType {
	case PaymentTypeMilestone:
		if s.Milestone != nil {
			return s.Milestone.Price.String()
		}
	case PaymentTypeCustom:
		if s.CustomAmount != nil {
			return *s.CustomAmount
		}
	}
	return ""
}

// HasPayableChoice reports whether the active choice is a positive amount.
func (s *Selection) HasPayableChoice() bool {
	amount, err := decimal.NewFromString(s.ActiveAmount())
	if err != nil {
		return false
	}
	return amount.IsPositive()
}

// ClearPhase drops the phase and everything that depends on it.
func (s *Selection) ClearPhase() {
	s.Phase = nil
	s.Milestone = nil
	s.CustomAmount = nil
	s.PaymentType = PaymentTypeMilestone
}
