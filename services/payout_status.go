package services

import (
	"github.com/shopspring/decimal"

	"github.com/anjiri1684/mentor_payouts/models"
)

var DefaultReviewThreshold = decimal.NewFromInt(10000)

// StatusMachine governs payout status changes.
type StatusMachine struct {
	threshold decimal.Decimal
}

func NewStatusMachine(threshold decimal.Decimal) *StatusMachine {
	return &StatusMachine{threshold: threshold}
}

func (m *StatusMachine) Threshold() decimal.Decimal {
	return m.threshold
}

// Evaluate picks the status of a new or recomputed open payout. Review is
// one-directional: an UnderReview payout never drops back to Pending here.
func (m *StatusMachine) Evaluate(total decimal.Decimal, current models.PayoutStatus) models.PayoutStatus {
	if current == models.PayoutUnderReview || total.GreaterThan(m.threshold) {
		return models.PayoutUnderReview
	}
	return models.PayoutPending
}

var allowedTransitions = map[models.PayoutStatus][]models.PayoutStatus{
	models.PayoutPending:     {models.PayoutUnderReview, models.PayoutPaid, models.PayoutFailed},
	models.PayoutUnderReview: {models.PayoutPaid, models.PayoutFailed},
}

func (m *StatusMachine) CanTransition(from, to models.PayoutStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition validates from -> to for the given payout.
func (m *StatusMachine) Transition(payoutID string, from, to models.PayoutStatus) error {
	if !m.CanTransition(from, to) {
		return &InvalidTransitionError{PayoutID: payoutID, From: from, To: to}
	}
	return nil
}
