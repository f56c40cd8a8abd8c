package services

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/anjiri1684/mentor_payouts/models"
)

func TestEvaluate(t *testing.T) {
	m := NewStatusMachine(DefaultReviewThreshold)

	assert.Equal(t, models.PayoutPending, m.Evaluate(decimal.NewFromInt(2310), ""))
	assert.Equal(t, models.PayoutPending, m.Evaluate(decimal.NewFromInt(10000), models.PayoutPending))
	assert.Equal(t, models.PayoutUnderReview, m.Evaluate(decimal.RequireFromString("10000.01"), models.PayoutPending))
	assert.Equal(t, models.PayoutUnderReview, m.Evaluate(decimal.NewFromInt(15000), ""))
	assert.Equal(t, models.PayoutUnderReview, m.Evaluate(decimal.NewFromInt(1), models.PayoutUnderReview),
		"review never drops back to pending")
}

func TestTransitions(t *testing.T) {
	m := NewStatusMachine(DefaultReviewThreshold)
	all := []models.PayoutStatus{models.PayoutPending, models.PayoutUnderReview, models.PayoutPaid, models.PayoutFailed}

	allowed := map[[2]models.PayoutStatus]bool{
		{models.PayoutPending, models.PayoutUnderReview}: true,
		{models.PayoutPending, models.PayoutPaid}:        true,
		{models.PayoutPending, models.PayoutFailed}:      true,
		{models.PayoutUnderReview, models.PayoutPaid}:    true,
		{models.PayoutUnderReview, models.PayoutFailed}:  true,
	}

	for _, from := range all {
		for _, to := range all {
			err := m.Transition("p1", from, to)
			if allowed[[2]models.PayoutStatus{from, to}] {
				assert.NoError(t, err, "%s -> %s", from, to)
				continue
			}
			var te *InvalidTransitionError
			assert.ErrorAs(t, err, &te, "%s -> %s", from, to)
		}
	}
}
