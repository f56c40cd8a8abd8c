package services

import (
	"github.com/shopspring/decimal"

	"github.com/anjiri1684/mentor_payouts/models"
)

const moneyPlaces = 2

type Calculation struct {
	Sessions    []models.Session `json:"sessions"`
	Subtotal    decimal.Decimal  `json:"subtotal"`
	PlatformFee decimal.Decimal  `json:"platform_fee"`
	GST         decimal.Decimal  `json:"gst"`
	TotalAmount decimal.Decimal  `json:"total_amount"`
	Country     string           `json:"country"`
}

type PayoutCalculator struct {
	rates *RateTable
}

func NewPayoutCalculator(rates *RateTable) *PayoutCalculator {
	if rates == nil {
		rates = DefaultRateTable()
	}
	return &PayoutCalculator{rates: rates}
}

// Calculate totals the sessions in all whose id is listed in sessionIDs.
// Ids with no matching session are skipped.
func (c *PayoutCalculator) Calculate(sessionIDs []string, all []models.Session, country string) (Calculation, error) {
	wanted := make(map[string]struct{}, len(sessionIDs))
	for _, id := range sessionIDs {
		wanted[id] = struct{}{}
	}

	calc := Calculation{Subtotal: decimal.Zero}
	for _, s := range all {
		if _, ok := wanted[s.ID]; !ok {
			continue
		}
		// duplicated entries in all must not be summed twice
		delete(wanted, s.ID)

		if err := validateSession(s); err != nil {
			return Calculation{}, err
		}
		calc.Sessions = append(calc.Sessions, s)
		calc.Subtotal = calc.Subtotal.Add(s.Payable())
	}

	rate, used := c.rates.Lookup(country)
	calc.Country = used
	calc.Subtotal = calc.Subtotal.Round(moneyPlaces)
	calc.PlatformFee = calc.Subtotal.Mul(rate.PlatformFeeRate).Round(moneyPlaces)
	calc.GST = calc.Subtotal.Mul(rate.GSTRate).Round(moneyPlaces)
	calc.TotalAmount = calc.Subtotal.Sub(calc.PlatformFee).Sub(calc.GST)
	return calc, nil
}

func validateSession(s models.Session) error {
	if s.Duration < 0 {
		return &CalculationError{SessionID: s.ID, Reason: "negative duration"}
	}
	if s.RatePerHour.IsNegative() {
		return &CalculationError{SessionID: s.ID, Reason: "negative rate per hour"}
	}
	if s.Amount != nil && s.Amount.IsNegative() {
		return &CalculationError{SessionID: s.ID, Reason: "negative amount"}
	}
	return nil
}
