package payments

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/transfer"
)

var minorUnits = decimal.NewFromInt(100)

// StripeTransfer pays mentors through Stripe Connect transfers to their
// connected account.
type StripeTransfer struct {
	create func(params *stripe.TransferParams) (*stripe.Transfer, error)
}

func NewStripeTransfer(secretKey string) *StripeTransfer {
	stripe.Key = secretKey
	return &StripeTransfer{create: transfer.New}
}

func (s *StripeTransfer) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	if req.Destination.StripeAccountID == "" {
		return nil, &TransferError{Provider: "stripe", Err: ErrNoDestination}
	}

	params := &stripe.TransferParams{
		Amount:        stripe.Int64(req.Amount.Mul(minorUnits).Round(0).IntPart()),
		Currency:      stripe.String(strings.ToLower(req.Currency)),
		Destination:   stripe.String(req.Destination.StripeAccountID),
		TransferGroup: stripe.String(req.PayoutID),
	}
	params.Context = ctx
	params.SetIdempotencyKey("payout-" + req.PayoutID)
	params.AddMetadata("payout_id", req.PayoutID)
	params.AddMetadata("mentor_id", req.MentorID)

	t, err := s.create(params)
	if err != nil {
		return nil, &TransferError{Provider: "stripe", Retryable: stripeRetryable(err), Err: err}
	}
	return &TransferResult{Provider: "stripe", Reference: t.ID}, nil
}

func stripeRetryable(err error) bool {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return stripeErr.HTTPStatusCode >= http.StatusInternalServerError ||
			stripeErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	return false
}
