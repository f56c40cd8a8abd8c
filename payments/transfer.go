package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrTransferTimeout = errors.New("bank transfer timed out")
	ErrNoDestination   = errors.New("mentor has no payout destination for this provider")
)

// Destination holds the mentor's account coordinates for each provider.
type Destination struct {
	PayPalEmail     string
	StripeAccountID string
	BankName        string
	AccountNumber   string
	IFSCCode        string
}

type TransferRequest struct {
	// PayoutID doubles as the provider idempotency key.
	PayoutID    string
	MentorID    string
	MentorName  string
	Amount      decimal.Decimal
	Currency    string
	Destination Destination
}

type TransferResult struct {
	Provider  string
	Reference string
}

// BankTransfer moves money to a mentor. It is the only source of truth for
// whether a payout was paid.
type BankTransfer interface {
	Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error)
}

// TransferError is a failed or unconfirmed transfer.
type TransferError struct {
	Provider  string
	Retryable bool
	Err       error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("%s transfer failed: %v", e.Provider, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

func IsRetryable(err error) bool {
	var te *TransferError
	return errors.As(err, &te) && te.Retryable
}
