package payments

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// SimulatedTransfer always succeeds unless Fail says otherwise. Used when
// TRANSFER_PROVIDER=simulated.
type SimulatedTransfer struct {
	Fail func(req TransferRequest) bool
}

func (s *SimulatedTransfer) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, &TransferError{Provider: "simulated", Err: err}
	}
	if s.Fail != nil && s.Fail(req) {
		return nil, &TransferError{Provider: "simulated", Err: errors.New("transfer declined")}
	}
	return &TransferResult{Provider: "simulated", Reference: "SIM-" + uuid.NewString()}, nil
}
