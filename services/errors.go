package services

import (
	"errors"
	"fmt"

	"github.com/anjiri1684/mentor_payouts/models"
)

var (
	ErrPayoutNotFound      = errors.New("payout not found")
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionNotCompleted = errors.New("session is not completed")
	ErrNoEligibleSessions  = errors.New("no eligible sessions for payout")
	ErrSessionClaimed      = errors.New("session is already part of a payout")
	// ErrLedgerConflict is returned when a concurrent writer changed a payout
	// between read and write. Callers may retry.
	ErrLedgerConflict = errors.New("payout ledger conflict")
	// ErrNotSettleable is returned when disbursing a payout that is already
	// paid or failed.
	ErrNotSettleable      = errors.New("payout cannot be settled in its current status")
	ErrPublishingDisabled = errors.New("receipt publishing is not configured")
)

// CalculationError reports malformed session data that would otherwise
// produce a silently wrong amount.
type CalculationError struct {
	SessionID string
	Reason    string
}

func (e *CalculationError) Error() string {
	if e.SessionID == "" {
		return fmt.Sprintf("payout calculation failed: %s", e.Reason)
	}
	return fmt.Sprintf("payout calculation failed for session %s: %s", e.SessionID, e.Reason)
}

// InvalidTransitionError is returned for a status change the state machine forbids.
type InvalidTransitionError struct {
	PayoutID string
	From     models.PayoutStatus
	To       models.PayoutStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid payout transition %s -> %s (payout %s)", e.From, e.To, e.PayoutID)
}

// PersistenceError wraps an I/O failure from the store.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence error during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func persistenceErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}
