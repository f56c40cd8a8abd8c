package payments

import (
	"context"
	"errors"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"github.com/anjiri1684/mentor_payouts/logging"
	"github.com/anjiri1684/mentor_payouts/metrics"
)

type ResilientConfig struct {
	Timeout    time.Duration
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Logger     logging.Logger
}

// ResilientTransfer bounds a provider call with a deadline and retries
// failures the provider marks as retryable. Retries reuse the payout id as
// idempotency key, so a repeated call cannot pay twice.
type ResilientTransfer struct {
	next     BankTransfer
	timeout  time.Duration
	executor failsafe.Executor[*TransferResult]
	logger   logging.Logger
}

func NewResilientTransfer(next BankTransfer, cfg ResilientConfig) *ResilientTransfer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 200 * time.Millisecond
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewLogger()
	}

	policy := retrypolicy.NewBuilder[*TransferResult]().
		WithBackoff(cfg.BaseDelay, cfg.MaxDelay).
		WithMaxRetries(cfg.MaxRetries).
		WithJitterFactor(0.1).
		HandleIf(func(_ *TransferResult, err error) bool {
			return IsRetryable(err)
		}).
		Build()

	return &ResilientTransfer{
		next:     next,
		timeout:  cfg.Timeout,
		executor: failsafe.With[*TransferResult](policy),
		logger:   cfg.Logger,
	}
}

// Transfer never reports success without a confirmed provider result; a
// deadline hit resolves to a TransferError wrapping ErrTransferTimeout.
func (r *ResilientTransfer) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	var lastErr error
	attempt := 0
	result, err := r.executor.WithContext(ctx).Get(func() (*TransferResult, error) {
		attempt++
		res, err := r.next.Transfer(ctx, req)
		if err != nil {
			r.logger.WithError(err).WithField("payout_id", req.PayoutID).WithField("attempt", attempt).Warn("Bank transfer attempt failed")
		}
		lastErr = err
		return res, err
	})
	metrics.TransferDuration.Observe(time.Since(start).Seconds())

	if err == nil && result == nil {
		err = &TransferError{Provider: "unknown", Err: errors.New("provider returned no result")}
	}
	if err != nil {
		if ctx.Err() != nil {
			err = &TransferError{Provider: "resilient", Err: ErrTransferTimeout}
		} else if lastErr != nil {
			err = lastErr
		}
		var te *TransferError
		if !errors.As(err, &te) {
			err = &TransferError{Provider: "unknown", Err: err}
		}
		metrics.TransfersTotal.WithLabelValues("failed").Inc()
		return nil, err
	}

	metrics.TransfersTotal.WithLabelValues("success").Inc()
	return result, nil
}
