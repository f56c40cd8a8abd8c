package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anjiri1684/mentor_payouts/database"
	"github.com/anjiri1684/mentor_payouts/logging"
	"github.com/anjiri1684/mentor_payouts/metrics"
	"github.com/anjiri1684/mentor_payouts/models"
	"github.com/anjiri1684/mentor_payouts/notifications"
	"github.com/anjiri1684/mentor_payouts/payments"
)

type SettlementOutcome string

const (
	OutcomePaid        SettlementOutcome = "paid"
	OutcomeFailed      SettlementOutcome = "failed"
	OutcomeUnderReview SettlementOutcome = "under_review"
	OutcomeSkipped     SettlementOutcome = "skipped"
)

type MentorDirectory interface {
	GetMentor(ctx context.Context, id string) (*models.Mentor, error)
}

type SettlementConfig struct {
	Ledger       *PayoutLedger
	Transfer     payments.BankTransfer
	Mailer       notifications.Mailer
	Audit        *AuditService
	Mentors      MentorDirectory
	EmailTimeout time.Duration
	// RecordTimeout bounds recording a transfer's outcome, which runs even
	// after the caller's context is cancelled.
	RecordTimeout time.Duration
	Logger        logging.Logger
}

// SettlementService moves generated payouts to a terminal state by calling
// the bank transfer and recording the result.
type SettlementService struct {
	ledger        *PayoutLedger
	transfer      payments.BankTransfer
	mailer        notifications.Mailer
	audit         *AuditService
	mentors       MentorDirectory
	emailTimeout  time.Duration
	recordTimeout time.Duration
	logger        logging.Logger
}

func NewSettlementService(cfg SettlementConfig) *SettlementService {
	if cfg.Logger == nil {
		cfg.Logger = logging.NewLogger()
	}
	if cfg.Mailer == nil {
		cfg.Mailer = &notifications.LogMailer{Logger: cfg.Logger}
	}
	if cfg.Audit == nil {
		cfg.Audit = NewAuditService(cfg.Logger, 0)
	}
	if cfg.EmailTimeout <= 0 {
		cfg.EmailTimeout = 10 * time.Second
	}
	if cfg.RecordTimeout <= 0 {
		cfg.RecordTimeout = 15 * time.Second
	}
	return &SettlementService{
		ledger:        cfg.Ledger,
		transfer:      cfg.Transfer,
		mailer:        cfg.Mailer,
		audit:         cfg.Audit,
		mentors:       cfg.Mentors,
		emailTimeout:  cfg.EmailTimeout,
		recordTimeout: cfg.RecordTimeout,
		logger:        cfg.Logger,
	}
}

func (s *SettlementService) Audit() *AuditService { return s.audit }

// Settle runs the automated path for a freshly generated payout. Pending
// payouts are transferred; UnderReview payouts are only recorded and wait
// for an admin. A failed transfer is an outcome, not an error.
func (s *SettlementService) Settle(ctx context.Context, payout *models.Payout) (*models.Payout, SettlementOutcome, error) {
	switch payout.Status {
	case models.PayoutUnderReview:
		details := PayoutDetails(payout)
		details["reason"] = "Amount exceeds threshold"
		s.audit.Record(ctx, AuditEntry{
			Title:       AuditPayoutUnderReview,
			Description: fmt.Sprintf("Automated payout for %s requires review", payout.MentorName),
			Details:     details,
		})
		return payout, OutcomeUnderReview, nil
	case models.PayoutPending:
		return s.disburse(ctx, payout, models.ActorSystem)
	default:
		return payout, OutcomeSkipped, nil
	}
}

// Disburse transfers an open payout on an admin's behalf. This is how an
// UnderReview payout gets paid after approval.
func (s *SettlementService) Disburse(ctx context.Context, payoutID, actor string) (*models.Payout, SettlementOutcome, error) {
	payout, err := s.ledger.Get(ctx, payoutID)
	if err != nil {
		return nil, "", err
	}
	if !payout.Status.IsOpen() {
		return payout, "", ErrNotSettleable
	}
	return s.disburse(ctx, payout, actor)
}

func (s *SettlementService) disburse(ctx context.Context, payout *models.Payout, actor string) (*models.Payout, SettlementOutcome, error) {
	mentor := s.lookupMentor(ctx, payout.MentorID)

	req := payments.TransferRequest{
		PayoutID:   payout.ID,
		MentorID:   payout.MentorID,
		MentorName: payout.MentorName,
		Amount:     payout.TotalAmount,
		Currency:   payout.Currency,
	}
	if mentor != nil {
		req.Destination = payments.Destination{
			PayPalEmail:     deref(mentor.PayPalEmail),
			StripeAccountID: deref(mentor.StripeAccountID),
			BankName:        deref(mentor.BankName),
			AccountNumber:   deref(mentor.AccountNumber),
			IFSCCode:        deref(mentor.IFSCCode),
		}
	}

	log := s.logger.WithFields(logging.Fields{
		"payout_id": payout.ID,
		"mentor_id": payout.MentorID,
		"amount":    payout.TotalAmount.StringFixed(2),
	})

	result, transferErr := s.transfer.Transfer(ctx, req)

	// Once a transfer was attempted its outcome is recorded regardless of
	// the caller's cancellation.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.recordTimeout)
	defer cancel()

	if transferErr != nil {
		log.WithError(transferErr).Warn("Bank transfer failed")

		failed, carried, err := s.ledger.CompleteSettlement(ctx, payout, models.PayoutFailed, WithStatusNote("Transfer failed: "+transferErr.Error()))
		if err != nil {
			return payout, "", fmt.Errorf("mark payout %s failed: %w", payout.ID, err)
		}
		s.logCarried(log, carried)
		details := PayoutDetails(failed)
		details["transferStatus"] = "Failed"
		details["error"] = transferErr.Error()
		s.audit.Record(ctx, AuditEntry{
			Actor:       actor,
			Title:       AuditPayoutFailed,
			Description: fmt.Sprintf("Failed to process payout for %s", failed.MentorName),
			Details:     details,
		})
		return failed, OutcomeFailed, nil
	}

	paid, carried, err := s.ledger.CompleteSettlement(ctx, payout, models.PayoutPaid, WithTransferReference(result.Reference))
	if err != nil {
		// Money has moved; the record must be reconciled by hand.
		log.WithError(err).WithField("reference", result.Reference).Error("Transfer succeeded but payout could not be marked paid")
		return payout, "", fmt.Errorf("mark payout %s paid: %w", payout.ID, err)
	}
	s.logCarried(log, carried)

	details := PayoutDetails(paid)
	details["transferStatus"] = "Success"
	details["transferReference"] = result.Reference
	details["provider"] = result.Provider
	s.audit.Record(ctx, AuditEntry{
		Actor:       actor,
		Title:       AuditPayoutProcessed,
		Description: fmt.Sprintf("Successfully processed payout for %s", paid.MentorName),
		Details:     details,
	})

	s.notify(ctx, mentor, notifications.WeeklyPayoutEmail(paid, mentorEmail(mentor)))
	log.WithField("reference", result.Reference).Info("Payout paid")
	return paid, OutcomePaid, nil
}

func (s *SettlementService) logCarried(log logging.Entry, carried *models.Payout) {
	if carried == nil {
		return
	}
	log.WithFields(logging.Fields{
		"carried_payout_id": carried.ID,
		"carried_sessions":  len(carried.Sessions),
	}).Info("Sessions added during transfer left for the next settlement")
}

// SendReceiptEmail emails the receipt breakdown to the payout's mentor.
func (s *SettlementService) SendReceiptEmail(ctx context.Context, payout *models.Payout) {
	mentor := s.lookupMentor(ctx, payout.MentorID)
	s.notify(ctx, mentor, notifications.ReceiptEmail(payout, mentorEmail(mentor)))
}

func (s *SettlementService) notify(ctx context.Context, mentor *models.Mentor, email notifications.Email) {
	if mentor == nil || email.To == "" {
		metrics.NotificationsTotal.WithLabelValues("skipped").Inc()
		s.logger.WithField("subject", email.Subject).Warn("No mentor email on file, skipping notification")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.emailTimeout)
	defer cancel()
	if err := s.mailer.Send(ctx, email); err != nil {
		metrics.NotificationsTotal.WithLabelValues("failed").Inc()
		s.logger.WithError(err).WithField("to", email.To).Error("Failed to send payout email")
		return
	}
	metrics.NotificationsTotal.WithLabelValues("sent").Inc()
}

func (s *SettlementService) lookupMentor(ctx context.Context, mentorID string) *models.Mentor {
	if s.mentors == nil {
		return nil
	}
	mentor, err := s.mentors.GetMentor(ctx, mentorID)
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			s.logger.WithError(err).WithField("mentor_id", mentorID).Warn("Failed to load mentor")
		}
		return nil
	}
	return mentor
}

func mentorEmail(m *models.Mentor) string {
	if m == nil {
		return ""
	}
	return m.Email
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
