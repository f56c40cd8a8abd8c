package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/anjiri1684/mentor_payouts/logging"
	"github.com/anjiri1684/mentor_payouts/metrics"
	"github.com/anjiri1684/mentor_payouts/models"
)

const (
	AuditPayoutGenerated     = "Payout Generated"
	AuditPayoutProcessed     = "Payout Processed"
	AuditPayoutFailed        = "Payout Failed"
	AuditPayoutUnderReview   = "Payout Under Review"
	AuditPayoutStatusChanged = "Payout Status Updated"
	AuditReceiptPublished    = "Payout Receipt Published"
	AuditAutomationError     = "Automation Error"
)

// AuditSink receives every recorded event. Sinks are append-only.
type AuditSink interface {
	Name() string
	Append(ctx context.Context, event models.AuditEvent) error
}

type AuditEventStore interface {
	CreateAuditEvent(ctx context.Context, event *models.AuditEvent) error
}

// StoreAuditSink persists events through the store.
type StoreAuditSink struct {
	store AuditEventStore
}

func NewStoreAuditSink(store AuditEventStore) *StoreAuditSink {
	return &StoreAuditSink{store: store}
}

func (s *StoreAuditSink) Name() string { return "store" }

func (s *StoreAuditSink) Append(ctx context.Context, event models.AuditEvent) error {
	return s.store.CreateAuditEvent(ctx, &event)
}

type AuditEntry struct {
	Actor       string
	Title       string
	Description string
	Details     map[string]interface{}
}

// AuditService fans events out to its sinks. Sink failures are logged and
// counted, never returned.
type AuditService struct {
	sinks   []AuditSink
	logger  logging.Logger
	timeout time.Duration
	now     func() time.Time
}

func NewAuditService(logger logging.Logger, timeout time.Duration, sinks ...AuditSink) *AuditService {
	if logger == nil {
		logger = logging.NewLogger()
	}
	return &AuditService{sinks: sinks, logger: logger, timeout: timeout, now: time.Now}
}

func (a *AuditService) AddSink(sink AuditSink) {
	a.sinks = append(a.sinks, sink)
}

func (a *AuditService) Record(ctx context.Context, entry AuditEntry) models.AuditEvent {
	actor := entry.Actor
	if actor == "" {
		actor = models.ActorSystem
	}
	event := models.AuditEvent{
		ID:          uuid.NewString(),
		Timestamp:   a.now().UTC(),
		Actor:       actor,
		Category:    models.CategoryPayout,
		Title:       entry.Title,
		Description: entry.Description,
		Details:     datatypes.JSONMap(entry.Details),
	}

	for _, sink := range a.sinks {
		if err := a.deliver(ctx, sink, event); err != nil {
			metrics.AuditSinkFailuresTotal.WithLabelValues(sink.Name()).Inc()
			a.logger.WithError(err).WithFields(logging.Fields{
				"sink":  sink.Name(),
				"title": event.Title,
				"event": event.ID,
			}).Error("Failed to record audit event")
		}
	}
	return event
}

func (a *AuditService) deliver(ctx context.Context, sink AuditSink, event models.AuditEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("audit sink panic: %v", r)
		}
	}()
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	return sink.Append(ctx, event)
}

// PayoutDetails is the detail map shared by payout lifecycle events.
func PayoutDetails(p *models.Payout) map[string]interface{} {
	return map[string]interface{}{
		"receiptId":     p.ID,
		"receiptNumber": p.ReceiptNumber,
		"mentorId":      p.MentorID,
		"mentorName":    p.MentorName,
		"amount":        p.TotalAmount.StringFixed(2),
		"status":        string(p.Status),
	}
}
