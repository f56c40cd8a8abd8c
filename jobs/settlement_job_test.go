package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anjiri1684/mentor_payouts/database"
	"github.com/anjiri1684/mentor_payouts/models"
	"github.com/anjiri1684/mentor_payouts/notifications"
	"github.com/anjiri1684/mentor_payouts/payments"
	"github.com/anjiri1684/mentor_payouts/services"
)

var runAt = time.Date(2026, 3, 9, 2, 0, 0, 0, time.UTC)

type stubTransfer struct {
	mu      sync.Mutex
	calls   int
	fn      func(req payments.TransferRequest) (*payments.TransferResult, error)
	started chan struct{}
	release chan struct{}
}

func (s *stubTransfer) Transfer(ctx context.Context, req payments.TransferRequest) (*payments.TransferResult, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.started != nil {
		s.started <- struct{}{}
		<-s.release
	}
	if s.fn != nil {
		return s.fn(req)
	}
	return &payments.TransferResult{Provider: "stub", Reference: "REF-" + req.PayoutID}, nil
}

func (s *stubTransfer) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubMailer struct {
	mu   sync.Mutex
	sent []notifications.Email
}

func (m *stubMailer) Send(_ context.Context, e notifications.Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, e)
	return nil
}

type eventLog struct {
	mu     sync.Mutex
	events []models.AuditEvent
}

func (l *eventLog) Name() string { return "test" }

func (l *eventLog) Append(_ context.Context, e models.AuditEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
	return nil
}

func (l *eventLog) titles() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, e := range l.events {
		out = append(out, e.Title)
	}
	return out
}

type harness struct {
	store     *database.MemoryStore
	transfer  *stubTransfer
	mailer    *stubMailer
	events    *eventLog
	scheduler *SettlementScheduler
}

func newHarness(t *testing.T, sessions SessionSource) *harness {
	t.Helper()
	logger, _ := test.NewNullLogger()
	h := &harness{
		store:    database.NewMemoryStore(),
		transfer: &stubTransfer{},
		mailer:   &stubMailer{},
		events:   &eventLog{},
	}
	if sessions == nil {
		sessions = h.store
	}
	audit := services.NewAuditService(logger, 0, h.events)
	ledger := services.NewPayoutLedger(services.LedgerConfig{
		Store:  h.store,
		Logger: logger,
		Now:    func() time.Time { return runAt },
	})
	settlement := services.NewSettlementService(services.SettlementConfig{
		Ledger:   ledger,
		Transfer: h.transfer,
		Mailer:   h.mailer,
		Audit:    audit,
		Mentors:  h.store,
		Logger:   logger,
	})
	h.scheduler = NewSettlementScheduler(SchedulerConfig{
		Concurrency: 2,
		Sessions:    sessions,
		Ledger:      ledger,
		Settlement:  settlement,
		Audit:       audit,
		Logger:      logger,
		Now:         func() time.Time { return runAt },
	})
	return h
}

func (h *harness) mentor(t *testing.T, id, country string) {
	t.Helper()
	require.NoError(t, h.store.SaveMentor(context.Background(), &models.Mentor{
		ID: id, FirstName: "Mentor", LastName: id, Email: id + "@example.com", Country: country,
	}))
}

func (h *harness) session(t *testing.T, mentorID string, daysAgo int, rate string, status models.SessionStatus) models.Session {
	t.Helper()
	s := models.Session{
		ID:          uuid.NewString(),
		MentorID:    mentorID,
		MentorName:  "Mentor " + mentorID,
		Date:        runAt.AddDate(0, 0, -daysAgo),
		Duration:    60,
		RatePerHour: decimal.RequireFromString(rate),
		Status:      status,
	}
	require.NoError(t, h.store.SaveSession(context.Background(), &s))
	return s
}

func TestRunOncePaysWeeklyPayout(t *testing.T) {
	h := newHarness(t, nil)
	h.mentor(t, "m1", "India")
	a := h.session(t, "m1", 1, "1500", models.SessionCompleted)
	b := h.session(t, "m1", 6, "1500", models.SessionCompleted)
	old := h.session(t, "m1", 10, "1500", models.SessionCompleted)
	h.session(t, "m1", 2, "1500", models.SessionScheduled)

	report, err := h.scheduler.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Mentors)
	assert.Equal(t, 1, report.Generated)
	assert.Equal(t, 1, report.Paid)
	assert.Empty(t, report.Errors)

	payouts, err := h.store.ListPayouts(context.Background(), database.PayoutFilter{MentorID: "m1"})
	require.NoError(t, err)
	require.Len(t, payouts, 1)
	p := payouts[0]
	assert.Equal(t, models.PayoutPaid, p.Status)
	assert.ElementsMatch(t, []string{a.ID, b.ID}, []string(p.Sessions))
	assert.NotContains(t, []string(p.Sessions), old.ID)
	assert.Equal(t, "2310.00", p.TotalAmount.StringFixed(2))
	assert.Equal(t, automatedNote, p.Notes)

	assert.Equal(t, []string{services.AuditPayoutGenerated, services.AuditPayoutProcessed}, h.events.titles())
	require.Len(t, h.mailer.sent, 1)
	assert.Equal(t, "Weekly Payout Processed - ₹2,310", h.mailer.sent[0].Subject)
}

func TestRunOnceTransferFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.mentor(t, "m1", "India")
	h.session(t, "m1", 1, "1500", models.SessionCompleted)
	h.transfer.fn = func(payments.TransferRequest) (*payments.TransferResult, error) {
		return nil, &payments.TransferError{Provider: "stub", Err: payments.ErrTransferTimeout}
	}

	report, err := h.scheduler.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)

	payouts, _ := h.store.ListPayouts(context.Background(), database.PayoutFilter{})
	require.Len(t, payouts, 1)
	assert.Equal(t, models.PayoutFailed, payouts[0].Status)
	assert.Equal(t, []string{services.AuditPayoutGenerated, services.AuditPayoutFailed}, h.events.titles())
	assert.Empty(t, h.mailer.sent)
}

func TestRunOnceLargePayoutWaitsForReview(t *testing.T) {
	h := newHarness(t, nil)
	h.session(t, "m1", 1, "16000", models.SessionCompleted)

	report, err := h.scheduler.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.UnderReview)
	assert.Equal(t, 0, h.transfer.count())
	assert.Equal(t, []string{services.AuditPayoutGenerated, services.AuditPayoutUnderReview}, h.events.titles())
}

func TestRunOnceDoesNotRegenerateUnchangedReviewPayout(t *testing.T) {
	h := newHarness(t, nil)
	h.session(t, "m1", 1, "16000", models.SessionCompleted)

	_, err := h.scheduler.RunOnce(context.Background())
	require.NoError(t, err)

	report, err := h.scheduler.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Mentors)
	assert.Equal(t, 0, report.Generated)
	assert.Equal(t, 0, report.UnderReview)
	assert.Empty(t, report.Errors)
	assert.Equal(t, []string{services.AuditPayoutGenerated, services.AuditPayoutUnderReview}, h.events.titles())
}

func TestRunOnceSettlesMergedPayoutWithoutGenerating(t *testing.T) {
	h := newHarness(t, nil)
	h.mentor(t, "m1", "India")
	s := h.session(t, "m1", 1, "1500", models.SessionCompleted)
	merged, err := h.scheduler.cfg.Ledger.MergeSession(context.Background(), s)
	require.NoError(t, err)

	report, err := h.scheduler.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Generated)
	assert.Equal(t, 1, report.Paid)
	assert.Equal(t, []string{services.AuditPayoutProcessed}, h.events.titles())

	paid, err := h.store.GetPayout(context.Background(), merged.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutPaid, paid.Status)
}

func TestRunOnceWithNoSessionsDoesNothing(t *testing.T) {
	h := newHarness(t, nil)
	h.session(t, "m1", 30, "1500", models.SessionCompleted)

	report, err := h.scheduler.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Mentors)

	payouts, _ := h.store.ListPayouts(context.Background(), database.PayoutFilter{})
	assert.Empty(t, payouts)
	assert.Empty(t, h.events.titles())
}

func TestRunOnceIsolatesMentorFailures(t *testing.T) {
	h := newHarness(t, nil)
	h.mentor(t, "good", "India")
	h.mentor(t, "bad", "India")
	h.session(t, "good", 1, "1500", models.SessionCompleted)
	h.session(t, "bad", 1, "1500", models.SessionCompleted)
	h.transfer.fn = func(req payments.TransferRequest) (*payments.TransferResult, error) {
		if req.MentorID == "bad" {
			panic("provider client bug")
		}
		return &payments.TransferResult{Provider: "stub", Reference: "ok"}, nil
	}

	report, err := h.scheduler.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Paid)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "provider client bug")
	assert.Contains(t, h.events.titles(), services.AuditAutomationError)

	// the next run is unaffected
	_, err = h.scheduler.RunOnce(context.Background())
	require.NoError(t, err)
}

type failingSource struct{}

func (failingSource) ListSessions(context.Context, database.SessionFilter) ([]models.Session, error) {
	return nil, errors.New("db unavailable")
}

func TestRunOnceRecordsBatchError(t *testing.T) {
	h := newHarness(t, failingSource{})

	report, err := h.scheduler.RunOnce(context.Background())
	require.Error(t, err)
	require.NotNil(t, report)
	assert.Equal(t, []string{services.AuditAutomationError}, h.events.titles())
	assert.Equal(t, "db unavailable", h.events.events[0].Details["error"])
}

func TestRunOnceRejectsOverlappingRuns(t *testing.T) {
	h := newHarness(t, nil)
	h.session(t, "m1", 1, "1500", models.SessionCompleted)
	h.transfer.started = make(chan struct{})
	h.transfer.release = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := h.scheduler.RunOnce(context.Background())
		done <- err
	}()

	<-h.transfer.started
	_, err := h.scheduler.RunOnce(context.Background())
	assert.ErrorIs(t, err, ErrRunInProgress)

	close(h.transfer.release)
	require.NoError(t, <-done)
}

func TestStartRejectsBadSchedule(t *testing.T) {
	logger := logrus.New()
	s := NewSettlementScheduler(SchedulerConfig{Schedule: "not a cron", Logger: logger})
	assert.Error(t, s.Start())
}

func TestStartStop(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.scheduler.Start())
	assert.Error(t, h.scheduler.Start())
	h.scheduler.Stop()
	h.scheduler.Stop()
}
