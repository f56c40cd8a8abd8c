package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/anjiri1684/mentor_payouts/database"
	"github.com/anjiri1684/mentor_payouts/models"
	"github.com/anjiri1684/mentor_payouts/notifications"
	"github.com/anjiri1684/mentor_payouts/payments"
)

var testDay = time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)

func nullLogger() *logrus.Logger {
	l, _ := test.NewNullLogger()
	return l
}

func newTestLedger(t *testing.T, store LedgerStore) *PayoutLedger {
	t.Helper()
	return NewPayoutLedger(LedgerConfig{
		Store:        store,
		Currency:     "INR",
		StoreTimeout: 2 * time.Second,
		Logger:       nullLogger(),
		Now:          func() time.Time { return testDay },
	})
}

func seedMentor(t *testing.T, store *database.MemoryStore, id, country string) *models.Mentor {
	t.Helper()
	m := &models.Mentor{ID: id, FirstName: "Mentor", LastName: id, Email: id + "@example.com", Country: country, IsActive: true}
	require.NoError(t, store.SaveMentor(context.Background(), m))
	return m
}

func completedSession(mentorID string, minutes int, rate string, day int) models.Session {
	return models.Session{
		ID:          uuid.NewString(),
		MentorID:    mentorID,
		MentorName:  "Mentor " + mentorID,
		Date:        testDay.AddDate(0, 0, -day),
		Duration:    minutes,
		RatePerHour: decimal.RequireFromString(rate),
		Status:      models.SessionCompleted,
	}
}

func saveSessions(t *testing.T, store *database.MemoryStore, sessions ...models.Session) []string {
	t.Helper()
	ids := make([]string, 0, len(sessions))
	for i := range sessions {
		require.NoError(t, store.SaveSession(context.Background(), &sessions[i]))
		ids = append(ids, sessions[i].ID)
	}
	return ids
}

// recordingSink keeps every event it receives.
type recordingSink struct {
	mu     sync.Mutex
	events []models.AuditEvent
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Append(_ context.Context, e models.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) titles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Title)
	}
	return out
}

type fakeTransfer struct {
	mu    sync.Mutex
	calls []payments.TransferRequest
	err   error
	// during runs inside Transfer, after the request is recorded.
	during func(ctx context.Context, req payments.TransferRequest)
}

func (f *fakeTransfer) Transfer(ctx context.Context, req payments.TransferRequest) (*payments.TransferResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	during, err := f.during, f.err
	f.mu.Unlock()

	if during != nil {
		during(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	return &payments.TransferResult{Provider: "fake", Reference: "REF-" + req.PayoutID}, nil
}

func (f *fakeTransfer) transferred() []payments.TransferRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]payments.TransferRequest(nil), f.calls...)
}

func (f *fakeTransfer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []notifications.Email
	err  error
}

func (m *fakeMailer) Send(_ context.Context, e notifications.Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, e)
	return nil
}

func (m *fakeMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}
