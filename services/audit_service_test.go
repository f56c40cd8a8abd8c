package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anjiri1684/mentor_payouts/database"
	"github.com/anjiri1684/mentor_payouts/models"
)

type failingSink struct{}

func (failingSink) Name() string { return "failing" }
func (failingSink) Append(context.Context, models.AuditEvent) error {
	return errors.New("sink down")
}

type panickingSink struct{}

func (panickingSink) Name() string { return "panicking" }
func (panickingSink) Append(context.Context, models.AuditEvent) error {
	panic("boom")
}

func TestAuditServiceRecordsToEverySink(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()
	rec := &recordingSink{}
	audit := NewAuditService(nullLogger(), time.Second, NewStoreAuditSink(store), rec)

	event := audit.Record(ctx, AuditEntry{
		Title:       AuditPayoutGenerated,
		Description: "Generated automated payout for Asha",
		Details:     map[string]interface{}{"amount": "2310.00"},
	})

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, models.ActorSystem, event.Actor)
	assert.Equal(t, models.CategoryPayout, event.Category)
	assert.Equal(t, time.UTC, event.Timestamp.Location())

	stored, err := store.ListAuditEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, event.ID, stored[0].ID)
	assert.Equal(t, "2310.00", stored[0].Details["amount"])
	assert.Equal(t, []string{AuditPayoutGenerated}, rec.titles())
}

func TestAuditServiceSwallowsSinkFailures(t *testing.T) {
	logger, hook := test.NewNullLogger()
	rec := &recordingSink{}
	audit := NewAuditService(logger, 0, failingSink{}, panickingSink{}, rec)

	assert.NotPanics(t, func() {
		audit.Record(context.Background(), AuditEntry{Actor: "admin@example.com", Title: AuditPayoutFailed})
	})

	assert.Equal(t, []string{AuditPayoutFailed}, rec.titles(), "later sinks still receive the event")
	errorsLogged := 0
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.ErrorLevel {
			errorsLogged++
		}
	}
	assert.Equal(t, 2, errorsLogged)
}

func TestPayoutDetails(t *testing.T) {
	p := &models.Payout{ID: "p1", ReceiptNumber: "PAY-1", MentorID: "m1", MentorName: "Asha", Status: models.PayoutPending}
	d := PayoutDetails(p)
	assert.Equal(t, "p1", d["receiptId"])
	assert.Equal(t, "0.00", d["amount"])
	assert.Equal(t, "Pending", d["status"])
}
