package database

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/anjiri1684/mentor_payouts/models"
)

func newMockStore(t *testing.T) (*GormStore, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return NewGormStore(db), mock
}

func TestGormStoreGetPayoutNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT \* FROM "payouts" WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.GetPayout(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStoreFindPayoutBySession(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT \* FROM "payouts" WHERE \$1 = ANY\(sessions\)`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "receipt_number", "mentor_id", "sessions", "status", "total_amount", "version"}).
			AddRow("p1", "RCP-ABC123", "m1", "{s1,s2}", "Pending", "1155.00", 2))

	p, err := store.FindPayoutBySession(context.Background(), "s2")
	require.NoError(t, err)
	assert.Equal(t, "p1", p.ID)
	assert.Equal(t, []string{"s1", "s2"}, []string(p.Sessions))
	assert.True(t, p.TotalAmount.Equal(decimal.RequireFromString("1155")))
	assert.Equal(t, models.PayoutPending, p.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStoreUpdatePayoutVersionConflict(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(`UPDATE "payouts" SET`).WillReturnResult(sqlmock.NewResult(0, 0))

	p := &models.Payout{ID: "p1", Status: models.PayoutPaid, Version: 3}
	err := store.UpdatePayout(context.Background(), p, 3)
	assert.ErrorIs(t, err, ErrVersionConflict)
	assert.Equal(t, 3, p.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStoreUpdatePayoutBumpsVersion(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(`UPDATE "payouts" SET`).WillReturnResult(sqlmock.NewResult(0, 1))

	p := &models.Payout{ID: "p1", Status: models.PayoutPaid, Version: 3}
	require.NoError(t, store.UpdatePayout(context.Background(), p, 3))
	assert.Equal(t, 4, p.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStoreReceiptNumberExists(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT count\(\*\) FROM "payouts" WHERE receipt_number = \$1`).
		WithArgs("RCP-ABC123").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	exists, err := store.ReceiptNumberExists(context.Background(), "RCP-ABC123")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStoreListAuditEventsNewestFirst(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT \* FROM "audit_events" ORDER BY timestamp desc LIMIT`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "timestamp", "actor", "category", "title", "description", "details"}).
			AddRow("e2", now, "System", "Payout", "Payout Processed", "paid", []byte(`{"mentorId":"m1"}`)).
			AddRow("e1", now.Add(-time.Minute), "System", "Payout", "Payout Generated", "generated", []byte(`{}`)))

	events, err := store.ListAuditEvents(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "e2", events[0].ID)
	assert.Equal(t, "m1", events[0].Details["mentorId"])
	assert.NoError(t, mock.ExpectationsWereMet())
}
