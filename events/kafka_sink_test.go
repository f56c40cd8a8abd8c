package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"
	"gorm.io/datatypes"

	"github.com/anjiri1684/mentor_payouts/models"
)

type fakeProducer struct {
	records []*kgo.Record
	err     error
	closed  bool
}

func (f *fakeProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	f.records = append(f.records, rs...)
	results := make(kgo.ProduceResults, 0, len(rs))
	for _, r := range rs {
		results = append(results, kgo.ProduceResult{Record: r, Err: f.err})
	}
	return results
}

func (f *fakeProducer) Close() { f.closed = true }

func sampleEvent() models.AuditEvent {
	return models.AuditEvent{
		ID:          "evt-1",
		Timestamp:   time.Date(2026, 3, 9, 2, 0, 0, 0, time.UTC),
		Actor:       models.ActorSystem,
		Category:    models.CategoryPayout,
		Title:       "Payout Processed",
		Description: "Successfully processed payout for Asha",
		Details:     datatypes.JSONMap{"mentorId": "m1", "amount": "2310.00"},
	}
}

func TestKafkaAuditSinkPublishesKeyedRecord(t *testing.T) {
	fp := &fakeProducer{}
	sink := &KafkaAuditSink{client: fp, topic: "payout-audit-events"}

	require.NoError(t, sink.Append(context.Background(), sampleEvent()))
	require.Len(t, fp.records, 1)

	r := fp.records[0]
	assert.Equal(t, "payout-audit-events", r.Topic)
	assert.Equal(t, "m1", string(r.Key))
	assert.Equal(t, "event_type", r.Headers[0].Key)
	assert.Equal(t, "Payout Processed", string(r.Headers[0].Value))

	var msg AuditMessage
	require.NoError(t, json.Unmarshal(r.Value, &msg))
	assert.Equal(t, "evt-1", msg.ID)
	assert.Equal(t, "2310.00", msg.Details["amount"])
}

func TestKafkaAuditSinkFallsBackToEventKey(t *testing.T) {
	fp := &fakeProducer{}
	sink := &KafkaAuditSink{client: fp, topic: "t"}
	e := sampleEvent()
	e.Details = nil

	require.NoError(t, sink.Append(context.Background(), e))
	assert.Equal(t, "evt-1", string(fp.records[0].Key))
}

func TestKafkaAuditSinkReturnsProduceError(t *testing.T) {
	fp := &fakeProducer{err: errors.New("broker not available")}
	sink := &KafkaAuditSink{client: fp, topic: "t"}

	err := sink.Append(context.Background(), sampleEvent())
	assert.ErrorContains(t, err, "broker not available")

	sink.Close()
	assert.True(t, fp.closed)
}
