package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/anjiri1684/mentor_payouts/logging"
	"github.com/anjiri1684/mentor_payouts/models"
)

type producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

// AuditMessage is the wire form of an audit event on the topic.
type AuditMessage struct {
	ID          string                 `json:"id"`
	Timestamp   time.Time              `json:"timestamp"`
	Actor       string                 `json:"actor"`
	Category    string                 `json:"category"`
	Title       string                 `json:"title"`
	Description string                 `json:"description"`
	Details     map[string]interface{} `json:"details,omitempty"`
}

// KafkaAuditSink publishes audit events keyed by mentor so that a mentor's
// events stay ordered within a partition.
type KafkaAuditSink struct {
	client producer
	topic  string
	logger logging.Logger
}

func NewKafkaAuditSink(brokers []string, topic string, logger logging.Logger) (*KafkaAuditSink, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ClientID("mentor-payouts"),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
		kgo.ProducerLinger(10*time.Millisecond),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}
	return &KafkaAuditSink{client: client, topic: topic, logger: logger}, nil
}

func (s *KafkaAuditSink) Name() string { return "kafka" }

func (s *KafkaAuditSink) Append(ctx context.Context, event models.AuditEvent) error {
	record, err := s.encode(event)
	if err != nil {
		return err
	}
	if err := s.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("failed to produce audit event: %w", err)
	}
	return nil
}

func (s *KafkaAuditSink) encode(event models.AuditEvent) (*kgo.Record, error) {
	value, err := json.Marshal(AuditMessage{
		ID:          event.ID,
		Timestamp:   event.Timestamp,
		Actor:       event.Actor,
		Category:    event.Category,
		Title:       event.Title,
		Description: event.Description,
		Details:     event.Details,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal audit event %s: %w", event.ID, err)
	}

	key := event.ID
	if mentorID, ok := event.Details["mentorId"].(string); ok && mentorID != "" {
		key = mentorID
	}

	return &kgo.Record{
		Topic: s.topic,
		Key:   []byte(key),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(event.Title)},
			{Key: "category", Value: []byte(event.Category)},
		},
	}, nil
}

func (s *KafkaAuditSink) Close() {
	s.client.Close()
}
