package mutation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Event types
const (
	EventSubmitted = "mutation.submitted"
	EventCompleted = "mutation.completed"
	EventFailed    = "mutation.failed"
)

// Event is emitted on every journal transition
type Event struct {
	ID          uuid.UUID `json:"id"`
	Type        string    `json:"type"`
	MutationID  string    `json:"mutationId"`
	Kind        Kind      `json:"kind"`
	LedgerID    string    `json:"ledgerId,omitempty"`
	Status      Status    `json:"status"`
	BlockNumber uint64    `json:"blockNumber,omitempty"`
	Error       string    `json:"error,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewEvent builds an event from a journal record
func NewEvent(eventType string, rec *Record) *Event {
	return &Event{
		ID:          uuid.New(),
		Type:        eventType,
		MutationID:  rec.ID,
		Kind:        rec.Kind,
		LedgerID:    rec.LedgerID,
		Status:      rec.Status,
		BlockNumber: rec.BlockNumber,
		Error:       rec.Error,
		Timestamp:   time.Now().UTC(),
	}
}

// Publisher delivers mutation events
type Publisher interface {
	Publish(ctx context.Context, event *Event) error
	Close() error
}

// KafkaPublisher writes events to a Kafka topic keyed by mutation id
type KafkaPublisher struct {
	writer *kafka.Writer
	log    *zap.Logger
}

// NewKafkaPublisher creates a publisher for brokers/topic
func NewKafkaPublisher(brokers []string, topic string, log *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.CRC32Balancer{},
			BatchSize:    100,
			BatchTimeout: 10 * time.Millisecond,
			RequiredAcks: kafka.RequireOne,
			MaxAttempts:  3,
		},
		log: log,
	}
}

// Publish writes one event
func (k *KafkaPublisher) Publish(ctx context.Context, event *Event) error {
	msg, err := encodeMessage(event)
	if err != nil {
		return err
	}
	k.log.Debug("publishing mutation event",
		zap.String("topic", k.writer.Topic),
		zap.String("type", event.Type),
		zap.String("mutation_id", event.MutationID))
	return k.writer.WriteMessages(ctx, msg)
}

func (k *KafkaPublisher) Close() error {
	return k.writer.Close()
}

func encodeMessage(event *Event) (kafka.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(event.MutationID),
		Value: data,
		Time:  event.Timestamp,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(event.Type)},
			{Key: "timestamp", Value: []byte(event.Timestamp.Format(time.RFC3339))},
		},
	}, nil
}

// LogPublisher logs events when no broker is configured
type LogPublisher struct {
	log *zap.Logger
}

func NewLogPublisher(log *zap.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (l *LogPublisher) Publish(_ context.Context, event *Event) error {
	l.log.Info("mutation event",
		zap.String("type", event.Type),
		zap.String("mutation_id", event.MutationID),
		zap.String("kind", string(event.Kind)),
		zap.String("ledger_id", event.LedgerID),
		zap.String("status", string(event.Status)))
	return nil
}

func (l *LogPublisher) Close() error { return nil }
