package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"multidept-session-trust/backend/internal/audit/domain"
)

// KafkaNotifier implements audit.Notifier using segmentio/kafka-go.
type KafkaNotifier struct {
	writer  *kafka.Writer
	timeout time.Duration
}

// NewKafkaNotifier creates a notifier that writes alerts to topic. It returns nil when brokers
// or topic are empty; a nil *KafkaNotifier is a valid no-op. Call Close when shutting down.
func NewKafkaNotifier(brokers []string, topic string) *KafkaNotifier {
	if len(brokers) == 0 || topic == "" {
		return nil
	}
	return &KafkaNotifier{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 50 * time.Millisecond,
			RequiredAcks: kafka.RequireOne,
		},
		timeout: 5 * time.Second,
	}
}

// Notify serializes the entry as an Alert and writes it keyed by user, so one user's alerts
// stay ordered within a partition.
func (n *KafkaNotifier) Notify(ctx context.Context, entry *domain.SecurityAuditLog) error {
	if n == nil || n.writer == nil || entry == nil {
		return nil
	}
	msg, err := message(entry)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()
	return n.writer.WriteMessages(writeCtx, msg)
}

// Close closes the Kafka writer. Safe to call on a nil notifier.
func (n *KafkaNotifier) Close() error {
	if n == nil || n.writer == nil {
		return nil
	}
	return n.writer.Close()
}

func message(entry *domain.SecurityAuditLog) (kafka.Message, error) {
	payload, err := json.Marshal(FromEntry(entry))
	if err != nil {
		return kafka.Message{}, err
	}
	key := entry.UserID
	if key == "" {
		key = entry.ID
	}
	return kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Time:  entry.Timestamp,
		Headers: []kafka.Header{
			{Key: "action", Value: []byte(entry.Action)},
			{Key: "severity", Value: []byte(entry.Severity)},
		},
	}, nil
}
