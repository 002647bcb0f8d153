// Package notify ships the built-in notifiers: a Kafka producer and a
// plain log notifier for development setups.
package notify

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	kafka "github.com/segmentio/kafka-go"

	"github.com/relabs-tech/restgen/core"
	"github.com/relabs-tech/restgen/core/logger"
)

// Event is the wire format of a mutation notification.
type Event struct {
	Resource  string          `json:"resource"`
	Operation core.Operation  `json:"operation"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// Kafka publishes one message per mutation, keyed by resource so that
// notifications for the same resource stay ordered within a partition.
type Kafka struct {
	writer *kafka.Writer
}

// NewKafka creates a Kafka notifier for the given brokers and topic.
func NewKafka(brokers []string, topic string) *Kafka {
	return &Kafka{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.Hash{},
		},
	}
}

// Notify implements core.Notifier.
func (k *Kafka) Notify(ctx context.Context, resource string, operation core.Operation, payload []byte) error {
	body, err := json.Marshal(Event{
		Resource:  resource,
		Operation: operation,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return errors.Wrap(err, "cannot marshal notification")
	}
	err = k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(resource),
		Value: body,
	})
	return errors.Wrapf(err, "cannot publish notification for `%s`", resource)
}

// Close flushes and closes the underlying writer.
func (k *Kafka) Close() error {
	return k.writer.Close()
}

// Log writes notifications to the service log. Handy for development.
type Log struct{}

// Notify implements core.Notifier.
func (Log) Notify(ctx context.Context, resource string, operation core.Operation, payload []byte) error {
	logger.FromContext(ctx).WithField("resource", resource).
		WithField("operation", string(operation)).
		Infoln("notification:", string(payload))
	return nil
}
