/*Package events publishes entity change notifications to Kafka.

Every successful create, update and delete on the data endpoint produces
one notification. Publishing is fire and forget; a broker failure is
logged and never fails the request that caused it.
*/
package events

import (
	"context"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"

	"github.com/projekt-software-engineering/ticket-backend/core"
	"github.com/projekt-software-engineering/ticket-backend/core/logger"
)

// Notification is the published message payload.
type Notification struct {
	Collection string         `json:"collection"`
	Operation  core.Operation `json:"operation"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// KafkaNotifier publishes change notifications to a Kafka topic.
type KafkaNotifier struct {
	writer *kafka.Writer
}

// NewKafkaNotifier creates a notifier for the given brokers and topic.
// Brokers is a comma separated list of broker addresses.
func NewKafkaNotifier(brokers, topic string) *KafkaNotifier {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(strings.Split(brokers, ",")...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}
	return &KafkaNotifier{writer: writer}
}

// NotifyWithContext publishes one change notification. The logger context
// is serialized into a message header so consumers can correlate the
// notification with the request that caused it.
func (n *KafkaNotifier) NotifyWithContext(ctx context.Context, collection string, operation core.Operation, payload []byte) {
	notification := Notification{
		Collection: collection,
		Operation:  operation,
		Payload:    payload,
		CreatedAt:  time.Now().UTC(),
	}
	value, err := json.Marshal(notification)
	if err != nil {
		logger.FromContext(ctx).WithError(err).Errorln("cannot marshal notification")
		return
	}
	err = n.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(collection),
		Value: value,
		Headers: []kafka.Header{
			{Key: "logger-context", Value: logger.SerializeLoggerContext(ctx)},
		},
	})
	if err != nil {
		logger.FromContext(ctx).WithError(err).Errorln("cannot publish notification for", collection)
	}
}

// Notify implements core.Notifier without a request context.
func (n *KafkaNotifier) Notify(collection string, operation core.Operation, payload []byte) {
	n.NotifyWithContext(context.Background(), collection, operation, payload)
}

// Close flushes and closes the underlying writer.
func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}
