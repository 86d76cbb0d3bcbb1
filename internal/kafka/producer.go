package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
)

// EventKindHeader carries the lifecycle event kind so consumers can route
// without decoding the payload.
const EventKindHeader = "agriflow-event"

// Producer publishes lifecycle events to a single topic.
type Producer interface {
	Publish(ctx context.Context, key, kind string, value []byte) error
	Close() error
}

type producer struct {
	writer *kafka.Writer
	topic  string
}

// NewProducer creates a producer writing to topic. Messages are keyed by task
// ID, so all events of one task land on the same partition in order.
func NewProducer(brokers []string, topic string) Producer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		MaxAttempts:            3,
		WriteTimeout:           10 * time.Second,
		ReadTimeout:            10 * time.Second,
		AllowAutoTopicCreation: true,
	}
	return &producer{writer: w, topic: topic}
}

func (p *producer) Publish(ctx context.Context, key, kind string, value []byte) error {
	headers := HeaderCarrier{{Key: EventKindHeader, Value: []byte(kind)}}
	otel.GetTextMapPropagator().Inject(ctx, &headers)

	err := p.writer.WriteMessages(ctx, kafka.Message{
		Topic:   p.topic,
		Key:     []byte(key),
		Value:   value,
		Headers: []kafka.Header(headers),
		Time:    time.Now(),
	})
	if err != nil {
		return fmt.Errorf("kafka publish %s to %s: %w", kind, p.topic, err)
	}
	return nil
}

func (p *producer) Close() error {
	return p.writer.Close()
}
