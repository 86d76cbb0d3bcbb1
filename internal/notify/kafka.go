package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/petrovskifilip/agri-management-system/internal/kafka"
)

// KafkaSink publishes events to the event bus, where the notifier service
// fans them out to email or webhook.
type KafkaSink struct {
	producer kafka.Producer
}

func NewKafkaSink(p kafka.Producer) *KafkaSink {
	return &KafkaSink{producer: p}
}

func (s *KafkaSink) Channel() string { return "kafka" }

func (s *KafkaSink) Notify(ctx context.Context, ev Event) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return s.producer.Publish(ctx, ev.TaskID, string(ev.Kind), value)
}
