package notifier

import (
	"context"
	"fmt"

	"SignalDesk/internal/domain/models"
	drepo "SignalDesk/internal/domain/repository"
)

// Kafka publishes alerts as JSON keyed by symbol, so one instrument's alerts
// stay ordered on a partition.
type Kafka struct {
	topic string
	pub   drepo.Publisher
}

func NewKafka(topic string, pub drepo.Publisher) *Kafka {
	return &Kafka{topic: topic, pub: pub}
}

func (k *Kafka) Name() string { return "kafka" }

func (k *Kafka) Notify(ctx context.Context, a models.Alert) error {
	if err := k.pub.Publish(ctx, k.topic, []byte(a.Symbol()), a); err != nil {
		return fmt.Errorf("publish alert to %s: %w", k.topic, err)
	}
	return nil
}
