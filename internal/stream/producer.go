// README: Kafka producer for the job event firehose; nil-safe and best effort.
package stream

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"towline/internal/types"
)

// JobEvent is the analytics record emitted on every job lifecycle change.
type JobEvent struct {
	JobID      types.ID  `json:"job_id"`
	CustomerID types.ID  `json:"customer_id"`
	DriverID   types.ID  `json:"driver_id,omitempty"`
	Status     string    `json:"status"`
	PriceCents int64     `json:"price_cents,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// LocationEvent is the analytics record for a driver position ping.
type LocationEvent struct {
	DriverID   types.ID  `json:"driver_id"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Producer writes job events to Kafka. A nil *Producer is a no-op so callers
// need no branching when the broker list is empty.
type Producer struct {
	writer *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	if len(brokers) == 0 {
		return nil
	}
	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers:  brokers,
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	})
	return &Producer{writer: w}
}

func (p *Producer) Emit(ev JobEvent) error {
	if p == nil {
		return nil
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(ev.JobID), Value: b})
}

func (p *Producer) EmitLocation(ev LocationEvent) error {
	if p == nil {
		return nil
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(ev.DriverID), Value: b})
}

func (p *Producer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
