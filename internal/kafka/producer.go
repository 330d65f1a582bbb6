package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmehdipour/repo-digest/internal/config"
	"github.com/jmehdipour/repo-digest/internal/model"
	"github.com/segmentio/kafka-go"
)

// messageWriter is the subset of *kafka.Writer the producer needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes webhook envelopes for the ingest worker.
type Producer struct {
	w messageWriter
}

func NewProducer(c config.KafkaConfig) *Producer {
	return &Producer{w: &kafka.Writer{
		Addr:         kafka.TCP(c.Brokers...),
		Topic:        c.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}}
}

// Publish writes env keyed by its repository, so the hash balancer keeps
// one repository's deliveries on one partition and in order.
func (p *Producer) Publish(ctx context.Context, env model.Envelope) error {
	b, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	return p.w.WriteMessages(ctx, kafka.Message{Key: []byte(env.PartitionKey()), Value: b})
}

func (p *Producer) Close() error { return p.w.Close() }

// DecodeEnvelope parses a message written by Publish.
func DecodeEnvelope(m Message) (model.Envelope, error) {
	var env model.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return model.Envelope{}, fmt.Errorf("bad envelope json: %w", err)
	}
	if env.ID == "" || env.Source == "" {
		return model.Envelope{}, fmt.Errorf("envelope missing id or source")
	}
	src, ok := model.ParseEventSource(string(env.Source))
	if !ok {
		return model.Envelope{}, fmt.Errorf("envelope %s: unknown source %q", env.ID, env.Source)
	}
	env.Source = src
	return env, nil
}
