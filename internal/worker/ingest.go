package worker

import (
	"context"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/jmehdipour/repo-digest/internal/kafka"
	"github.com/jmehdipour/repo-digest/internal/metrics"
	"github.com/jmehdipour/repo-digest/internal/model"
	"go.uber.org/zap"
)

// Source is the consuming side of the webhook topic.
type Source interface {
	Fetch(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, m kafka.Message) error
}

// EventHandler receives the decoded delivery; relay.Service.OnWebhookEvent.
type EventHandler func(ctx context.Context, src model.EventSource, headers map[string]string, raw []byte) error

// Ingest:
// - fetches webhook envelopes from Kafka,
// - hands each one to the relay,
// - commits it whatever the outcome (poison messages included).
type Ingest struct {
	Source  Source
	Handle  EventHandler
	Log     *zap.Logger
	Workers int           // processors; one message key always lands on the same one
	Backoff time.Duration // pause after a fetch error
}

func NewIngest(src Source, handle EventHandler, log *zap.Logger) *Ingest {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ingest{
		Source:  src,
		Handle:  handle,
		Log:     log,
		Workers: 1,
		Backoff: 200 * time.Millisecond,
	}
}

// Run blocks until ctx is cancelled and every processor has returned.
func (w *Ingest) Run(ctx context.Context) error {
	if w.Workers <= 0 {
		w.Workers = 1
	}

	shards := make([]chan kafka.Message, w.Workers)
	for i := range shards {
		shards[i] = make(chan kafka.Message, 2)
	}

	go func() {
		defer func() {
			for _, ch := range shards {
				close(ch)
			}
		}()
		for {
			m, err := w.Source.Fetch(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				w.Log.Warn("kafka fetch failed", zap.Error(err))
				select {
				case <-ctx.Done():
					return
				case <-time.After(w.Backoff):
				}
				continue
			}
			select {
			case shards[shardOf(m.Key, len(shards))] <- m:
			case <-ctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for _, ch := range shards {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for m := range ch {
				w.processOne(ctx, m)
			}
		}()
	}

	wg.Wait()
	return nil
}

// shardOf keeps a repository's deliveries on one processor, in fetch order.
func shardOf(key []byte, n int) int {
	if n <= 1 || len(key) == 0 {
		return 0
	}
	return int(xxhash.Sum64(key) % uint64(n))
}

func (w *Ingest) processOne(ctx context.Context, m kafka.Message) {
	env, err := kafka.DecodeEnvelope(m)
	if err != nil {
		metrics.EventsTotal.WithLabelValues("kafka", "invalid").Inc()
		w.Log.Warn("skipping poison message",
			zap.Int("partition", m.Partition), zap.Int64("offset", m.Offset), zap.Error(err))
		w.commit(ctx, m)
		return
	}

	// the relay logs and counts its own failures
	if err := w.Handle(ctx, env.Source, withDeliveryID(env), env.Payload); err != nil {
		w.Log.Debug("envelope handled with error", zap.String("delivery_id", env.ID), zap.Error(err))
	}

	// at-least-once; a failed outbound call is not retried from the topic
	w.commit(ctx, m)
}

func (w *Ingest) commit(ctx context.Context, m kafka.Message) {
	if err := w.Source.Commit(ctx, m); err != nil {
		w.Log.Error("kafka commit failed", zap.Int64("offset", m.Offset), zap.Error(err))
	}
}

// withDeliveryID keeps the id assigned at publish time when the sender's
// headers carried none.
func withDeliveryID(env model.Envelope) map[string]string {
	h := make(map[string]string, len(env.Headers)+1)
	for k, v := range env.Headers {
		h[k] = v
	}
	switch env.Source {
	case model.SourceGitLab:
		if h["X-Gitlab-Event-Uuid"] == "" {
			h["X-Gitlab-Event-Uuid"] = env.ID
		}
	default:
		if h["X-Github-Delivery"] == "" {
			h["X-Github-Delivery"] = env.ID
		}
	}
	return h
}
