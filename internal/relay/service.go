// Package relay is the entry point used by the transports: chat commands
// manage the subscription index and webhook deliveries feed the engine.
package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jmehdipour/repo-digest/internal/command"
	"github.com/jmehdipour/repo-digest/internal/metrics"
	"github.com/jmehdipour/repo-digest/internal/model"
	"github.com/jmehdipour/repo-digest/internal/subscription"
	"github.com/jmehdipour/repo-digest/internal/util"
	"github.com/jmehdipour/repo-digest/internal/webhook"
	"go.uber.org/zap"
)

// ErrQueueUnavailable means a delivery could not be handed to the queue.
var ErrQueueUnavailable = errors.New("queue unavailable")

type Index interface {
	Link(ctx context.Context, sub model.Subscriber, repo string) error
	Unlink(ctx context.Context, k model.ChannelKey, repo string) error
	List(ctx context.Context, k model.ChannelKey) ([]string, error)
}

type Handler interface {
	Handle(ctx context.Context, ev model.Event) error
}

// Publisher queues raw deliveries for the ingest worker.
type Publisher interface {
	Publish(ctx context.Context, env model.Envelope) error
}

type Service struct {
	index    Index
	engine   Handler
	queue    Publisher
	log      *zap.Logger
	inflight sync.WaitGroup
}

type Option func(*Service)

// WithPublisher makes Accept queue deliveries instead of handling them inline.
func WithPublisher(p Publisher) Option { return func(s *Service) { s.queue = p } }

func WithLogger(l *zap.Logger) Option { return func(s *Service) { s.log = l } }

func New(index Index, engine Handler, opts ...Option) *Service {
	s := &Service{index: index, engine: engine, log: zap.NewNop()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// OnCommand parses text and runs it for sub. The returned reply is always
// suitable for posting back to the channel.
func (s *Service) OnCommand(ctx context.Context, sub model.Subscriber, text string) string {
	cmd := command.Parse(text)
	var (
		reply string
		err   error
	)
	switch cmd.Verb {
	case command.VerbLink:
		reply, err = s.OnLinkCommand(ctx, sub, cmd.Repo)
	case command.VerbUnlink:
		reply, err = s.OnUnlinkCommand(ctx, sub.Key(), cmd.Repo)
	case command.VerbList:
		reply, err = s.OnListCommand(ctx, sub.Key())
	default:
		reply = command.Usage
	}

	result := "ok"
	if err != nil {
		result = "failed"
		s.log.Warn("command failed",
			zap.String("verb", cmd.Verb.String()),
			zap.String("channel", sub.Key().String()),
			zap.Error(err))
	}
	metrics.CommandsTotal.WithLabelValues(cmd.Verb.String(), result).Inc()
	return reply
}

func (s *Service) OnLinkCommand(ctx context.Context, sub model.Subscriber, repo string) (string, error) {
	if err := s.index.Link(ctx, sub, repo); err != nil {
		return command.Failure(err), err
	}
	return command.Linked(repo), nil
}

// OnUnlinkCommand replies "<repo> not linked" when there was nothing to
// remove; that case is not reported as an error.
func (s *Service) OnUnlinkCommand(ctx context.Context, k model.ChannelKey, repo string) (string, error) {
	err := s.index.Unlink(ctx, k, repo)
	switch {
	case errors.Is(err, subscription.ErrNotLinked):
		return repo + " not linked", nil
	case err != nil:
		return command.Failure(err), err
	}
	return command.Unlinked(repo), nil
}

func (s *Service) OnListCommand(ctx context.Context, k model.ChannelKey) (string, error) {
	repos, err := s.index.List(ctx, k)
	if err != nil {
		return command.Failure(err), err
	}
	return command.Links(repos), nil
}

// Accept takes a webhook delivery from a transport and returns once it is
// normalized. With a publisher the raw delivery is queued, keyed by its
// repository; otherwise the engine runs in the background under a context
// detached from ctx. Wait blocks until those background runs finish.
func (s *Service) Accept(ctx context.Context, src model.EventSource, headers map[string]string, raw []byte) error {
	ev, ok, err := s.normalize(src, headers, raw)
	if err != nil || !ok {
		return err
	}

	if s.queue != nil {
		env := model.Envelope{
			ID:         ev.DeliveryID,
			Source:     src,
			Repository: ev.Repository,
			Headers:    headers,
			Payload:    raw,
		}
		if err := s.queue.Publish(ctx, env); err != nil {
			return fmt.Errorf("%w: delivery %s: %v", ErrQueueUnavailable, env.ID, err)
		}
		metrics.EventsTotal.WithLabelValues(src.String(), "queued").Inc()
		return nil
	}

	detached := context.WithoutCancel(ctx)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		_ = s.handle(detached, src, ev)
	}()
	return nil
}

// Wait blocks until every event accepted for background handling is done.
func (s *Service) Wait() { s.inflight.Wait() }

// OnWebhookEvent normalizes one delivery and hands it to the engine
// synchronously. Unsupported events are dropped without error.
func (s *Service) OnWebhookEvent(ctx context.Context, src model.EventSource, headers map[string]string, raw []byte) error {
	ev, ok, err := s.normalize(src, headers, raw)
	if err != nil || !ok {
		return err
	}
	return s.handle(ctx, src, ev)
}

// normalize parses a delivery and stamps its delivery id. ok is false for
// events that are not relayed.
func (s *Service) normalize(src model.EventSource, headers map[string]string, raw []byte) (model.Event, bool, error) {
	ev, err := webhook.Parse(src, headers, raw)
	switch {
	case errors.Is(err, webhook.ErrUnsupportedEvent):
		metrics.EventsTotal.WithLabelValues(src.String(), "unsupported").Inc()
		s.log.Debug("unsupported webhook event", zap.String("source", src.String()), zap.Error(err))
		return model.Event{}, false, nil
	case err != nil:
		metrics.EventsTotal.WithLabelValues(src.String(), "invalid").Inc()
		return model.Event{}, false, err
	}

	ev.DeliveryID = webhook.DeliveryID(headers)
	if ev.DeliveryID == "" {
		ev.DeliveryID = util.New()
	}
	return ev, true, nil
}

func (s *Service) handle(ctx context.Context, src model.EventSource, ev model.Event) error {
	if err := s.engine.Handle(ctx, ev); err != nil {
		metrics.EventsTotal.WithLabelValues(src.String(), "failed").Inc()
		s.log.Error("handle event",
			zap.String("repo", ev.Repository),
			zap.String("delivery_id", ev.DeliveryID),
			zap.Error(err))
		return err
	}
	metrics.EventsTotal.WithLabelValues(src.String(), "handled").Inc()
	return nil
}
