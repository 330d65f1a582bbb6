// Package aggregator fans repository events out to subscribed channels,
// posting a new digest message or editing the open one.
package aggregator

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmehdipour/repo-digest/internal/chat"
	"github.com/jmehdipour/repo-digest/internal/digest"
	"github.com/jmehdipour/repo-digest/internal/keylock"
	"github.com/jmehdipour/repo-digest/internal/metrics"
	"github.com/jmehdipour/repo-digest/internal/model"
	"github.com/jmehdipour/repo-digest/internal/repository"
	"github.com/jmehdipour/repo-digest/internal/util"
	"github.com/jonboulle/clockwork"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

var ErrOutboundFailure = errors.New("outbound failure")

// SubscriberSource is the read side of the subscription index.
type SubscriberSource interface {
	Subscribers(ctx context.Context, repo string) ([]model.Subscriber, error)
}

type Engine struct {
	subs       SubscriberSource
	cache      *digest.Cache
	chat       chat.Client
	deliveries repository.DeliveryLog
	locks      *keylock.Locker
	clock      clockwork.Clock
	log        *zap.Logger

	// MaxFanout bounds concurrent deliveries per event; 0 means unbounded.
	MaxFanout int
}

func New(
	subs SubscriberSource,
	cache *digest.Cache,
	client chat.Client,
	deliveries repository.DeliveryLog,
	log *zap.Logger,
) *Engine {
	if deliveries == nil {
		deliveries = repository.NopDeliveryLog{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		subs:       subs,
		cache:      cache,
		chat:       client,
		deliveries: deliveries,
		locks:      keylock.New(),
		clock:      clockwork.NewRealClock(),
		log:        log,
	}
}

// Handle delivers ev to every subscriber of its repository. Deliveries run
// independently; the returned error joins the failures of all of them.
func (g *Engine) Handle(ctx context.Context, ev model.Event) error {
	subs, err := g.subs.Subscribers(ctx, ev.Repository)
	if err != nil {
		return fmt.Errorf("lookup subscribers of %s: %w", ev.Repository, err)
	}
	if len(subs) == 0 {
		g.log.Info("no subscribers, dropping event",
			zap.String("repo", ev.Repository), zap.String("delivery_id", ev.DeliveryID))
		return nil
	}

	p := pool.New().WithErrors().WithContext(ctx)
	if g.MaxFanout > 0 {
		p = p.WithMaxGoroutines(g.MaxFanout)
	}
	for _, s := range subs {
		p.Go(func(ctx context.Context) error {
			return g.deliver(ctx, s, ev)
		})
	}
	return p.Wait()
}

// deliver holds the digest key for the whole upsert/outbound/finalize step,
// so at most one outbound call per key is in flight and summaries keep
// arrival order.
func (g *Engine) deliver(ctx context.Context, s model.Subscriber, ev model.Event) error {
	key := model.NewDigestKey(s, ev.Repository)
	unlock, err := g.locks.LockContext(ctx, key.String())
	if err != nil {
		return fmt.Errorf("digest %s: %w", key, err)
	}
	defer unlock()

	d, err := g.cache.Upsert(ctx, key, ev)
	if err != nil {
		return fmt.Errorf("digest %s: %w", key, err)
	}

	switch d.Kind {
	case digest.Create:
		handle, err := g.chat.Post(ctx, s, postMessage(ev))
		g.record(ctx, key, model.OpPost, handle, 1, err)
		if err != nil {
			g.cache.Abandon(d)
			return fmt.Errorf("%w: post %s: %v", ErrOutboundFailure, key, err)
		}
		g.cache.Finalize(d, handle)

	case digest.Append:
		err := g.chat.Update(ctx, s, d.Handle, digestMessage(ev, d.Summaries))
		g.record(ctx, key, model.OpUpdate, d.Handle, len(d.Summaries), err)
		if err != nil {
			return fmt.Errorf("%w: update %s: %v", ErrOutboundFailure, key, err)
		}
	}
	return nil
}

func (g *Engine) record(ctx context.Context, key model.DigestKey, op model.DeliveryOp, handle string, n int, callErr error) {
	d := model.Delivery{
		ID:         util.New(),
		TeamID:     key.TeamID,
		ChannelID:  key.ChannelID,
		Repository: key.Repository,
		Op:         op,
		Status:     model.DeliveryOK,
		Handle:     handle,
		Summaries:  n,
		CreatedAt:  g.clock.Now().UTC(),
	}
	if callErr != nil {
		d.Status = model.DeliveryFailed
		d.Error = callErr.Error()
		g.log.Warn("outbound call failed",
			zap.String("op", op.String()), zap.String("key", key.String()), zap.Error(callErr))
	} else {
		g.log.Debug("outbound call ok",
			zap.String("op", op.String()), zap.String("key", key.String()), zap.String("handle", handle), zap.Int("summaries", n))
	}
	metrics.OutboundTotal.WithLabelValues(op.String(), d.Status.String()).Inc()

	if err := g.deliveries.Record(context.WithoutCancel(ctx), d); err != nil {
		g.log.Warn("delivery log write failed", zap.String("id", d.ID), zap.Error(err))
	}
}
