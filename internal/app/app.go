// Package app assembles the relay from configuration. serve, the ingest
// worker and the links admin commands all build on it.
package app

import (
	"errors"
	"fmt"

	"github.com/jmehdipour/repo-digest/internal/aggregator"
	"github.com/jmehdipour/repo-digest/internal/chat"
	"github.com/jmehdipour/repo-digest/internal/config"
	"github.com/jmehdipour/repo-digest/internal/db"
	"github.com/jmehdipour/repo-digest/internal/digest"
	"github.com/jmehdipour/repo-digest/internal/kafka"
	"github.com/jmehdipour/repo-digest/internal/metrics"
	"github.com/jmehdipour/repo-digest/internal/relay"
	"github.com/jmehdipour/repo-digest/internal/repository"
	"github.com/jmehdipour/repo-digest/internal/subscription"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

type App struct {
	Config     config.Config
	Index      *subscription.Index
	Cache      *digest.Cache
	Engine     *aggregator.Engine
	Service    *relay.Service
	Deliveries repository.DeliveryLog

	closers []func() error
}

type Options struct {
	// Publish queues webhooks on Kafka when kafka.enabled is set.
	Publish bool
}

// Build opens the configured backends and wires the components together.
// Whatever was opened before a failure is closed again.
func Build(cfg config.Config, lg *zap.Logger, opts Options) (_ *App, err error) {
	if lg == nil {
		lg = zap.NewNop()
	}
	a := &App{Config: cfg}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	store, err := a.openStore(cfg)
	if err != nil {
		return nil, err
	}

	a.Deliveries = repository.NopDeliveryLog{}
	if cfg.ClickHouse.Enabled {
		ch, err := db.NewClickHouseConnection(cfg.ClickHouse.DatabaseConfig)
		if err != nil {
			return nil, fmt.Errorf("clickhouse connect: %w", err)
		}
		a.closers = append(a.closers, ch.Close)
		a.Deliveries = repository.NewCHDeliveryLog(ch)
	}

	a.Index = subscription.NewIndex(store, lg.Named("index"))

	a.Cache = digest.New(cfg.Digest.TTL,
		digest.WithLogger(lg.Named("digest")),
		digest.WithGauge(metrics.DigestsOpen),
	)
	a.closers = append(a.closers, func() error { a.Cache.Close(); return nil })

	slack := chat.NewSlackClient(
		cfg.Slack.BaseURL,
		cfg.Slack.TimeoutMs,
		cfg.Slack.Breaker.FailThreshold,
		cfg.Slack.Breaker.OpenForMs,
		clockwork.NewRealClock(),
	)

	a.Engine = aggregator.New(a.Index, a.Cache, slack, a.Deliveries, lg.Named("engine"))
	a.Engine.MaxFanout = cfg.Digest.MaxFanout

	svcOpts := []relay.Option{relay.WithLogger(lg.Named("relay"))}
	if opts.Publish && cfg.Kafka.Enabled {
		p := kafka.NewProducer(cfg.Kafka)
		a.closers = append(a.closers, p.Close)
		svcOpts = append(svcOpts, relay.WithPublisher(p))
	}
	a.Service = relay.New(a.Index, a.Engine, svcOpts...)

	return a, nil
}

func (a *App) openStore(cfg config.Config) (repository.Store, error) {
	switch cfg.Store.Driver {
	case config.StoreRedis, "":
		rdb, err := db.NewRedisClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("redis connect: %w", err)
		}
		a.closers = append(a.closers, rdb.Close)
		return repository.NewRedisStore(rdb, cfg.Redis.KeyPrefix, cfg.Redis.MaxRetries), nil
	case config.StoreMySQL:
		sqlDB, err := db.NewMySQLConnection(cfg.MySQL)
		if err != nil {
			return nil, fmt.Errorf("mysql connect: %w", err)
		}
		a.closers = append(a.closers, sqlDB.Close)
		return repository.NewMySQLStore(sqlDB), nil
	case config.StoreMemory:
		return repository.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
