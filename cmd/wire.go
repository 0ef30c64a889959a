package main

import (
	"context"
	"errors"
	"fmt"

	amqpfeed "github.com/okian/skillsync/internal/adapters/feed/amqp"
	memoryfeed "github.com/okian/skillsync/internal/adapters/feed/memory"
	pgfeed "github.com/okian/skillsync/internal/adapters/feed/postgres"
	redisfeed "github.com/okian/skillsync/internal/adapters/feed/redis"
	"github.com/okian/skillsync/internal/adapters/repository"
	app "github.com/okian/skillsync/internal/app"
	"github.com/okian/skillsync/internal/config"
	"github.com/okian/skillsync/internal/domain/dedupe"
	"github.com/okian/skillsync/internal/domain/feed"
	"github.com/okian/skillsync/internal/domain/roles"
	"github.com/okian/skillsync/pkg/logger"
)

// backends are the feed, store and deduper selected by configuration.
type backends struct {
	bus     feed.Bus
	store   repository.Store
	deduper dedupe.Deduper
}

// Close releases the store first so no write publishes into a closed feed.
func (b *backends) Close() error {
	var errs []error
	if b.store != nil {
		errs = append(errs, b.store.Close())
	}
	if b.bus != nil {
		errs = append(errs, b.bus.Close())
	}
	return errors.Join(errs...)
}

// buildBackends connects the configured feed and store. Store writes are
// published into the feed so live views follow them.
func buildBackends(ctx context.Context, cfg *config.Config, lg logger.Logger) (_ *backends, err error) {
	b := &backends{}
	defer func() {
		if err != nil {
			_ = b.Close()
		}
	}()

	switch cfg.FeedDriver {
	case config.FeedPostgres:
		var pf *pgfeed.Feed
		if pf, err = pgfeed.Connect(ctx, cfg.PostgresDSN, pgfeed.WithLogger(lg.Named("feed.postgres"))); err == nil {
			b.bus = pf
		}
	case config.FeedRedis:
		rf := redisfeed.New(redisfeed.NewClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB),
			redisfeed.WithLogger(lg.Named("feed.redis")))
		b.bus = rf
		if err = rf.Ping(ctx); err == nil {
			b.deduper = dedupe.NewRedisDeduper(rf.Client())
		}
	case config.FeedAMQP:
		var af *amqpfeed.Feed
		if af, err = amqpfeed.Dial(cfg.AMQPURL,
			amqpfeed.WithExchange(cfg.AMQPExchange),
			amqpfeed.WithLogger(lg.Named("feed.amqp"))); err == nil {
			b.bus = af
		}
	default:
		b.bus = memoryfeed.NewBroker(memoryfeed.WithLogger(lg.Named("feed.memory")))
	}
	if err != nil {
		return nil, fmt.Errorf("connect %s feed: %w", cfg.FeedDriver, err)
	}

	storeOpts := []repository.Option{
		repository.WithPublisher(b.bus),
		repository.WithLogger(lg.Named("repository")),
	}
	switch cfg.StoreDriver {
	case config.StorePostgres:
		var ps *repository.PostgresStore
		if ps, err = repository.NewPostgresStore(ctx, cfg.PostgresDSN, storeOpts...); err == nil {
			b.store = ps
		}
	case config.StoreSQLite:
		var ss *repository.SQLiteStore
		if ss, err = repository.NewSQLiteStore(ctx, cfg.SQLitePath, storeOpts...); err == nil {
			b.store = ss
		}
	default:
		b.store = repository.NewMemoryStore(storeOpts...)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.StoreDriver, err)
	}

	if b.deduper == nil {
		b.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(cfg.DedupeSize))
	}
	return b, nil
}

// newService builds the service over the selected backends.
func newService(cfg *config.Config, b *backends, lg logger.Logger) (*app.Service, error) {
	roleList := cfg.Roles
	if len(roleList) == 0 {
		roleList = roles.Default()
	}
	catalog, err := roles.NewCatalog(roleList...)
	if err != nil {
		return nil, fmt.Errorf("role catalog: %w", err)
	}

	return app.New(
		app.WithLogger(lg),
		app.WithFeedSource(b.bus),
		app.WithStore(b.store),
		app.WithDeduper(b.deduper),
		app.WithRoleCatalog(catalog),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithQueueSize(cfg.CompletionQueueSize),
		app.WithDedupeSize(cfg.DedupeSize),
		app.WithRecommendationLimit(cfg.RecommendationLimit),
	), nil
}
