// Package service wires the change feed, the stores and the skill gap engine
// into the operations the HTTP API exposes.
package service

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/google/uuid"

	memoryfeed "github.com/okian/skillsync/internal/adapters/feed/memory"
	eventqueue "github.com/okian/skillsync/internal/adapters/mq/queue"
	workerpool "github.com/okian/skillsync/internal/adapters/mq/worker"
	"github.com/okian/skillsync/internal/adapters/repository"
	"github.com/okian/skillsync/internal/domain/dedupe"
	"github.com/okian/skillsync/internal/domain/feed"
	"github.com/okian/skillsync/internal/domain/model"
	"github.com/okian/skillsync/internal/domain/roles"
	"github.com/okian/skillsync/internal/domain/types"
	"github.com/okian/skillsync/pkg/logger"
	"github.com/okian/skillsync/pkg/metrics"
)

const completionQueueName = "completion"

// Service implements the API dependencies for skill tracking.
type Service struct {
	mu sync.RWMutex

	// Collaborators, defaulted in Start when not injected.
	store     repository.Store
	source    feed.Source
	publisher feed.Publisher
	catalog   *roles.Catalog
	deduper   dedupe.Deduper

	// Owned resources closed by Stop.
	ownedBroker *memoryfeed.Broker
	ownedStore  repository.Store

	queue *eventqueue.InMemoryQueue[model.CompletionJob]
	pool  *workerpool.Pool

	// Configuration
	workerCount         int
	queueSize           int
	dedupeSize          int
	recommendationLimit int

	views map[string]*userView

	started bool
	logger  logger.Logger
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:         runtime.NumCPU(),
		queueSize:           1024,
		dedupeSize:          50_000,
		recommendationLimit: 3,
		views:               make(map[string]*userView),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start fills in missing collaborators and starts the completion workers.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	s.logger.Info(ctx, "starting skillsync service...")

	if s.source == nil {
		s.ownedBroker = memoryfeed.NewBroker()
		s.source = s.ownedBroker
		if s.publisher == nil {
			s.publisher = s.ownedBroker
		}
		s.logger.Info(ctx, "using in-process change feed")
	}
	if s.store == nil {
		s.ownedStore = repository.NewMemoryStore(repository.WithPublisher(s.publisher))
		s.store = s.ownedStore
		s.logger.Info(ctx, "using in-memory store")
	}
	if s.catalog == nil {
		catalog, err := roles.NewCatalog(roles.Default()...)
		if err != nil {
			return fmt.Errorf("default roles: %w", err)
		}
		s.catalog = catalog
	}
	if s.deduper == nil {
		s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	}

	s.queue = eventqueue.NewInMemoryQueue[model.CompletionJob](
		eventqueue.WithCapacity(s.queueSize),
		eventqueue.WithName(completionQueueName),
	)
	s.pool = workerpool.NewPool(s.workerCount, s.queue, &completionProcessor{
		store:  s.store,
		logger: s.logger.Named("completion"),
	})
	s.pool.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "skillsync service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("roles", len(s.catalog.Names())),
	)

	return nil
}

// Stop closes every user view, drains the completion queue and releases the
// resources the service created itself. It is idempotent.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx := context.Background()
	s.logger.Info(ctx, "stopping skillsync service...")

	for userID, v := range s.views {
		if err := v.close(); err != nil {
			s.logger.Warn(ctx, "closing user view", logger.String("userID", userID), logger.Error(err))
		}
		delete(s.views, userID)
	}

	if s.pool != nil {
		if err := s.pool.Shutdown(ctx); err != nil {
			s.logger.Error(ctx, "completion workers did not drain", logger.Error(err))
		}
	}

	if s.ownedStore != nil {
		_ = s.ownedStore.Close()
		s.store, s.ownedStore = nil, nil
	}
	if s.ownedBroker != nil {
		_ = s.ownedBroker.Close()
		if s.publisher == feed.Publisher(s.ownedBroker) {
			s.publisher = nil
		}
		s.source, s.ownedBroker = nil, nil
	}

	s.started = false
	s.logger.Info(ctx, "skillsync service stopped")
}

// Store returns the store the service reads and writes.
func (s *Service) Store() repository.Store {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store
}

// Roles returns the names of the known roles.
func (s *Service) Roles() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.catalog == nil {
		return nil
	}
	return s.catalog.Names()
}

// Publish pushes an envelope into the change feed. An envelope whose event id
// was already published is acknowledged without being sent again; a missing
// id is generated.
func (s *Service) Publish(ctx context.Context, env feed.Envelope) (types.PublishResult, error) {
	s.mu.RLock()
	started, publisher, deduper := s.started, s.publisher, s.deduper
	s.mu.RUnlock()

	if !started || publisher == nil {
		return types.PublishResult{}, ErrNotStarted
	}
	if !isKnownSource(env.Source) {
		return types.PublishResult{}, fmt.Errorf("%w: %q", ErrUnknownSource, env.Source)
	}
	kind, err := feed.ParseKind(string(env.Kind))
	if err != nil {
		return types.PublishResult{}, fmt.Errorf("%w: %v", feed.ErrMalformedEvent, err)
	}
	env.Kind = kind
	if env.EventID == "" {
		env.EventID = uuid.NewString()
	}

	if deduper.SeenAndRecord(ctx, env.EventID) {
		metrics.RecordFeedDuplicate()
		s.logger.Debug(ctx, "duplicate event, skipping",
			logger.String("eventID", env.EventID),
			logger.String("feed", env.Source),
		)
		return types.PublishResult{EventID: env.EventID, Duplicate: true}, nil
	}

	if err := publisher.Publish(ctx, env); err != nil {
		// Let a retry with the same id through.
		deduper.Unrecord(ctx, env.EventID)
		metrics.RecordErrorByComponent("service", "publish")
		return types.PublishResult{}, fmt.Errorf("publish %s event: %w", env.Source, err)
	}
	return types.PublishResult{EventID: env.EventID}, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":             s.started,
		"workerCount":         s.workerCount,
		"queueSize":           s.queueSize,
		"dedupeSize":          s.dedupeSize,
		"recommendationLimit": s.recommendationLimit,
		"watchedUsers":        len(s.views),
	}

	if s.started {
		queueLen := s.queue.Len()
		stats["queueLength"] = queueLen
		stats["completionsProcessed"] = s.pool.Processed()
		stats["completionsFailed"] = s.pool.Failed()
		stats["seenEvents"] = s.deduper.Size()
		stats["roles"] = len(s.catalog.Names())

		metrics.UpdateQueueSize(completionQueueName, queueLen)
	}

	return stats
}

func (s *Service) requireStarted() error {
	if !s.started {
		return ErrNotStarted
	}
	return nil
}

func isKnownSource(source string) bool {
	switch source {
	case model.SourceSkills, model.SourceProjects, model.SourceMessages, model.SourceNotifications:
		return true
	}
	return false
}

func requireUser(userID string) error {
	if userID == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidArgument)
	}
	return nil
}
