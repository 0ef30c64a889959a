// Package memory is the in-process change feed: publishers and projections in
// the same binary, one bounded queue and dispatcher goroutine per subscription.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/okian/skillsync/internal/adapters/mq/queue"
	"github.com/okian/skillsync/internal/domain/feed"
	"github.com/okian/skillsync/pkg/logger"
	"github.com/okian/skillsync/pkg/metrics"
)

const defaultSubscriptionCapacity = 256

// ErrClosed is returned by a broker after Close.
var ErrClosed = errors.New("broker closed")

// Compile-time contract assertion.
var _ feed.Bus = (*Broker)(nil)

// Option configures a Broker.
type Option func(*Broker)

// WithSubscriptionCapacity bounds how many envelopes may wait for one
// subscriber before further ones are dropped for it.
func WithSubscriptionCapacity(n int) Option {
	return func(b *Broker) {
		if n > 0 {
			b.capacity = n
		}
	}
}

// WithLogger sets a custom logger for the broker.
func WithLogger(l logger.Logger) Option {
	return func(b *Broker) {
		if l != nil {
			b.logger = l
		}
	}
}

// Broker fans published envelopes out to every subscription of their source.
type Broker struct {
	mu       sync.RWMutex
	subs     map[string]map[uint64]*subscription
	nextID   uint64
	capacity int
	closed   bool
	logger   logger.Logger
}

// NewBroker creates an empty broker.
func NewBroker(opts ...Option) *Broker {
	b := &Broker{
		subs:     make(map[string]map[uint64]*subscription),
		capacity: defaultSubscriptionCapacity,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = logger.Get().Named("feed.memory")
	}
	return b
}

type subscription struct {
	broker *Broker
	id     uint64
	source string
	q      *queue.InMemoryQueue[feed.Envelope]
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Subscribe implements feed.Source. The subscription lives until Unsubscribe
// or Close; ctx only bounds the call.
func (b *Broker) Subscribe(ctx context.Context, source string, h feed.Handler) (feed.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if h == nil {
		return nil, fmt.Errorf("subscribe %q: nil handler", source)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	b.nextID++
	runCtx, cancel := context.WithCancel(context.Background())
	s := &subscription{
		broker: b,
		id:     b.nextID,
		source: source,
		q: queue.NewInMemoryQueue[feed.Envelope](
			queue.WithCapacity(b.capacity),
			queue.WithName(fmt.Sprintf("feed:%s:%d", source, b.nextID)),
		),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	if b.subs[source] == nil {
		b.subs[source] = make(map[uint64]*subscription)
	}
	b.subs[source][s.id] = s

	go s.dispatch(runCtx, h)
	return s, nil
}

func (s *subscription) dispatch(ctx context.Context, h feed.Handler) {
	defer close(s.done)
	for env := range s.q.Dequeue(ctx) {
		h(env)
	}
}

// Unsubscribe implements feed.Subscription. Envelopes still queued are dropped.
func (s *subscription) Unsubscribe() error {
	s.once.Do(func() {
		s.broker.remove(s)
		_ = s.q.Close()
		s.cancel()
	})
	return nil
}

func (b *Broker) remove(s *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs[s.source], s.id)
	if len(b.subs[s.source]) == 0 {
		delete(b.subs, s.source)
	}
}

// Publish implements feed.Publisher. Each subscriber gets its own copy in
// publish order; a subscriber whose queue is full misses the envelope.
func (b *Broker) Publish(ctx context.Context, env feed.Envelope) error {
	if env.Source == "" {
		return fmt.Errorf("%w: envelope without source", feed.ErrMalformedEvent)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}

	for _, s := range b.subs[env.Source] {
		if err := s.q.Enqueue(ctx, env); err != nil {
			metrics.RecordErrorByComponent("feed.memory", "slow_subscriber")
			b.logger.Warn(ctx, "dropping envelope for subscriber",
				logger.String("feed", env.Source),
				logger.String("eventID", env.EventID),
				logger.Error(err),
			)
		}
	}
	metrics.RecordFeedEventPublished(env.Source)
	return nil
}

// Subscribers returns the number of live subscriptions on source.
func (b *Broker) Subscribers(source string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[source])
}

// Close ends every subscription. It is idempotent.
func (b *Broker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	var all []*subscription
	for _, bySource := range b.subs {
		for _, s := range bySource {
			all = append(all, s)
		}
	}
	b.mu.Unlock()

	for _, s := range all {
		_ = s.Unsubscribe()
	}
	return nil
}
