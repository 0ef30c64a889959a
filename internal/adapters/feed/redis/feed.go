// Package redis carries change envelopes over Redis pub/sub, one channel per source.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	goredis "github.com/redis/go-redis/v9"

	"github.com/okian/skillsync/internal/domain/feed"
	"github.com/okian/skillsync/pkg/logger"
	"github.com/okian/skillsync/pkg/metrics"
)

const defaultChannelPrefix = "skillsync.feed."

// Compile-time contract assertion.
var _ feed.Bus = (*Feed)(nil)

// Option configures a Feed.
type Option func(*Feed)

// WithChannelPrefix sets the prefix prepended to source names.
func WithChannelPrefix(prefix string) Option {
	return func(f *Feed) {
		f.prefix = prefix
	}
}

// WithLogger sets a custom logger for the feed.
func WithLogger(l logger.Logger) Option {
	return func(f *Feed) {
		if l != nil {
			f.logger = l
		}
	}
}

// Feed implements feed.Bus on a go-redis client.
type Feed struct {
	rdb    *goredis.Client
	prefix string
	logger logger.Logger
}

// NewClient builds the go-redis client from connection settings.
func NewClient(addr, password string, db int) *goredis.Client {
	return goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// New wraps rdb. The feed owns the client and closes it in Close.
func New(rdb *goredis.Client, opts ...Option) *Feed {
	f := &Feed{rdb: rdb, prefix: defaultChannelPrefix}
	for _, opt := range opts {
		opt(f)
	}
	if f.logger == nil {
		f.logger = logger.Get().Named("feed.redis")
	}
	return f
}

// Ping checks the server is reachable.
func (f *Feed) Ping(ctx context.Context) error {
	if err := f.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: redis ping: %w", feed.ErrFeedConnection, err)
	}
	return nil
}

func (f *Feed) channel(source string) string { return f.prefix + source }

type subscription struct {
	ps   *goredis.PubSub
	done chan struct{}
	once sync.Once
	err  error
}

// Subscribe implements feed.Source. It waits for the server to confirm the
// subscription so no envelope published after it returns is missed.
func (f *Feed) Subscribe(ctx context.Context, source string, h feed.Handler) (feed.Subscription, error) {
	ch := f.channel(source)
	ps := f.rdb.Subscribe(ctx, ch)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", ch, err)
	}

	s := &subscription{ps: ps, done: make(chan struct{})}
	go func() {
		defer close(s.done)
		for msg := range ps.Channel() {
			env, err := feed.UnmarshalEnvelope([]byte(msg.Payload), source)
			if err != nil {
				metrics.RecordFeedMalformedEvent(source)
				f.logger.Warn(context.Background(), "dropping undecodable message",
					logger.String("channel", msg.Channel),
					logger.Error(err),
				)
				continue
			}
			h(env)
		}
	}()

	f.logger.Debug(ctx, "subscribed", logger.String("channel", ch))
	return s, nil
}

// Unsubscribe implements feed.Subscription.
func (s *subscription) Unsubscribe() error {
	s.once.Do(func() {
		s.err = s.ps.Close()
	})
	return s.err
}

// Publish implements feed.Publisher.
func (f *Feed) Publish(ctx context.Context, env feed.Envelope) error {
	if env.Source == "" {
		return fmt.Errorf("%w: envelope without source", feed.ErrMalformedEvent)
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := f.rdb.Publish(ctx, f.channel(env.Source), data).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", f.channel(env.Source), err)
	}
	metrics.RecordFeedEventPublished(env.Source)
	return nil
}

// Client exposes the client so other components (the deduper) can share it.
func (f *Feed) Client() *goredis.Client { return f.rdb }

// Close closes the client and with it every subscription.
func (f *Feed) Close() error {
	return f.rdb.Close()
}
