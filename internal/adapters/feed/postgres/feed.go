// Package postgres carries change envelopes over LISTEN/NOTIFY. Each
// subscription holds one pooled connection listening on the source channel.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okian/skillsync/internal/domain/feed"
	"github.com/okian/skillsync/pkg/logger"
	"github.com/okian/skillsync/pkg/metrics"
)

const (
	defaultChannelPrefix = "skillsync_feed_"
	// NOTIFY payloads are capped by the server at just under 8000 bytes.
	maxPayloadBytes = 7999
	unlistenTimeout = 2 * time.Second
)

// ErrPayloadTooLarge reports an envelope NOTIFY cannot carry.
var ErrPayloadTooLarge = errors.New("envelope exceeds notify payload limit")

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

// Feed implements feed.Bus on a pgx pool.
type Feed struct {
	pool     *pgxpool.Pool
	ownsPool bool
	prefix   string
	logger   logger.Logger
}

// New uses an existing pool, typically the store's. Close leaves it open.
func New(pool *pgxpool.Pool, opts ...Option) *Feed {
	f := &Feed{pool: pool, prefix: defaultChannelPrefix}
	for _, opt := range opts {
		opt(f)
	}
	if f.logger == nil {
		f.logger = logger.Get().Named("feed.postgres")
	}
	return f
}

// Connect opens a pool of its own for dsn.
func Connect(ctx context.Context, dsn string, opts ...Option) (*Feed, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: connect postgres: %w", feed.ErrFeedConnection, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: ping postgres: %w", feed.ErrFeedConnection, err)
	}
	f := New(pool, opts...)
	f.ownsPool = true
	return f, nil
}

func (f *Feed) channel(source string) string { return f.prefix + source }

type subscription struct {
	conn   *pgxpool.Conn
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Subscribe implements feed.Source.
func (f *Feed) Subscribe(ctx context.Context, source string, h feed.Handler) (feed.Subscription, error) {
	conn, err := f.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	ch := f.channel(source)
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{ch}.Sanitize()); err != nil {
		conn.Release()
		return nil, fmt.Errorf("listen %s: %w", ch, err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s := &subscription{conn: conn, cancel: cancel, done: make(chan struct{})}
	go f.listen(runCtx, s, source, h)

	f.logger.Debug(ctx, "listening", logger.String("channel", ch))
	return s, nil
}

func (f *Feed) listen(ctx context.Context, s *subscription, source string, h feed.Handler) {
	defer close(s.done)
	for {
		n, err := s.conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() == nil {
				metrics.RecordErrorByComponent("feed.postgres", "listen")
				f.logger.Error(ctx, "listen loop stopped", logger.String("feed", source), logger.Error(err))
			}
			return
		}
		env, err := feed.UnmarshalEnvelope([]byte(n.Payload), source)
		if err != nil {
			metrics.RecordFeedMalformedEvent(source)
			f.logger.Warn(ctx, "dropping undecodable notification",
				logger.String("channel", n.Channel),
				logger.Error(err),
			)
			continue
		}
		h(env)
	}
}

// Unsubscribe implements feed.Subscription. It stops the listen loop, drops
// the LISTEN and returns the connection to the pool.
func (s *subscription) Unsubscribe() error {
	s.once.Do(func() {
		s.cancel()
		<-s.done
		ctx, cancel := context.WithTimeout(context.Background(), unlistenTimeout)
		defer cancel()
		if !s.conn.Conn().IsClosed() {
			_, _ = s.conn.Exec(ctx, "UNLISTEN *")
		}
		s.conn.Release()
	})
	return nil
}

// Publish implements feed.Publisher with pg_notify.
func (f *Feed) Publish(ctx context.Context, env feed.Envelope) error {
	if env.Source == "" {
		return fmt.Errorf("%w: envelope without source", feed.ErrMalformedEvent)
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if len(payload) > maxPayloadBytes {
		return fmt.Errorf("%s: %w (%d bytes)", env.Source, ErrPayloadTooLarge, len(payload))
	}
	if _, err := f.pool.Exec(ctx, "SELECT pg_notify($1, $2)", f.channel(env.Source), string(payload)); err != nil {
		return fmt.Errorf("notify %s: %w", f.channel(env.Source), err)
	}
	metrics.RecordFeedEventPublished(env.Source)
	return nil
}

// Close closes the pool when the feed opened it.
func (f *Feed) Close() error {
	if f.ownsPool {
		f.pool.Close()
	}
	return nil
}
