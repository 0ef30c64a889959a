// Package amqp carries change envelopes over a RabbitMQ topic exchange. Each
// subscription gets its own exclusive queue bound with the source as routing key.
package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rabbitmq/amqp091-go"

	"github.com/okian/skillsync/internal/domain/feed"
	"github.com/okian/skillsync/pkg/logger"
	"github.com/okian/skillsync/pkg/metrics"
)

// DefaultExchange is the topic exchange used when none is configured.
const DefaultExchange = "skillsync.feed"

// Compile-time contract assertion.
var _ feed.Bus = (*Feed)(nil)

// Option configures a Feed.
type Option func(*Feed)

// WithExchange sets the exchange name.
func WithExchange(name string) Option {
	return func(f *Feed) {
		if name != "" {
			f.exchange = name
		}
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

// Feed implements feed.Bus on one AMQP connection.
type Feed struct {
	conn     *amqp091.Connection
	exchange string
	logger   logger.Logger

	pubMu sync.Mutex
	pubCh *amqp091.Channel
}

// Dial connects to url, opens the publishing channel and declares the exchange.
func Dial(url string, opts ...Option) (*Feed, error) {
	f := &Feed{exchange: DefaultExchange}
	for _, opt := range opts {
		opt(f)
	}
	if f.logger == nil {
		f.logger = logger.Get().Named("feed.amqp")
	}

	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("%w: connect rabbitmq: %w", feed.ErrFeedConnection, err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := f.declareExchange(ch); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	f.conn = conn
	f.pubCh = ch
	return f, nil
}

func (f *Feed) declareExchange(ch *amqp091.Channel) error {
	if err := ch.ExchangeDeclare(
		f.exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("declare exchange %s: %w", f.exchange, err)
	}
	return nil
}

type subscription struct {
	ch   *amqp091.Channel
	once sync.Once
	err  error
}

// Subscribe implements feed.Source.
func (f *Feed) Subscribe(ctx context.Context, source string, h feed.Handler) (feed.Subscription, error) {
	ch, err := f.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	fail := func(err error) (feed.Subscription, error) {
		_ = ch.Close()
		return nil, err
	}

	q, err := ch.QueueDeclare(
		"",    // server-named
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return fail(fmt.Errorf("declare queue: %w", err))
	}
	if err := ch.QueueBind(q.Name, source, f.exchange, false, nil); err != nil {
		return fail(fmt.Errorf("bind queue to %s: %w", source, err))
	}
	deliveries, err := ch.ConsumeWithContext(context.WithoutCancel(ctx),
		q.Name,
		"",    // consumer tag
		true,  // auto-ack
		true,  // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fail(fmt.Errorf("consume %s: %w", q.Name, err))
	}

	go func() {
		for d := range deliveries {
			env, err := feed.UnmarshalEnvelope(d.Body, d.RoutingKey)
			if err != nil {
				metrics.RecordFeedMalformedEvent(source)
				f.logger.Warn(context.Background(), "dropping undecodable delivery",
					logger.String("routingKey", d.RoutingKey),
					logger.Error(err),
				)
				continue
			}
			h(env)
		}
	}()

	f.logger.Debug(ctx, "subscribed", logger.String("queue", q.Name), logger.String("feed", source))
	return &subscription{ch: ch}, nil
}

// Unsubscribe implements feed.Subscription. Closing the channel drops the
// exclusive queue.
func (s *subscription) Unsubscribe() error {
	s.once.Do(func() {
		s.err = s.ch.Close()
	})
	return s.err
}

// Publish implements feed.Publisher.
func (f *Feed) Publish(ctx context.Context, env feed.Envelope) error {
	if env.Source == "" {
		return fmt.Errorf("%w: envelope without source", feed.ErrMalformedEvent)
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}

	f.pubMu.Lock()
	defer f.pubMu.Unlock()
	if err := f.pubCh.PublishWithContext(ctx,
		f.exchange,
		env.Source,
		false, // mandatory
		false, // immediate
		amqp091.Publishing{
			ContentType: "application/json",
			MessageId:   env.EventID,
			Body:        body,
		},
	); err != nil {
		return fmt.Errorf("publish %s: %w", env.Source, err)
	}
	metrics.RecordFeedEventPublished(env.Source)
	return nil
}

// IsConnected reports whether the connection is still open.
func (f *Feed) IsConnected() bool {
	return f.conn != nil && !f.conn.IsClosed()
}

// Close closes the connection and every subscription channel with it.
func (f *Feed) Close() error {
	f.pubMu.Lock()
	defer f.pubMu.Unlock()
	if f.conn == nil || f.conn.IsClosed() {
		return nil
	}
	return f.conn.Close()
}
