package feed

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/okian/skillsync/pkg/logger"
	"github.com/okian/skillsync/pkg/metrics"
)

// Reasons an event leaves the view untouched, used as metric labels.
const (
	reasonFiltered   = "filtered"
	reasonUnknownKey = "unknown_key"
	reasonClosed     = "closed"
)

// Option configures a Projection.
type Option[T Keyed] func(*Projection[T])

// WithFilter restricts the view to records matching pred.
func WithFilter[T Keyed](pred func(T) bool) Option[T] {
	return func(p *Projection[T]) {
		p.filter = pred
	}
}

// WithLogger sets a custom logger for the projection.
func WithLogger[T Keyed](l logger.Logger) Option[T] {
	return func(p *Projection[T]) {
		if l != nil {
			p.logger = l
		}
	}
}

// Projection is a live, filtered mirror of one remote collection.
//
// INSERT appends, UPDATE replaces the first record with the same key in place
// and DELETE removes it. Untouched records keep their relative order. Inserts
// are not deduplicated by key.
type Projection[T Keyed] struct {
	mu     sync.Mutex
	source string
	items  []T
	filter func(T) bool
	sub    Subscription
	closed bool
	logger logger.Logger
}

// Open seeds a projection with initial and subscribes it to sourceName.
//
// When the subscription cannot be established the returned error wraps
// ErrFeedConnection and the projection is still returned holding initial,
// so callers can defer Close unconditionally.
func Open[T Keyed](ctx context.Context, src Source, sourceName string, initial []T, opts ...Option[T]) (*Projection[T], error) {
	p := &Projection[T]{
		source: sourceName,
		items:  slices.Clone(initial),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logger.Get().Named("projection")
	}

	if src == nil {
		metrics.RecordFeedSubscribeError(sourceName)
		return p, fmt.Errorf("%w: no source for %q", ErrFeedConnection, sourceName)
	}

	sub, err := src.Subscribe(ctx, sourceName, p.handle)
	if err != nil {
		metrics.RecordFeedSubscribeError(sourceName)
		p.logger.Error(ctx, "subscribe failed", logger.String("feed", sourceName), logger.Error(err))
		return p, fmt.Errorf("%w: subscribe %q: %w", ErrFeedConnection, sourceName, err)
	}

	p.mu.Lock()
	p.sub = sub
	p.mu.Unlock()

	metrics.IncOpenProjections()
	p.logger.Debug(ctx, "projection opened",
		logger.String("feed", sourceName),
		logger.Int("initial", len(initial)),
	)
	return p, nil
}

// Source returns the feed name the projection follows.
func (p *Projection[T]) Source() string { return p.source }

// Snapshot returns a copy of the current records.
func (p *Projection[T]) Snapshot() []T {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.items)
}

// Len returns the number of records in the view.
func (p *Projection[T]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items)
}

// Replace overwrites the view. It is ignored once the projection is closed.
func (p *Projection[T]) Replace(data []T) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.items = slices.Clone(data)
}

// Closed reports whether Close was called.
func (p *Projection[T]) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Close releases the subscription and freezes the snapshot. It is idempotent.
func (p *Projection[T]) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	sub := p.sub
	p.sub = nil
	p.mu.Unlock()

	if sub == nil {
		return nil
	}
	metrics.DecOpenProjections()
	// Unsubscribe outside the lock: a source may wait for an in-flight delivery.
	if err := sub.Unsubscribe(); err != nil {
		return fmt.Errorf("unsubscribe %q: %w", p.source, err)
	}
	return nil
}

// Apply runs one typed event through the reducer and reports whether the
// view changed.
func (p *Projection[T]) Apply(evt ChangeEvent[T]) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		metrics.RecordFeedEventIgnored(p.source, reasonClosed)
		return false
	}
	return p.applyLocked(evt)
}

// handle is the feed callback: decode, then apply. Bad envelopes are dropped.
func (p *Projection[T]) handle(env Envelope) {
	evt, err := Decode[T](env)
	if err != nil {
		metrics.RecordFeedMalformedEvent(p.source)
		p.logger.Warn(context.Background(), "ignoring change event",
			logger.String("feed", p.source),
			logger.String("eventID", env.EventID),
			logger.Error(err),
		)
		return
	}
	p.Apply(evt)
}

func (p *Projection[T]) applyLocked(evt ChangeEvent[T]) bool {
	switch evt.Kind {
	case KindInsert:
		if !p.matches(evt.Record) {
			return false
		}
		p.items = append(p.items, evt.Record)
	case KindUpdate:
		if !p.matches(evt.Record) {
			return false
		}
		i := p.indexOf(evt.Record.Key())
		if i < 0 {
			metrics.RecordFeedEventIgnored(p.source, reasonUnknownKey)
			return false
		}
		p.items[i] = evt.Record
	case KindDelete:
		// A delete carries only a key; anything in the view already passed the filter.
		i := p.indexOf(evt.Key)
		if i < 0 {
			metrics.RecordFeedEventIgnored(p.source, reasonUnknownKey)
			return false
		}
		p.items = slices.Delete(p.items, i, i+1)
	default:
		metrics.RecordFeedMalformedEvent(p.source)
		return false
	}
	metrics.RecordFeedEventApplied(p.source, string(evt.Kind))
	return true
}

func (p *Projection[T]) matches(rec T) bool {
	if p.filter == nil || p.filter(rec) {
		return true
	}
	metrics.RecordFeedEventIgnored(p.source, reasonFiltered)
	return false
}

func (p *Projection[T]) indexOf(key string) int {
	for i := range p.items {
		if p.items[i].Key() == key {
			return i
		}
	}
	return -1
}
