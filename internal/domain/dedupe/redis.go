package dedupe

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/skillsync/pkg/logger"
)

const (
	defaultRedisTTL    = 24 * time.Hour
	defaultRedisPrefix = "skillsync:dedupe:"
)

// RedisDeduper shares the seen set between replicas with SET NX and a TTL.
// When Redis is unreachable it lets the event through.
type RedisDeduper struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	prefix string
	logger logger.Logger
	size   atomic.Int64
}

// RedisOption configures a RedisDeduper.
type RedisOption func(*RedisDeduper)

// WithTTL sets how long an id is remembered.
func WithTTL(ttl time.Duration) RedisOption {
	return func(d *RedisDeduper) {
		if ttl > 0 {
			d.ttl = ttl
		}
	}
}

// WithKeyPrefix namespaces the keys.
func WithKeyPrefix(prefix string) RedisOption {
	return func(d *RedisDeduper) {
		d.prefix = prefix
	}
}

// NewRedisDeduper creates a deduper backed by rdb.
func NewRedisDeduper(rdb redis.Cmdable, opts ...RedisOption) *RedisDeduper {
	d := &RedisDeduper{
		rdb:    rdb,
		ttl:    defaultRedisTTL,
		prefix: defaultRedisPrefix,
		logger: logger.Get().Named("dedupe"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SeenAndRecord implements Deduper.
func (d *RedisDeduper) SeenAndRecord(ctx context.Context, id string) bool {
	ok, err := d.rdb.SetNX(ctx, d.prefix+id, 1, d.ttl).Result()
	if err != nil {
		d.logger.Warn(ctx, "redis dedupe check failed, allowing event",
			logger.String("eventID", id),
			logger.Error(err),
		)
		return false
	}
	if ok {
		d.size.Add(1)
	}
	return !ok
}

// Unrecord implements Deduper.
func (d *RedisDeduper) Unrecord(ctx context.Context, id string) {
	n, err := d.rdb.Del(ctx, d.prefix+id).Result()
	if err != nil {
		d.logger.Warn(ctx, "redis dedupe unrecord failed", logger.String("eventID", id), logger.Error(err))
		return
	}
	d.size.Add(-n)
}

// Size returns the ids recorded by this process; keys expire on the server
// without notice so it is an upper bound.
func (d *RedisDeduper) Size() int64 {
	return d.size.Load()
}
