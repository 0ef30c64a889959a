package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/okian/skillsync/internal/domain/feed"
	"github.com/okian/skillsync/pkg/logger"
	"github.com/okian/skillsync/pkg/metrics"
)

// notify publishes a committed write. A failed publish is logged but never
// fails the write.
func notify[T feed.Keyed](ctx context.Context, o options, source string, evt feed.ChangeEvent[T]) {
	if o.publisher == nil {
		return
	}
	env, err := feed.Encode(source, uuid.NewString(), evt)
	if err == nil {
		err = o.publisher.Publish(ctx, env)
	}
	if err != nil {
		metrics.RecordErrorByComponent("repository", "publish")
		o.logger.Warn(ctx, "change not published",
			logger.String("feed", source),
			logger.String("key", evt.Key),
			logger.Error(err),
		)
	}
}

func newID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}
