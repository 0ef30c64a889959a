package repository

import (
	"github.com/okian/skillsync/internal/domain/feed"
	"github.com/okian/skillsync/pkg/logger"
)

type options struct {
	publisher feed.Publisher
	logger    logger.Logger
}

// Option applies a configuration option to a store.
type Option func(*options)

// WithPublisher publishes a change envelope for every successful write, so
// live projections see the change.
func WithPublisher(p feed.Publisher) Option {
	return func(o *options) {
		o.publisher = p
	}
}

// WithLogger sets a custom logger for the store.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func buildOptions(name string, opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.Get().Named(name)
	}
	return o
}
