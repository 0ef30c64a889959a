package service

import (
	"github.com/okian/skillsync/internal/adapters/repository"
	"github.com/okian/skillsync/internal/domain/dedupe"
	"github.com/okian/skillsync/internal/domain/feed"
	"github.com/okian/skillsync/internal/domain/roles"
	"github.com/okian/skillsync/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of completion workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the completion queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many event ids the default deduper remembers.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithRecommendationLimit sets the default number of recommended projects.
func WithRecommendationLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.recommendationLimit = n
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithFeedSource sets the change feed user views subscribe to. When the
// source can also publish it becomes the default publisher.
func WithFeedSource(src feed.Source) Option {
	return func(s *Service) {
		s.source = src
		if p, ok := src.(feed.Publisher); ok && s.publisher == nil {
			s.publisher = p
		}
	}
}

// WithPublisher sets where Publish sends envelopes.
func WithPublisher(p feed.Publisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

// WithStore sets the skill and project store.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		s.store = store
	}
}

// WithRoleCatalog sets the roles gaps and timelines are computed against.
func WithRoleCatalog(c *roles.Catalog) Option {
	return func(s *Service) {
		s.catalog = c
	}
}

// WithDeduper replaces the in-memory event id deduper.
func WithDeduper(d dedupe.Deduper) Option {
	return func(s *Service) {
		s.deduper = d
	}
}
