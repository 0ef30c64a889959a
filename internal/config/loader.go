package config

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix     = "SKILLSYNC_"
	envConfigPath = "SKILLSYNC_CONFIG"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New(ctx))
//  2. file (YAML) if SKILLSYNC_CONFIG is set
//  3. env (prefix SKILLSYNC_)
func Load(ctx context.Context) (*Config, error) {
	base := New(ctx)

	k := koanf.New(".")

	if path := os.Getenv(envConfigPath); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// SKILLSYNC_WORKER_COUNT -> worker_count. Keys are flat so underscores stay.
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		return strings.TrimPrefix(strings.ToLower(s), strings.ToLower(envPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}
	// The file path itself is not a setting.
	k.Delete("config")

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks drivers, sizes and the settings each driver needs.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	if !slices.Contains([]string{"text", "json"}, c.LogFormat) {
		return fmt.Errorf("%w: log_format %q", ErrInvalidConfig, c.LogFormat)
	}
	switch c.FeedDriver {
	case FeedMemory:
	case FeedPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("%w: postgres feed needs postgres_dsn", ErrInvalidConfig)
		}
	case FeedRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("%w: redis feed needs redis_addr", ErrInvalidConfig)
		}
	case FeedAMQP:
		if c.AMQPURL == "" {
			return fmt.Errorf("%w: amqp feed needs amqp_url", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown feed_driver %q", ErrInvalidConfig, c.FeedDriver)
	}
	switch c.StoreDriver {
	case StoreMemory:
	case StorePostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("%w: postgres store needs postgres_dsn", ErrInvalidConfig)
		}
	case StoreSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("%w: sqlite store needs sqlite_path", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store_driver %q", ErrInvalidConfig, c.StoreDriver)
	}
	if c.CompletionQueueSize < 1 {
		return fmt.Errorf("%w: completion_queue_size must be positive", ErrInvalidConfig)
	}
	if c.RecommendationLimit < 0 {
		return fmt.Errorf("%w: recommendation_limit must not be negative", ErrInvalidConfig)
	}
	return nil
}
