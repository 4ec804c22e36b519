package cache

import (
	"context"
	"fmt"

	"docsync/internal/config"
	"docsync/internal/docsync"
)

// NewFromConfig creates a CacheInvalidator based on the cache config type.
// The returned close function releases any connection and is never nil.
func NewFromConfig(ctx context.Context, cfg config.CacheConfig) (docsync.CacheInvalidator, func() error, error) {
	noClose := func() error { return nil }
	switch cfg.Type {
	case "", "none":
		return Nop{}, noClose, nil
	case "memory":
		return NewMemory(), noClose, nil
	case "redis":
		if cfg.RedisAddr == "" {
			return nil, nil, fmt.Errorf("redis cache requires redis_addr to be set")
		}
		r, err := NewRedis(ctx, cfg.RedisAddr, cfg.RedisDB, cfg.RedisChannel)
		if err != nil {
			return nil, nil, err
		}
		return r, r.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache type: %s", cfg.Type)
	}
}
