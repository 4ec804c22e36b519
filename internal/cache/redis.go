package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"docsync/internal/docsync"
)

const (
	DefaultRedisChannel = "docsync:invalidate"

	// tagKeyPrefix prefixes the per-tag version counters.
	tagKeyPrefix = "cachetag:"
)

// Redis invalidates tags by bumping a version counter per tag and
// publishing the tag list, space separated, on a channel. Renderers keep
// the counters in their cache keys or subscribe to the channel.
type Redis struct {
	client  *redis.Client
	channel string
}

// NewRedis connects to addr and verifies the connection.
func NewRedis(ctx context.Context, addr string, db int, channel string) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisFromClient(client, channel), nil
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(client *redis.Client, channel string) *Redis {
	if channel == "" {
		channel = DefaultRedisChannel
	}
	return &Redis{client: client, channel: channel}
}

func (r *Redis) InvalidateTags(ctx context.Context, tags []string) error {
	if len(tags) == 0 {
		return nil
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, tag := range tags {
			pipe.Incr(ctx, tagKeyPrefix+tag)
		}
		pipe.Publish(ctx, r.channel, strings.Join(tags, " "))
		return nil
	})
	if err != nil {
		return fmt.Errorf("invalidating %d cache tags: %w", len(tags), err)
	}
	return nil
}

// TagVersion returns the current version counter of tag, 0 if never invalidated.
func (r *Redis) TagVersion(ctx context.Context, tag string) (int64, error) {
	v, err := r.client.Get(ctx, tagKeyPrefix+tag).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading cache tag %s: %w", tag, err)
	}
	return v, nil
}

// Close closes the Redis connection.
func (r *Redis) Close() error {
	return r.client.Close()
}

var _ docsync.CacheInvalidator = (*Redis)(nil)
