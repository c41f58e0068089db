// Package cache invalidates cached reference records after a suggestion
// changes them, so readers never serve a value the store no longer holds.
package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"refkb/internal/suggestion/models"
)

const defaultPrefix = "refkb"

// Deleter is the slice of the Redis client the invalidator needs.
type Deleter interface {
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Invalidator deletes the cache entry of every record a suggestion touched.
type Invalidator struct {
	client Deleter
	prefix string
}

// New builds an Invalidator. An empty prefix falls back to "refkb".
func New(client Deleter, prefix string) *Invalidator {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Invalidator{client: client, prefix: prefix}
}

func (i *Invalidator) Name() string { return "redis" }

// Key returns the cache key the read side uses for a record.
func (i *Invalidator) Key(target, slug string) string {
	return fmt.Sprintf("%s:reference:%s:%s", i.prefix, target, slug)
}

// Notify drops the cached copy of the changed record.
func (i *Invalidator) Notify(ctx context.Context, event models.ChangeEvent) error {
	key := i.Key(string(event.Target), event.Slug)
	if err := i.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("invalidate %s: %w", key, err)
	}
	return nil
}
