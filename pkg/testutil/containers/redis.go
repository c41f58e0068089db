//go:build integration

package containers

import (
	"context"
	"sort"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

// RedisContainer is a Redis instance plus a connected client. The Manager
// owns its lifetime; Ryuk reaps it when the test binary exits.
type RedisContainer struct {
	Container testcontainers.Container
	URL       string
	Client    *redis.Client
}

// NewRedisContainer starts redis:7-alpine and connects to it.
func NewRedisContainer(t *testing.T) *RedisContainer {
	t.Helper()
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err, "start redis container")

	rc := &RedisContainer{Container: container}
	abort := func(msg string, err error) {
		if rc.Client != nil {
			_ = rc.Client.Close()
		}
		_ = container.Terminate(ctx)
		require.NoError(t, err, msg)
	}

	if rc.URL, err = container.ConnectionString(ctx); err != nil {
		abort("redis connection string", err)
	}
	opts, err := redis.ParseURL(rc.URL)
	if err != nil {
		abort("parse redis url", err)
	}
	rc.Client = redis.NewClient(opts)
	if err := rc.Client.Ping(ctx).Err(); err != nil {
		abort("ping redis", err)
	}
	return rc
}

// FlushAll empties the keyspace between tests.
func (r *RedisContainer) FlushAll(ctx context.Context) error {
	return r.Client.FlushAll(ctx).Err()
}

// Keys lists the keys matching pattern, sorted.
func (r *RedisContainer) Keys(ctx context.Context, pattern string) ([]string, error) {
	keys, err := r.Client.Keys(ctx, pattern).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}
