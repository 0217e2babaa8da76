//go:build integration

package lock

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestIntegration_RedisLocker(t *testing.T) {
	client := startRedis(t)
	l, err := NewRedisLocker(client, 2*time.Second)
	require.NoError(t, err)
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "user-1")
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	_, err = l.Lock(waitCtx, "user-1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock2, err := l.Lock(ctx, "user-1")
	require.NoError(t, err)
	unlock2()
}

func TestIntegration_RedisLockerExpiredHolderCannotRelease(t *testing.T) {
	client := startRedis(t)
	l, err := NewRedisLocker(client, 300*time.Millisecond)
	require.NoError(t, err)
	ctx := context.Background()

	stale, err := l.Lock(ctx, "user-2")
	require.NoError(t, err)
	time.Sleep(400 * time.Millisecond)

	fresh, err := l.Lock(ctx, "user-2")
	require.NoError(t, err)
	stale()

	exists, err := client.Exists(ctx, redisKeyPrefix+"user-2").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), exists, "stale holder must not delete the new holder's key")
	fresh()
}
