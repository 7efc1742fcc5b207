package lock_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/claims-engine/internal/infrastructure/lock"
)

// Requiere un Redis real: CLAIMS_TEST_REDIS_ADDR=localhost:6379 go test ./...
func clienteRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("CLAIMS_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("CLAIMS_TEST_REDIS_ADDR no definido")
	}
	c := redis.NewClient(&redis.Options{Addr: addr})
	require.NoError(t, c.Ping(context.Background()).Err())
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestRedisLocker_ExclusionYLiberacion(t *testing.T) {
	c := clienteRedis(t)
	l := lock.NewRedisLocker(c, time.Second)
	key := "test:" + t.Name()

	unlock, err := l.Lock(context.Background(), key)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, key)
	assert.ErrorIs(t, err, context.DeadlineExceeded, "la clave está tomada")

	unlock()
	unlock()

	again, err := l.Lock(context.Background(), key)
	require.NoError(t, err)
	again()
}

func TestRedisLocker_ExpiraPorTTL(t *testing.T) {
	c := clienteRedis(t)
	l := lock.NewRedisLocker(c, 100*time.Millisecond)
	key := "test:" + t.Name()

	_, err := l.Lock(context.Background(), key)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlock, err := l.Lock(ctx, key)
	require.NoError(t, err, "el lock huérfano vence por TTL")
	unlock()
}
