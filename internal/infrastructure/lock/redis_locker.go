// Package lock implementa el locker distribuido por entidad sobre Redis.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jhoicas/claims-engine/pkg/config"
)

const (
	keyPrefix     = "claims:lock:"
	DefaultTTL    = 2 * time.Minute
	retryInterval = 50 * time.Millisecond
)

// releaseScript borra la clave solo si el token sigue siendo el del dueño.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisLocker exclusión mutua entre instancias con SET NX PX y liberación por token.
// El TTL acota cuánto sobrevive un lock si el dueño muere sin liberarlo.
type RedisLocker struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisClient abre el cliente y verifica la conexión. Devuelve nil, nil si no hay Addr.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// NewRedisLocker construye el locker; ttl <= 0 usa DefaultTTL.
func NewRedisLocker(client redis.UniversalClient, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisLocker{client: client, ttl: ttl}
}

// Lock reintenta SET NX hasta obtener la clave o que el contexto termine.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := keyPrefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(retryInterval)
	defer ticker.Stop()
	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("adquirir lock %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true
		// La liberación no depende del contexto del llamador, que puede estar cancelado.
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = releaseScript.Run(rctx, l.client, []string{redisKey}, token).Err()
	}, nil
}
