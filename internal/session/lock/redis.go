package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	redisKeyPrefix  = "sessiontrust:lock:"
	redisRetryDelay = 20 * time.Millisecond
)

// Only the holder's token may delete the key, so a lock that expired and was re-acquired by
// another process is never released by the late original holder.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// ErrLockTTL is returned when the lock TTL is not positive.
var ErrLockTTL = errors.New("lock: ttl must be positive")

// RedisLocker is a distributed per-key lock (SET NX PX) for multi-instance deployments.
// The TTL bounds how long a crashed holder can block other instances.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisLocker(client *redis.Client, ttl time.Duration) (*RedisLocker, error) {
	if ttl <= 0 {
		return nil, ErrLockTTL
	}
	return &RedisLocker{client: client, ttl: ttl}, nil
}

// Lock polls until the key is acquired or ctx is done.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	token, err := randomToken()
	if err != nil {
		return nil, err
	}
	redisKey := redisKeyPrefix + key
	ticker := time.NewTicker(redisRetryDelay)
	defer ticker.Stop()
	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return nil, err
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
	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, l.client, []string{redisKey}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			log.Warn().Err(err).Str("key", key).Msg("redis lock release failed; key will expire")
		}
	}, nil
}

func randomToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
