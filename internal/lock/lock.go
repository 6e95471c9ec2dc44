// Package lock provides short-lived named locks used to keep two expansions
// of the same recurring task from running at the same time.
package lock

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Locker acquires a named lock. ok is false when someone else holds it.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

type RedisLocker struct {
	client *redis.Client
	prefix string
	log    *zap.SugaredLogger
}

func NewRedisLocker(client *redis.Client, prefix string, log *zap.SugaredLogger) *RedisLocker {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &RedisLocker{client: client, prefix: prefix, log: log}
}

// NewRedisClient connects and pings, like the rest of the startup checks.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	token := uuid.NewString()
	full := l.prefix + key
	ok, err := l.client.SetNX(ctx, full, token, ttl).Result()
	if err != nil || !ok {
		return func() {}, false, err
	}
	release := func() {
		// the key expires on its own if this fails
		if err := releaseScript.Run(context.Background(), l.client, []string{full}, token).Err(); err != nil {
			l.log.Warnw("[lock][release][err]", "key", full, "error", err)
		}
	}
	return release, true, nil
}
