package locker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultTTL     = 5 * time.Minute
	defaultRetry   = 50 * time.Millisecond
	defaultPrefix  = "worky:lock:"
	releaseTimeout = 2 * time.Second
)

// releaseScript deletes the key only while it still holds our token.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// renewScript extends the key only while it still holds our token.
var renewScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisConfig configures a Redis-backed lock.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	// TTL bounds how long a crashed holder keeps the lock. A live holder
	// renews it every Renew, a third of TTL by default.
	TTL   time.Duration
	Renew time.Duration
	Retry time.Duration
}

// Redis serializes work per key across processes sharing one Redis.
type Redis struct {
	client *goredis.Client
	prefix string
	ttl    time.Duration
	renew  time.Duration
	retry  time.Duration
	logger *zap.Logger
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(ctx context.Context, cfg RedisConfig, logger *zap.Logger) (*Redis, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return newRedis(client, cfg, logger), nil
}

func newRedis(client *goredis.Client, cfg RedisConfig, logger *zap.Logger) *Redis {
	r := &Redis{
		client: client,
		prefix: cfg.Prefix,
		ttl:    cfg.TTL,
		renew:  cfg.Renew,
		retry:  cfg.Retry,
		logger: logger,
	}
	if r.prefix == "" {
		r.prefix = defaultPrefix
	}
	if r.ttl <= 0 {
		r.ttl = defaultTTL
	}
	if r.renew <= 0 || r.renew >= r.ttl {
		r.renew = r.ttl / 3
	}
	if r.retry <= 0 {
		r.retry = defaultRetry
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	return r
}

// Lock polls SET NX until the key is acquired or ctx is done.
func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	name := r.prefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(r.retry)
	defer ticker.Stop()

	for {
		ok, err := r.client.SetNX(ctx, name, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire %s: %w", name, err)
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

	stop := make(chan struct{})
	done := make(chan struct{})
	go r.keepAlive(name, token, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done

			// release even when the caller's context is already cancelled
			ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
			defer cancel()
			if err := releaseScript.Run(ctx, r.client, []string{name}, token).Err(); err != nil {
				r.logger.Warn("releasing lock failed", zap.String("key", name), zap.Error(err))
			}
		})
	}, nil
}

// keepAlive extends the lock until stop is closed, so a handler that outlives
// the TTL keeps exclusive access.
func (r *Redis) keepAlive(name, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.renew)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		held, err := renewScript.Run(ctx, r.client, []string{name}, token, r.ttl.Milliseconds()).Int()
		cancel()
		if err != nil {
			// transient, the next tick retries before the TTL runs out
			r.logger.Warn("renewing lock failed", zap.String("key", name), zap.Error(err))
			continue
		}
		if held == 0 {
			r.logger.Error("lock lost before release", zap.String("key", name))
			return
		}
	}
}

// Close closes the Redis client.
func (r *Redis) Close() error {
	return r.client.Close()
}
