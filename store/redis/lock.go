// Package redis holds the Redis-backed pieces used when several server
// instances write to one spreadsheet.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Options mirrors the redis section of the configuration.
type Options struct {
	Addr     string // host:port
	Password string
	DB       int
}

// NewClient builds a client and pings it once.
func NewClient(ctx context.Context, o Options) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:         o.Addr,
		Password:     o.Password,
		DB:           o.DB,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", client.Options().Addr, err)
	}
	return client, nil
}

const (
	DefaultLeaseTTL   = 30 * time.Second
	DefaultRetryDelay = 50 * time.Millisecond
	leaseMargin       = 10 * time.Second
	keyPrefix         = "ledger:lock:"
)

// LeaseTTLFor returns a lease long enough to outlive a critical section
// bounded by timeout, never shorter than DefaultLeaseTTL.
func LeaseTTLFor(timeout time.Duration) time.Duration {
	if ttl := timeout + leaseMargin; ttl > DefaultLeaseTTL {
		return ttl
	}
	return DefaultLeaseTTL
}

// releaseScript deletes the key only while it still holds our token.
var releaseScript = goredis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0`)

// Locker implements ledger.Locker with a SET NX PX lease per key.
type Locker struct {
	Client     goredis.UniversalClient
	TTL        time.Duration
	RetryDelay time.Duration
	Logger     *zap.Logger
}

func NewLocker(client goredis.UniversalClient, logger *zap.Logger) *Locker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Locker{Client: client, TTL: DefaultLeaseTTL, RetryDelay: DefaultRetryDelay, Logger: logger}
}

// Lock retries until the lease is acquired or ctx is done. The lease expires
// on its own after TTL if the holder dies.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	ttl := l.TTL
	if ttl <= 0 {
		ttl = DefaultLeaseTTL
	}
	delay := l.RetryDelay
	if delay <= 0 {
		delay = DefaultRetryDelay
	}
	redisKey := keyPrefix + key
	token := uuid.NewString()

	for {
		ok, err := l.Client.SetNX(ctx, redisKey, token, ttl).Result()
		if err != nil && !errors.Is(err, goredis.Nil) {
			return nil, fmt.Errorf("acquire %s: %w", redisKey, err)
		}
		if ok {
			return l.release(redisKey, token), nil
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (l *Locker) release(key, token string) func() {
	released := false
	return func() {
		if released {
			return
		}
		released = true
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.Client, []string{key}, token).Err(); err != nil {
			l.logger().Warn("lock release failed", zap.String("key", key), zap.Error(err))
		}
	}
}

func (l *Locker) logger() *zap.Logger {
	if l.Logger == nil {
		return zap.NewNop()
	}
	return l.Logger
}
