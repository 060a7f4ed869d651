package redis

import (
	"context"
	"fmt"
	"time"

	"ms-inventory/internal/logger"

	"github.com/go-redis/redis/v8"
)

// Deletes or extends the lock only if it is still held by the caller.
var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

	renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

// Lease is a named lock in Redis held by one owner until it is released or
// its TTL runs out. The sweeper uses it so that only one instance sweeps a
// shard at a time.
type Lease struct {
	Client *redis.Client
	Key    string
	Owner  string
	TTL    time.Duration
	Logger *logger.Logger
}

func NewLease(client *redis.Client, key, owner string, ttl time.Duration, log *logger.Logger) *Lease {
	return &Lease{Client: client, Key: "inventory_lock:" + key, Owner: owner, TTL: ttl, Logger: log}
}

// Acquire takes the lease, or extends it when this owner already holds it.
// It reports whether the caller holds the lease afterwards.
func (l *Lease) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.Client.SetNX(ctx, l.Key, l.Owner, l.TTL).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx %s: %w", l.Key, err)
	}
	if ok {
		l.Logger.Debug("REDIS", fmt.Sprintf("%s acquired %s", l.Owner, l.Key))
		return true, nil
	}

	renewed, err := renewScript.Run(ctx, l.Client, []string{l.Key}, l.Owner, l.TTL.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("redis renew %s: %w", l.Key, err)
	}
	return renewed == 1, nil
}

// Release drops the lease if this owner still holds it.
func (l *Lease) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, l.Client, []string{l.Key}, l.Owner).Int()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("redis release %s: %w", l.Key, err)
	}
	if n == 1 {
		l.Logger.Debug("REDIS", fmt.Sprintf("%s released %s", l.Owner, l.Key))
	}
	return nil
}
