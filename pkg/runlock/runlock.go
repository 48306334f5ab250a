// Package runlock implements an optional Redis-backed distributed lock that
// prevents two operators from collecting the same device selector
// concurrently from different hosts. It is a no-op when no Redis address is
// configured, so a single-operator run never depends on Redis being present.
package runlock

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/routetap/routetap/pkg/util"
)

// keyPrefix namespaces run locks in the shared Redis keyspace.
const keyPrefix = "routetap:lock:"

// acquireScript atomically claims the lock key if unheld, recording the
// holder and TTL in a single hash write.
var acquireScript = redis.NewScript(`
local key = KEYS[1]
if redis.call("EXISTS", key) == 1 then
	return 0
end
redis.call("HSET", key, "holder", ARGV[1], "acquired", ARGV[2])
redis.call("EXPIRE", key, tonumber(ARGV[3]))
return 1
`)

// releaseScript deletes the lock key only if the caller is still the
// recorded holder, so a lock that expired and was reclaimed by someone else
// is never released out from under them.
var releaseScript = redis.NewScript(`
local key = KEYS[1]
if redis.call("EXISTS", key) == 0 then
	return -1
end
if redis.call("HGET", key, "holder") ~= ARGV[1] then
	return 0
end
redis.call("DEL", key)
return 1
`)

// Lock holds a claimed run lock. A nil *Lock is valid and its Release is a
// no-op, so callers can defer Release unconditionally.
type Lock struct {
	client *redis.Client
	key    string
	holder string
}

// Acquire claims a run lock for selector (a hostname, group name, or other
// descriptor of the device set being collected). If addr is empty, Redis is
// not configured for this deployment and Acquire returns (nil, nil)
// immediately — the caller proceeds without coordination.
func Acquire(ctx context.Context, addr, selector, holder string, ttl time.Duration) (*Lock, error) {
	if addr == "" {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	key := keyPrefix + selector
	now := time.Now().UTC().Format(time.RFC3339)

	result, err := acquireScript.Run(ctx, client, []string{key}, holder, now, int(ttl.Seconds())).Int()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("acquiring run lock for %s: %w", selector, err)
	}
	if result == 0 {
		client.Close()
		return nil, fmt.Errorf("%w: %s", util.ErrRunLockHeld, selector)
	}

	util.WithFields(map[string]interface{}{"selector": selector, "holder": holder}).Debug("run lock acquired")
	return &Lock{client: client, key: key, holder: holder}, nil
}

// Release frees the lock if this holder still owns it, and closes the
// underlying Redis connection. Safe to call on a nil *Lock.
func (l *Lock) Release(ctx context.Context) error {
	if l == nil {
		return nil
	}
	defer l.client.Close()

	result, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.holder).Int()
	if err != nil {
		return fmt.Errorf("releasing run lock: %w", err)
	}
	if result == 0 {
		return fmt.Errorf("run lock %s held by another holder, not released", l.key)
	}
	util.WithField("selector", l.key).Debug("run lock released")
	return nil
}
