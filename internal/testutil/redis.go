//go:build integration

package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisAddr returns the address of a test Redis instance, read from
// ROUTETAP_TEST_REDIS_ADDR. Tests that need Redis call RequireRedis first.
func RedisAddr() string {
	return os.Getenv("ROUTETAP_TEST_REDIS_ADDR")
}

// RequireRedis fails the test unless a reachable Redis instance is
// configured, used by pkg/runlock's integration tests.
func RequireRedis(t *testing.T) string {
	t.Helper()

	addr := RedisAddr()
	if addr == "" {
		t.Fatal("ROUTETAP_TEST_REDIS_ADDR not set: run a local redis-server to exercise pkg/runlock")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("test Redis not reachable at %s: %v", addr, err)
	}
	return addr
}

// FlushTestDB clears every key written under the routetap:lock: prefix,
// leaving other keys (if the instance is shared) untouched.
func FlushTestDB(t *testing.T, addr string) {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	ctx := context.Background()
	keys, err := client.Keys(ctx, "routetap:lock:*").Result()
	if err != nil {
		t.Fatalf("listing test keys: %v", err)
	}
	if len(keys) > 0 {
		if err := client.Del(ctx, keys...).Err(); err != nil {
			t.Fatalf("clearing test keys: %v", err)
		}
	}
}
