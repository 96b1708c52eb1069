package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/roach88/reefsync/internal/queue"
)

// acquireScript extends the lease when ARGV[1] already owns it, otherwise
// claims it only if absent.
var acquireScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
if redis.call("SET", KEYS[1], ARGV[1], "NX", "PX", ARGV[2]) then
	return 1
end
return 0
`)

// releaseScript deletes the lease only when ARGV[1] owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// AcquireLease claims or extends the flush lease for holder.
func (s *Store) AcquireLease(ctx context.Context, holder string, ttl time.Duration) (bool, error) {
	if holder == "" {
		return false, fmt.Errorf("acquire lease: holder is required")
	}
	ms := ttl.Milliseconds()
	if ms <= 0 {
		ms = 1
	}

	n, err := acquireScript.Run(ctx, s.client, []string{s.leaseKey()}, holder, ms).Int()
	if err != nil {
		return false, queue.NewStorageUnavailable("acquire lease", err)
	}
	return n == 1, nil
}

// ReleaseLease drops the lease if holder owns it.
func (s *Store) ReleaseLease(ctx context.Context, holder string) error {
	if err := releaseScript.Run(ctx, s.client, []string{s.leaseKey()}, holder).Err(); err != nil {
		return queue.NewStorageUnavailable("release lease", err)
	}
	return nil
}
