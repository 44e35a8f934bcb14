package sessionpin

import (
	"context"
	"fmt"
	"time"

	"github.com/tinyforge/llminfer/internal/kvcache"
)

// RedisEvaler abstracts the minimal surface needed from a Redis client,
// so tests can substitute a fake without pulling in a live server.
// Implementations typically wrap *redis.Client's Eval/Exists methods.
type RedisEvaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error)
	Exists(ctx context.Context, keys ...string) (int64, error)
	Del(ctx context.Context, keys ...string) (int64, error)
}

// Redis is a multi-process pin Store backed by github.com/redis/go-redis/v9.
// Pinning is a refreshable lease: re-pinning an id extends its TTL via a
// single atomic SET+PEXPIRE script rather than requiring an unpin first,
// following the idempotent-marker discipline of the KV budget's eviction
// telemetry (one write path, no read-modify-write race).
type Redis struct {
	client RedisEvaler
	prefix string
}

// NewRedis returns a pin store writing keys under prefix (default
// "sessionpin:" if empty).
func NewRedis(client RedisEvaler, prefix string) *Redis {
	if prefix == "" {
		prefix = "sessionpin:"
	}
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) key(id kvcache.SessionID) string {
	return r.prefix + string(id)
}

// pinScript sets the lease marker and its TTL atomically so a pin is
// never left without an expiry (which would leak forever) or expire
// between two separate calls.
const pinScript = `
redis.call('SET', KEYS[1], '1')
redis.call('PEXPIRE', KEYS[1], ARGV[1])
return 1
`

func (r *Redis) Pin(ctx context.Context, id kvcache.SessionID, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("sessionpin: ttl must be positive, got %s", ttl)
	}
	_, err := r.client.Eval(ctx, pinScript, []string{r.key(id)}, ttl.Milliseconds())
	if err != nil {
		return fmt.Errorf("sessionpin: redis pin %s: %w", id, err)
	}
	return nil
}

func (r *Redis) Unpin(ctx context.Context, id kvcache.SessionID) error {
	if _, err := r.client.Del(ctx, r.key(id)); err != nil {
		return fmt.Errorf("sessionpin: redis unpin %s: %w", id, err)
	}
	return nil
}

func (r *Redis) IsPinned(ctx context.Context, id kvcache.SessionID) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(id))
	if err != nil {
		return false, fmt.Errorf("sessionpin: redis exists %s: %w", id, err)
	}
	return n > 0, nil
}
