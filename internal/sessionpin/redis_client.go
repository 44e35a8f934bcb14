package sessionpin

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// ClientAdapter adapts a *redis.Client (or *redis.ClusterClient, which
// shares the same method set) to RedisEvaler, translating go-redis's
// *Cmd/*IntCmd result types into the plain (value, error) shape the
// rest of this package depends on.
type ClientAdapter struct {
	Client redis.Cmdable
}

// NewClientAdapter wraps an existing go-redis client for use with NewRedis.
func NewClientAdapter(client redis.Cmdable) ClientAdapter {
	return ClientAdapter{Client: client}
}

func (a ClientAdapter) Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error) {
	return a.Client.Eval(ctx, script, keys, args...).Result()
}

func (a ClientAdapter) Exists(ctx context.Context, keys ...string) (int64, error) {
	return a.Client.Exists(ctx, keys...).Result()
}

func (a ClientAdapter) Del(ctx context.Context, keys ...string) (int64, error) {
	return a.Client.Del(ctx, keys...).Result()
}
