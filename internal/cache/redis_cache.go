package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// deleteIfScript deletes KEYS[1] only while it still holds ARGV[1]: a lock
// carrying our token, or an idempotency key that is still pending.
var deleteIfScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Redis struct {
	client *redis.Client
}

func NewRedis(addr string, password string, db int) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &Redis{client: client}
}

func NewRedisFromClient(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (c *Redis) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Redis) Close() error {
	return c.client.Close()
}

func (c *Redis) Lookup(ctx context.Context, key string) (string, bool, error) {
	val, err := c.client.Get(ctx, fmt.Sprintf(keyIdemCheckout, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if val == pendingMarker {
		return "", false, nil
	}
	return val, true, nil
}

func (c *Redis) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, fmt.Sprintf(keyIdemCheckout, key), pendingMarker, ttl).Result()
}

func (c *Redis) Remember(ctx context.Context, key string, saleID string, ttl time.Duration) error {
	return c.client.Set(ctx, fmt.Sprintf(keyIdemCheckout, key), saleID, ttl).Err()
}

func (c *Redis) Forget(ctx context.Context, key string) error {
	return deleteIfScript.Run(ctx, c.client, []string{fmt.Sprintf(keyIdemCheckout, key)}, pendingMarker).Err()
}

func (c *Redis) Acquire(ctx context.Context, name string, ttl time.Duration) (func(), bool, error) {
	key := fmt.Sprintf(keyLock, name)
	token := uuid.NewString()

	ok, err := c.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil || !ok {
		return func() {}, false, err
	}

	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = deleteIfScript.Run(releaseCtx, c.client, []string{key}, token).Err()
	}
	return release, true, nil
}
