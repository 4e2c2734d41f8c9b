package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/qmdoc/doccontrol/internal/document"
	"github.com/qmdoc/doccontrol/pkg/logger"
)

// releaseScript deletes the key only while it still holds our token, so an
// expired lease never releases its successor.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements Locker with SET NX PX leases under "<prefix><key>".
type RedisLocker struct {
	client *redis.Client
	prefix string
}

// NewRedisLocker creates a Redis-backed locker. Prefix may be empty.
func NewRedisLocker(client *redis.Client, prefix string) *RedisLocker {
	if prefix == "" {
		prefix = "qmdoc:lock:"
	}
	return &RedisLocker{client: client, prefix: prefix}
}

func (r *RedisLocker) key(k string) string {
	return r.prefix + k
}

func (r *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if ttl <= 0 {
		ttl = time.Minute
	}
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, r.key(key), token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s is being changed by another request", document.ErrLocked, key)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// release must outlive a cancelled request context
			rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(rctx, r.client, []string{r.key(key)}, token).Err(); err != nil {
				logger.Warnf("lock: release %s: %v", key, err)
			}
		})
	}, nil
}
