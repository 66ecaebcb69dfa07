package reconcile

import (
	"context"
	"time"

	"github.com/google/uuid"

	platformredis "freightdesk/internal/platform/redis"
)

// releaseScript deletes the lock only when it still holds our token, so a
// slow batch cannot release a lock that expired and was re-acquired elsewhere.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

// RedisLocker implements Locker with a SET NX token lock.
type RedisLocker struct {
	client *platformredis.Client
}

// NewRedisLocker returns nil when the client is nil, which disables
// cross-instance locking.
func NewRedisLocker(client *platformredis.Client) *RedisLocker {
	if client == nil {
		return nil
	}
	return &RedisLocker{client: client}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, func(), error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return false, nil, err
	}
	if !ok {
		return false, nil, nil
	}
	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = l.client.Eval(releaseCtx, releaseScript, []string{key}, token).Err()
	}
	return true, release, nil
}
