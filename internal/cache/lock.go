// internal/cache/lock.go
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/omok/internal/room"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// DefaultLockPrefix namespaces room lock keys.
const DefaultLockPrefix = "omok:room-lock:"

// releaseScript deletes the lock only if this holder still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a room.Locker shared by every process using the same Redis.
// Each lock is a key set with NX and a TTL; the TTL bounds how long a crashed
// holder can block a room. Leases are not renewed, so the lease context handed
// to the holder ends a safety margin before the key can expire.
type RedisLocker struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
	retry  time.Duration
}

// NewRedisLocker builds a locker whose leases expire after ttl.
func NewRedisLocker(rdb *redis.Client, ttl time.Duration) *RedisLocker {
	return &RedisLocker{
		rdb:    rdb,
		prefix: DefaultLockPrefix,
		ttl:    ttl,
		retry:  25 * time.Millisecond,
	}
}

func (l *RedisLocker) key(roomID uuid.UUID) string {
	return l.prefix + roomID.String()
}

// leaseMargin is how long before the key's expiry the lease context ends.
func (l *RedisLocker) leaseMargin() time.Duration {
	return l.ttl / 10
}

// Lock polls SET NX until it wins or ctx is done. The lease deadline is
// measured from before the winning SET, so it never outlives the key.
func (l *RedisLocker) Lock(ctx context.Context, roomID uuid.UUID) (context.Context, func(), error) {
	key := l.key(roomID)
	token := uuid.NewString()

	var acquired time.Time
	for {
		acquired = time.Now()
		ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, nil, fmt.Errorf("redis lock %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-time.After(l.retry):
		}
	}

	lease, cancelLease := context.WithDeadline(ctx, acquired.Add(l.ttl-l.leaseMargin()))
	var once sync.Once
	return lease, func() {
		once.Do(func() {
			cancelLease()
			// the caller's ctx may already be cancelled; release on our own deadline
			relCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := releaseScript.Run(relCtx, l.rdb, []string{key}, token).Err(); err != nil {
				log.WithError(err).WithField("key", key).Warn("failed to release room lock")
			}
		})
	}, nil
}

var _ room.Locker = (*RedisLocker)(nil)
