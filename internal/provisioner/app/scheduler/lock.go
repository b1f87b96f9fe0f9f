package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lock is a Redis lease that lets one replica of a fleet run drift repair
// at a time.
type Lock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

func NewLock(client *redis.Client, key string, ttl time.Duration) *Lock {
	return &Lock{client: client, key: key, ttl: ttl}
}

// Acquire returns a token when the lease was taken, or an empty token when
// another holder has it.
func (l *Lock) Acquire(ctx context.Context) (string, error) {
	token := uuid.New().String()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return "", fmt.Errorf("failed to acquire lock %s: %w", l.key, err)
	}
	if !ok {
		return "", nil
	}
	return token, nil
}

func (l *Lock) Release(ctx context.Context, token string) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Err(); err != nil {
		return fmt.Errorf("failed to release lock %s: %w", l.key, err)
	}
	return nil
}
