package command

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

var ErrLockNotAcquired = errors.New("lock is held by another transfer")

const unlockScript = "if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('del', KEYS[1]) else return 0 end"

// RedisLocker serialises transfers touching the same account across all
// replicas of the service. Each key is taken with SET NX and an owner token;
// only the owner can release it.
type RedisLocker struct {
	client redis.UniversalClient
	ttl    time.Duration
	wait   time.Duration
}

func NewRedisLocker(client redis.UniversalClient, ttl, wait time.Duration) *RedisLocker {
	return &RedisLocker{client: client, ttl: ttl, wait: wait}
}

// Acquire locks every key or none. Keys are taken in sorted order so two
// transfers between the same accounts cannot deadlock. The returned release
// function ignores cancellation of ctx.
func (l *RedisLocker) Acquire(ctx context.Context, keys ...string) (func(), error) {
	keys = uniqueSorted(keys)
	token := uuid.NewString()

	held := make([]string, 0, len(keys))
	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		for i := len(held) - 1; i >= 0; i-- {
			// An expired lock has nothing left to release.
			_ = l.client.Eval(releaseCtx, unlockScript, []string{held[i]}, token).Err()
		}
	}

	for _, key := range keys {
		if err := l.waitLock(ctx, key, token); err != nil {
			release()
			return nil, err
		}
		held = append(held, key)
	}
	return release, nil
}

func (l *RedisLocker) waitLock(ctx context.Context, key, token string) error {
	deadline := time.Now().Add(l.wait)
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return errors.Wrapf(err, "failed to lock %s", key)
		}
		if ok {
			return nil
		}
		if !time.Now().Before(deadline) {
			return errors.Wrap(ErrLockNotAcquired, key)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(10+rand.Intn(40)) * time.Millisecond):
		}
	}
}

func uniqueSorted(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func accountLockKey(accountNumber string) string {
	return fmt.Sprintf("lock:account:%s", accountNumber)
}
