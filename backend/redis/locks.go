package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/cschleiden/go-dispatch/backend"
	"github.com/cschleiden/go-dispatch/internal/lease"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// lockProvider keeps the owner token of a lock in a key whose TTL is the lease. Expiry is decided
// by the Redis server, so node clocks only affect the locally reported ExpiresAt.
type lockProvider redisBackend

var _ backend.LockProvider = (*lockProvider)(nil)

// Delete the lock only if it is still held by the given owner
// KEYS[1] - lock key
// ARGV[1] - owner token
var releaseLockCmd = redis.NewScript(
	`if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	end

	return 0
	`,
)

// Extend the lease of the lock if it is still held by the given owner
// KEYS[1] - lock key
// ARGV[1] - owner token
// ARGV[2] - lease in milliseconds
var renewLockCmd = redis.NewScript(
	`if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("PEXPIRE", KEYS[1], ARGV[2])
	end

	return 0
	`,
)

func (lp *lockProvider) Acquire(ctx context.Context, resourceKey string, timeout, leaseDuration time.Duration) (*backend.LockHandle, error) {
	owner := uuid.NewString()
	clk := lp.options.Clock
	key := lp.keys.lockKey(resourceKey)

	var handle *backend.LockHandle
	err := lease.Poll(ctx, clk, timeout, func(ctx context.Context) (bool, error) {
		now := clk.Now()

		ok, err := lp.rdb.SetNX(ctx, key, owner, leaseDuration).Result()
		if err != nil {
			return false, fmt.Errorf("setting lock key: %w", err)
		}

		if ok {
			handle = &backend.LockHandle{ResourceKey: resourceKey, OwnerToken: owner, ExpiresAt: now.Add(leaseDuration)}
		}

		return ok, nil
	})
	if err != nil {
		return nil, err
	}

	return handle, nil
}

func (lp *lockProvider) Release(ctx context.Context, handle *backend.LockHandle) error {
	if handle == nil {
		return nil
	}

	if err := releaseLockCmd.Run(ctx, lp.rdb, []string{lp.keys.lockKey(handle.ResourceKey)}, handle.OwnerToken).Err(); err != nil {
		return fmt.Errorf("releasing lock: %w", err)
	}

	return nil
}

func (lp *lockProvider) Renew(ctx context.Context, handle *backend.LockHandle, leaseDuration time.Duration) (*backend.LockHandle, error) {
	now := lp.options.Clock.Now()

	renewed, err := renewLockCmd.Run(
		ctx, lp.rdb,
		[]string{lp.keys.lockKey(handle.ResourceKey)},
		handle.OwnerToken, leaseDuration.Milliseconds(),
	).Int()
	if err != nil {
		return nil, fmt.Errorf("renewing lock: %w", err)
	}

	if renewed == 0 {
		return nil, backend.ErrLockExpired
	}

	return &backend.LockHandle{
		ResourceKey: handle.ResourceKey,
		OwnerToken:  handle.OwnerToken,
		ExpiresAt:   now.Add(leaseDuration),
	}, nil
}
