package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cschleiden/go-dispatch/backend"
	"github.com/cschleiden/go-dispatch/internal/lease"
	"github.com/google/uuid"
)

// lockProvider stores leases in the instance_locks table. Expiry is evaluated with the clock of
// the calling node, so node clocks must not drift by more than a fraction of the lease.
type lockProvider Store

func (lp *lockProvider) Acquire(ctx context.Context, key string, timeout, leaseDuration time.Duration) (*backend.LockHandle, error) {
	owner := uuid.NewString()
	clk := lp.options.Clock

	var handle *backend.LockHandle
	err := lease.Poll(ctx, clk, timeout, func(ctx context.Context) (bool, error) {
		now := clk.Now()
		expiresAt := now.Add(leaseDuration)

		var acquired bool
		err := (*Store)(lp).inTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(
				ctx,
				(*Store)(lp).q("DELETE FROM instance_locks WHERE resource_key = ? AND expires_at <= ?"),
				key, toNanos(now),
			); err != nil {
				return fmt.Errorf("removing expired lock: %w", err)
			}

			res, err := tx.ExecContext(
				ctx,
				lp.dialect.InsertIgnore("instance_locks", "resource_key", "owner", "expires_at"),
				key, owner, toNanos(expiresAt),
			)
			if err != nil {
				return fmt.Errorf("inserting lock: %w", err)
			}

			rows, err := res.RowsAffected()
			if err != nil {
				return err
			}

			acquired = rows == 1

			return nil
		})
		if err != nil {
			return false, err
		}

		if acquired {
			handle = &backend.LockHandle{ResourceKey: key, OwnerToken: owner, ExpiresAt: expiresAt}
		}

		return acquired, nil
	})
	if err != nil {
		return nil, err
	}

	return handle, nil
}

func (lp *lockProvider) Release(ctx context.Context, h *backend.LockHandle) error {
	if _, err := lp.db.ExecContext(
		ctx,
		(*Store)(lp).q("DELETE FROM instance_locks WHERE resource_key = ? AND owner = ?"),
		h.ResourceKey, h.OwnerToken,
	); err != nil {
		return fmt.Errorf("releasing lock: %w", err)
	}

	return nil
}

func (lp *lockProvider) Renew(ctx context.Context, h *backend.LockHandle, leaseDuration time.Duration) (*backend.LockHandle, error) {
	now := lp.options.Clock.Now()
	expiresAt := now.Add(leaseDuration)

	res, err := lp.db.ExecContext(
		ctx,
		(*Store)(lp).q("UPDATE instance_locks SET expires_at = ? WHERE resource_key = ? AND owner = ? AND expires_at > ?"),
		toNanos(expiresAt), h.ResourceKey, h.OwnerToken, toNanos(now),
	)
	if err != nil {
		return nil, fmt.Errorf("renewing lock: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}

	if rows != 1 {
		return nil, backend.ErrLockExpired
	}

	return &backend.LockHandle{ResourceKey: h.ResourceKey, OwnerToken: h.OwnerToken, ExpiresAt: expiresAt}, nil
}
