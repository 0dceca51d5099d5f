package backend

import (
	"context"
	"time"
)

// LockHandle is a lease on a resource. At most one valid handle exists per resource key at any
// time, cluster-wide.
type LockHandle struct {
	ResourceKey string
	OwnerToken  string
	ExpiresAt   time.Time
}

// Valid returns true if the lease has not expired at now. A handle that is valid locally may
// already be lost on the server when clocks drift, providers treat the server as authoritative.
func (h *LockHandle) Valid(now time.Time) bool {
	return h != nil && now.Before(h.ExpiresAt)
}

// LockProvider grants exclusive, time-bounded leases.
type LockProvider interface {
	// Acquire blocks until the lock is granted, the timeout elapses (ErrLockTimeout) or ctx is done.
	// A timeout <= 0 makes a single attempt.
	Acquire(ctx context.Context, resourceKey string, timeout, lease time.Duration) (*LockHandle, error)

	// Release gives up the lock. Releasing an expired or foreign handle is a no-op.
	Release(ctx context.Context, handle *LockHandle) error

	// Renew extends the lease and returns the updated handle, or ErrLockExpired if the handle is
	// no longer the holder.
	Renew(ctx context.Context, handle *LockHandle, lease time.Duration) (*LockHandle, error)
}
