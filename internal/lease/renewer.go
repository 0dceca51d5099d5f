package lease

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cschleiden/go-dispatch/backend"
	"github.com/cschleiden/go-dispatch/log"
)

// Renewer keeps a lock alive while work is in progress. If a renewal fails the work context is
// cancelled with ErrLost as cause.
type Renewer struct {
	locks  backend.LockProvider
	clock  clock.Clock
	logger *slog.Logger
	lease  time.Duration

	mu     sync.Mutex
	handle *backend.LockHandle

	cancel context.CancelCauseFunc
	done   chan struct{}
	stop   chan struct{}
}

var ErrLost = errors.New("lock lost while holding it")

// Start renews handle every lease/3 until Stop is called. The returned context is cancelled when
// the lock is lost.
func Start(
	ctx context.Context, locks backend.LockProvider, clk clock.Clock, logger *slog.Logger,
	handle *backend.LockHandle, lease time.Duration,
) (context.Context, *Renewer) {
	rctx, cancel := context.WithCancelCause(ctx)

	r := &Renewer{
		locks:  locks,
		clock:  clk,
		logger: logger,
		lease:  lease,
		handle: handle,
		cancel: cancel,
		done:   make(chan struct{}),
		stop:   make(chan struct{}),
	}

	go r.run(rctx)

	return rctx, r
}

func (r *Renewer) run(ctx context.Context) {
	defer close(r.done)

	interval := r.lease / 3
	if interval <= 0 {
		interval = time.Millisecond
	}

	t := r.clock.Ticker(interval)
	defer t.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ctx.Done():
			return
		case <-t.C:
			r.mu.Lock()
			h := r.handle
			r.mu.Unlock()

			nh, err := r.locks.Renew(ctx, h, r.lease)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}

				r.logger.ErrorContext(ctx, "could not renew lock", log.LockKey, h.ResourceKey, "error", err)
				r.cancel(ErrLost)
				return
			}

			r.mu.Lock()
			r.handle = nh
			r.mu.Unlock()
		}
	}
}

// Handle returns the most recently renewed handle.
func (r *Renewer) Handle() *backend.LockHandle {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.handle
}

// Stop ends renewal and returns the last handle. It does not release the lock.
func (r *Renewer) Stop() *backend.LockHandle {
	close(r.stop)
	<-r.done

	return r.Handle()
}

// Lost returns true if renewal failed.
func (r *Renewer) Lost(ctx context.Context) bool {
	return errors.Is(context.Cause(ctx), ErrLost)
}
