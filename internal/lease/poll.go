// Package lease contains the acquisition and renewal loops shared by all lock providers.
package lease

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"github.com/cschleiden/go-dispatch/backend"
)

// TryFunc makes a single acquisition attempt. It returns false if the resource is held by someone
// else.
type TryFunc func(ctx context.Context) (bool, error)

const (
	initialInterval = 5 * time.Millisecond
	maxInterval     = 250 * time.Millisecond
)

// Poll calls try until it succeeds, the timeout elapses or ctx is done. It returns
// backend.ErrLockTimeout when the timeout elapses. A timeout <= 0 makes a single attempt.
func Poll(ctx context.Context, clk clock.Clock, timeout time.Duration, try TryFunc) error {
	ok, err := try(ctx)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	if timeout <= 0 {
		return backend.ErrLockTimeout
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initialInterval
	b.MaxInterval = maxInterval
	b.MaxElapsedTime = 0
	b.Clock = clk
	b.Reset()

	deadline := clk.Now().Add(timeout)

	for {
		wait := b.NextBackOff()
		if remaining := deadline.Sub(clk.Now()); remaining <= 0 {
			return backend.ErrLockTimeout
		} else if wait > remaining {
			wait = remaining
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-clk.After(wait):
		}

		ok, err := try(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
}
