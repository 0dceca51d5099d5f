package lease

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cschleiden/go-dispatch/backend"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func Test_Poll(t *testing.T) {
	t.Run("succeeds on first attempt", func(t *testing.T) {
		calls := 0
		err := Poll(context.Background(), clock.New(), time.Second, func(ctx context.Context) (bool, error) {
			calls++
			return true, nil
		})

		require.NoError(t, err)
		require.Equal(t, 1, calls)
	})

	t.Run("zero timeout tries once", func(t *testing.T) {
		calls := 0
		err := Poll(context.Background(), clock.New(), 0, func(ctx context.Context) (bool, error) {
			calls++
			return false, nil
		})

		require.ErrorIs(t, err, backend.ErrLockTimeout)
		require.Equal(t, 1, calls)
	})

	t.Run("retries until acquired", func(t *testing.T) {
		var calls int32
		err := Poll(context.Background(), clock.New(), time.Second, func(ctx context.Context) (bool, error) {
			return atomic.AddInt32(&calls, 1) == 3, nil
		})

		require.NoError(t, err)
		require.EqualValues(t, 3, calls)
	})

	t.Run("times out", func(t *testing.T) {
		start := time.Now()
		err := Poll(context.Background(), clock.New(), 30*time.Millisecond, func(ctx context.Context) (bool, error) {
			return false, nil
		})

		require.ErrorIs(t, err, backend.ErrLockTimeout)
		require.Less(t, time.Since(start), time.Second)
	})

	t.Run("returns attempt errors", func(t *testing.T) {
		boom := errors.New("boom")
		err := Poll(context.Background(), clock.New(), time.Second, func(ctx context.Context) (bool, error) {
			return false, boom
		})

		require.ErrorIs(t, err, boom)
	})

	t.Run("stops when context is cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := Poll(ctx, clock.New(), time.Second, func(ctx context.Context) (bool, error) {
			return false, nil
		})

		require.ErrorIs(t, err, context.Canceled)
	})
}

type mockLocks struct {
	mock.Mock
}

func (m *mockLocks) Acquire(ctx context.Context, key string, timeout, lease time.Duration) (*backend.LockHandle, error) {
	args := m.Called(ctx, key, timeout, lease)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*backend.LockHandle), args.Error(1)
}

func (m *mockLocks) Release(ctx context.Context, h *backend.LockHandle) error {
	return m.Called(ctx, h).Error(0)
}

func (m *mockLocks) Renew(ctx context.Context, h *backend.LockHandle, lease time.Duration) (*backend.LockHandle, error) {
	args := m.Called(ctx, h, lease)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*backend.LockHandle), args.Error(1)
}

func Test_Renewer(t *testing.T) {
	t.Run("renews handle", func(t *testing.T) {
		c := clock.NewMock()
		h := &backend.LockHandle{ResourceKey: "k", OwnerToken: "o", ExpiresAt: c.Now().Add(3 * time.Second)}
		renewed := &backend.LockHandle{ResourceKey: "k", OwnerToken: "o", ExpiresAt: c.Now().Add(4 * time.Second)}

		locks := &mockLocks{}
		locks.On("Renew", mock.Anything, mock.Anything, 3*time.Second).Return(renewed, nil)

		ctx, r := Start(context.Background(), locks, c, slog.Default(), h, 3*time.Second)

		require.Eventually(t, func() bool {
			c.Add(time.Second)
			return r.Handle() == renewed
		}, time.Second, time.Millisecond)

		require.Equal(t, renewed, r.Stop())
		require.NoError(t, ctx.Err())
	})

	t.Run("cancels work when lock is lost", func(t *testing.T) {
		c := clock.NewMock()
		h := &backend.LockHandle{ResourceKey: "k", OwnerToken: "o", ExpiresAt: c.Now().Add(3 * time.Second)}

		locks := &mockLocks{}
		locks.On("Renew", mock.Anything, h, 3*time.Second).Return(nil, backend.ErrLockExpired).Once()

		ctx, r := Start(context.Background(), locks, c, slog.Default(), h, 3*time.Second)

		require.Eventually(t, func() bool {
			c.Add(time.Second)
			return ctx.Err() != nil
		}, time.Second, time.Millisecond)

		require.True(t, r.Lost(ctx))
		r.Stop()
		locks.AssertExpectations(t)
	})
}
