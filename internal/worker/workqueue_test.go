package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWorkQueue_Reserve(t *testing.T) {
	t.Run("unlimited", func(t *testing.T) {
		wq := newWorkQueue[testTask](0)
		require.Nil(t, wq.slots)

		for i := 0; i < 10; i++ {
			require.NoError(t, wq.reserve(context.Background()))
		}

		wq.release()
	})

	t.Run("blocks when all slots are taken", func(t *testing.T) {
		wq := newWorkQueue[testTask](1)
		require.NoError(t, wq.reserve(context.Background()))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		require.ErrorIs(t, wq.reserve(ctx), context.DeadlineExceeded)

		wq.release()
		require.NoError(t, wq.reserve(context.Background()))
	})
}

func TestWorkQueue_Add(t *testing.T) {
	t.Run("hands task to reader", func(t *testing.T) {
		wq := newWorkQueue[testTask](1)
		task := &testTask{ID: "j1"}

		errc := make(chan error, 1)
		go func() {
			errc <- wq.add(context.Background(), task)
		}()

		require.Equal(t, task, <-wq.tasks)
		require.NoError(t, <-errc)
	})

	t.Run("stops when context is cancelled", func(t *testing.T) {
		wq := newWorkQueue[testTask](1)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		require.ErrorIs(t, wq.add(ctx, &testTask{ID: "j1"}), context.Canceled)
	})
}
