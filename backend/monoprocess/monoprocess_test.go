package monoprocess

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cschleiden/go-dispatch/backend"
	"github.com/cschleiden/go-dispatch/backend/memory"
	"github.com/cschleiden/go-dispatch/backend/sqlite"
	"github.com/cschleiden/go-dispatch/backend/test"
	"github.com/cschleiden/go-dispatch/core"
	"github.com/stretchr/testify/require"
)

func Test_MonoprocessBackend(t *testing.T) {
	if testing.Short() {
		t.Skip()
	}

	test.BackendTest(t, func() backend.Backend {
		return NewMonoprocessBackend(sqlite.NewInMemoryBackend(), 10, time.Millisecond)
	}, func(b backend.Backend) {
		require.NoError(t, b.Close())
	})
}

func Test_EndToEndMonoprocessBackend(t *testing.T) {
	if testing.Short() {
		t.Skip()
	}

	test.EndToEndBackendTest(t, func() backend.Backend {
		return NewMonoprocessBackend(sqlite.NewInMemoryBackend(), 10, time.Millisecond)
	}, func(b backend.Backend) {
		require.NoError(t, b.Close())
	})
}

func Test_MonoprocessBackend_SignalsDueJob(t *testing.T) {
	b := NewMonoprocessBackend(sqlite.NewInMemoryBackend(), 1, time.Millisecond)
	defer b.Close()

	now := b.Options().Clock.Now()
	require.NoError(t, b.Jobs().Schedule(context.Background(), &core.ScheduledJob{
		ID:         "j1",
		InstanceID: "i1",
		FireAt:     now.Add(-time.Second),
		CreatedAt:  now,
	}))

	select {
	case <-b.JobScheduled():
	default:
		require.Fail(t, "expected job signal")
	}
}

func Test_MonoprocessBackend_ComposedForwardsSignal(t *testing.T) {
	b := NewMonoprocessBackend(sqlite.NewInMemoryBackend(), 1, time.Millisecond)
	defer b.Close()

	composed := backend.Compose(b, backend.UseLockProvider(memory.NewMemoryBackend().Locks()))

	n, ok := composed.(backend.JobNotifier)
	require.True(t, ok)

	now := b.Options().Clock.Now()
	require.NoError(t, composed.Jobs().Schedule(context.Background(), &core.ScheduledJob{
		ID:         "j1",
		InstanceID: "i1",
		FireAt:     now.Add(-time.Second),
		CreatedAt:  now,
	}))

	select {
	case <-n.JobScheduled():
	default:
		require.Fail(t, "expected job signal")
	}

	replaced := backend.Compose(b, backend.UseJobStore(memory.NewMemoryBackend().Jobs()))
	require.Nil(t, replaced.(backend.JobNotifier).JobScheduled())
}

func Test_MonoprocessBackend_SignalsFutureJobWhenDue(t *testing.T) {
	mock := clock.NewMock()
	b := NewMonoprocessBackend(
		sqlite.NewInMemoryBackend(sqlite.WithBackendOptions(backend.WithClock(mock))),
		1,
		time.Millisecond,
	)
	defer b.Close()

	now := mock.Now()
	require.NoError(t, b.Jobs().Schedule(context.Background(), &core.ScheduledJob{
		ID:         "j1",
		InstanceID: "i1",
		FireAt:     now.Add(time.Minute),
		CreatedAt:  now,
	}))

	select {
	case <-b.JobScheduled():
		require.Fail(t, "job is not due yet")
	default:
	}

	mock.Add(time.Minute)

	require.Eventually(t, func() bool {
		select {
		case <-b.JobScheduled():
			return true
		default:
			return false
		}
	}, time.Second, time.Millisecond)
}

func Test_MonoprocessBackend_FullSignalBufferDoesNotBlock(t *testing.T) {
	b := NewMonoprocessBackend(sqlite.NewInMemoryBackend(), 0, time.Millisecond)
	defer b.Close()

	now := b.Options().Clock.Now()

	done := make(chan error, 1)
	go func() {
		done <- b.Jobs().Schedule(context.Background(), &core.ScheduledJob{
			ID:         "j1",
			InstanceID: "i1",
			FireAt:     now,
			CreatedAt:  now,
		})
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		require.Fail(t, "schedule blocked on signal")
	}
}
