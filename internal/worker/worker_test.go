package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type testTask struct {
	ID string
}

type testResult struct {
	Output string
}

type mockTaskWorker struct {
	mock.Mock
}

func (m *mockTaskWorker) Get(ctx context.Context) (*testTask, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*testTask), args.Error(1)
}

func (m *mockTaskWorker) Extend(ctx context.Context, task *testTask) error {
	return m.Called(ctx, task).Error(0)
}

func (m *mockTaskWorker) Execute(ctx context.Context, task *testTask) (*testResult, error) {
	args := m.Called(ctx, task)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*testResult), args.Error(1)
}

func (m *mockTaskWorker) Complete(ctx context.Context, result *testResult, task *testTask) error {
	return m.Called(ctx, result, task).Error(0)
}

func newTestWorker(tw *mockTaskWorker, options *Options) *Worker[testTask, testResult] {
	return NewWorker[testTask, testResult](slog.Default(), clock.New(), tw, options)
}

func TestWorker_Handle(t *testing.T) {
	t.Run("executes and completes", func(t *testing.T) {
		tw := &mockTaskWorker{}
		w := newTestWorker(tw, &Options{})

		task := &testTask{ID: "j1"}
		result := &testResult{Output: "ok"}

		tw.On("Execute", mock.Anything, task).Return(result, nil)
		tw.On("Complete", mock.Anything, result, task).Return(nil)

		require.NoError(t, w.handle(context.Background(), task))
		tw.AssertExpectations(t)
	})

	t.Run("does not complete failed tasks", func(t *testing.T) {
		tw := &mockTaskWorker{}
		w := newTestWorker(tw, &Options{})

		task := &testTask{ID: "j1"}
		boom := errors.New("boom")

		tw.On("Execute", mock.Anything, task).Return(nil, boom)

		require.ErrorIs(t, w.handle(context.Background(), task), boom)
		tw.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("heartbeats while executing", func(t *testing.T) {
		tw := &mockTaskWorker{}
		w := newTestWorker(tw, &Options{HeartbeatInterval: time.Millisecond})

		task := &testTask{ID: "j1"}
		result := &testResult{}

		var extended atomic.Int32
		tw.On("Extend", mock.Anything, task).Return(nil).Run(func(mock.Arguments) {
			extended.Add(1)
		})
		tw.On("Execute", mock.Anything, task).Return(result, nil).Run(func(mock.Arguments) {
			require.Eventually(t, func() bool { return extended.Load() >= 2 }, time.Second, time.Millisecond)
		})
		tw.On("Complete", mock.Anything, result, task).Return(nil)

		require.NoError(t, w.handle(context.Background(), task))
		tw.AssertExpectations(t)
	})

	t.Run("aborts when the claim is lost", func(t *testing.T) {
		tw := &mockTaskWorker{}
		w := newTestWorker(tw, &Options{HeartbeatInterval: time.Millisecond})

		task := &testTask{ID: "j1"}

		tw.On("Extend", mock.Anything, task).Return(errors.New("claim lost"))
		tw.On("Execute", mock.Anything, task).Return(&testResult{}, nil).Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		})

		require.ErrorIs(t, w.handle(context.Background(), task), errHeartbeatFailed)
		tw.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestWorker_Run(t *testing.T) {
	t.Run("processes polled tasks", func(t *testing.T) {
		tw := &mockTaskWorker{}
		w := newTestWorker(tw, &Options{
			Pollers:          1,
			MaxParallelTasks: 2,
			PollingInterval:  5 * time.Millisecond,
		})

		t1, t2 := &testTask{ID: "j1"}, &testTask{ID: "j2"}
		r := &testResult{}

		c1 := tw.On("Get", mock.Anything).Return(t1, nil).Once()
		c2 := tw.On("Get", mock.Anything).Return(t2, nil).Once().NotBefore(c1)
		tw.On("Get", mock.Anything).Return(nil, nil).NotBefore(c2)

		var completed atomic.Int32
		tw.On("Execute", mock.Anything, mock.Anything).Return(r, nil)
		tw.On("Complete", mock.Anything, r, mock.Anything).Return(nil).Run(func(mock.Arguments) {
			completed.Add(1)
		})

		ctx, cancel := context.WithCancel(context.Background())
		require.NoError(t, w.Start(ctx))

		require.Eventually(t, func() bool { return completed.Load() == 2 }, time.Second, time.Millisecond)

		cancel()
		require.NoError(t, w.WaitForCompletion())
	})

	t.Run("does not poll without a free slot", func(t *testing.T) {
		tw := &mockTaskWorker{}
		w := newTestWorker(tw, &Options{
			Pollers:          2,
			MaxParallelTasks: 1,
			PollingInterval:  time.Millisecond,
		})

		release := make(chan struct{})
		var gets atomic.Int32

		tw.On("Get", mock.Anything).Return(&testTask{ID: "j1"}, nil).Run(func(mock.Arguments) {
			gets.Add(1)
		})
		tw.On("Execute", mock.Anything, mock.Anything).Return(&testResult{}, nil).Run(func(mock.Arguments) {
			<-release
		})
		tw.On("Complete", mock.Anything, mock.Anything, mock.Anything).Return(nil)

		ctx, cancel := context.WithCancel(context.Background())
		require.NoError(t, w.Start(ctx))

		require.Eventually(t, func() bool { return gets.Load() == 1 }, time.Second, time.Millisecond)
		time.Sleep(20 * time.Millisecond)
		require.EqualValues(t, 1, gets.Load())

		cancel()
		close(release)
		require.NoError(t, w.WaitForCompletion())
	})

	t.Run("backs off on poll errors", func(t *testing.T) {
		tw := &mockTaskWorker{}
		w := newTestWorker(tw, &Options{
			Pollers:         1,
			PollingInterval: time.Millisecond,
			MaxPollBackoff:  50 * time.Millisecond,
		})

		var gets atomic.Int32
		tw.On("Get", mock.Anything).Return(nil, errors.New("unavailable")).Run(func(mock.Arguments) {
			gets.Add(1)
		})

		ctx, cancel := context.WithCancel(context.Background())
		require.NoError(t, w.Start(ctx))

		time.Sleep(100 * time.Millisecond)
		cancel()
		require.NoError(t, w.WaitForCompletion())

		// Without backoff there would be ~100 polls
		require.Less(t, gets.Load(), int32(30))
	})

	t.Run("wakes up on signal", func(t *testing.T) {
		tw := &mockTaskWorker{}
		wake := make(chan struct{})
		w := newTestWorker(tw, &Options{
			Pollers:         1,
			PollingInterval: time.Hour,
			Wake:            wake,
		})

		var mu sync.Mutex
		gets := 0
		tw.On("Get", mock.Anything).Return(nil, nil).Run(func(mock.Arguments) {
			mu.Lock()
			defer mu.Unlock()
			gets++
		})

		ctx, cancel := context.WithCancel(context.Background())
		require.NoError(t, w.Start(ctx))

		wake <- struct{}{}

		require.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return gets >= 2
		}, time.Second, time.Millisecond)

		cancel()
		require.NoError(t, w.WaitForCompletion())
	})
}
