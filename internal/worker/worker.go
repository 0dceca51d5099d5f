// Package worker runs a poll/execute/complete loop over claimable tasks. Tasks are only fetched
// when a slot to execute them is free, so a node never claims work it cannot start.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
)

type TaskWorker[Task, Result any] interface {
	// Get claims the next task. It returns nil if there is nothing to do.
	Get(context.Context) (*Task, error)

	// Extend keeps the claim of a task alive while it executes.
	Extend(context.Context, *Task) error

	Execute(context.Context, *Task) (*Result, error)
	Complete(context.Context, *Result, *Task) error
}

type Options struct {
	Pollers int

	MaxParallelTasks int

	// HeartbeatInterval is the interval at which Extend is called for running tasks. Zero
	// disables heartbeats.
	HeartbeatInterval time.Duration

	// PollingInterval is the wait between polls that returned no task.
	PollingInterval time.Duration

	// MaxPollBackoff bounds the wait after failed polls.
	MaxPollBackoff time.Duration

	// Wake triggers an immediate poll when signalled.
	Wake <-chan struct{}
}

type Worker[Task, Result any] struct {
	options *Options

	tw TaskWorker[Task, Result]

	queue *workQueue[Task]

	clock  clock.Clock
	logger *slog.Logger

	pollersWg sync.WaitGroup

	dispatcherDone chan struct{}
}

func NewWorker[Task, Result any](
	logger *slog.Logger, clk clock.Clock, tw TaskWorker[Task, Result], options *Options,
) *Worker[Task, Result] {
	if options.MaxPollBackoff < options.PollingInterval {
		options.MaxPollBackoff = options.PollingInterval
	}

	return &Worker[Task, Result]{
		tw:             tw,
		options:        options,
		queue:          newWorkQueue[Task](options.MaxParallelTasks),
		clock:          clk,
		logger:         logger,
		dispatcherDone: make(chan struct{}),
	}
}

func (w *Worker[Task, Result]) Start(ctx context.Context) error {
	w.pollersWg.Add(w.options.Pollers)

	for i := 0; i < w.options.Pollers; i++ {
		go w.poller(ctx)
	}

	go w.dispatcher()

	return nil
}

// WaitForCompletion blocks until all pollers stopped and all fetched tasks finished. Pollers stop
// when the context passed to Start is cancelled.
func (w *Worker[Task, Result]) WaitForCompletion() error {
	// Wait for task pollers to finish
	w.pollersWg.Wait()

	// Wait for tasks to finish
	close(w.queue.tasks)
	<-w.dispatcherDone

	return nil
}

func (w *Worker[Task, Result]) poller(ctx context.Context) {
	defer w.pollersWg.Done()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.options.PollingInterval
	b.MaxInterval = w.options.MaxPollBackoff
	b.MaxElapsedTime = 0
	b.Clock = w.clock

	for {
		if err := w.queue.reserve(ctx); err != nil {
			return
		}

		task, err := w.tw.Get(ctx)
		if err != nil || task == nil {
			w.queue.release()

			if ctx.Err() != nil {
				return
			}

			wait := w.options.PollingInterval
			if err != nil {
				w.logger.ErrorContext(ctx, "error polling task", "error", err)
				wait = b.NextBackOff()
			} else {
				b.Reset()
			}

			if !w.wait(ctx, wait) {
				return
			}

			continue
		}

		b.Reset()

		if err := w.queue.add(ctx, task); err != nil {
			w.queue.release()
			return
		}

		// check for new tasks right away
	}
}

// wait sleeps for d or until the worker is woken up. Returns false if ctx is done.
func (w *Worker[Task, Result]) wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	t := w.clock.Timer(d)
	defer t.Stop()

	select {
	case <-t.C:
	case <-w.options.Wake:
	case <-ctx.Done():
		return false
	}

	return true
}

func (w *Worker[Task, Result]) dispatcher() {
	var wg sync.WaitGroup

	for t := range w.queue.tasks {
		wg.Add(1)

		go func() {
			defer wg.Done()
			defer w.queue.release()

			// Create new context to allow tasks to complete when root context is canceled
			if err := w.handle(context.Background(), t); err != nil {
				w.logger.Error("could not handle task", "error", err)
			}
		}()
	}

	wg.Wait()

	close(w.dispatcherDone)
}

var errHeartbeatFailed = errors.New("task heartbeat failed")

func (w *Worker[Task, Result]) handle(ctx context.Context, t *Task) error {
	if w.options.HeartbeatInterval > 0 {
		// Start heartbeat while processing task, processing is aborted when the claim is lost
		var cancel context.CancelCauseFunc
		ctx, cancel = context.WithCancelCause(ctx)

		done := make(chan struct{})
		defer func() {
			cancel(nil)
			<-done
		}()

		go func() {
			defer close(done)
			w.heartbeatTask(ctx, t, cancel)
		}()
	}

	result, err := w.tw.Execute(ctx, t)
	if err != nil {
		return err
	}

	if cause := context.Cause(ctx); errors.Is(cause, errHeartbeatFailed) {
		return cause
	}

	return w.tw.Complete(ctx, result, t)
}

func (w *Worker[Task, Result]) heartbeatTask(ctx context.Context, task *Task, abort context.CancelCauseFunc) {
	t := w.clock.Ticker(w.options.HeartbeatInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := w.tw.Extend(ctx, task); err != nil {
				if ctx.Err() != nil {
					return
				}

				w.logger.ErrorContext(ctx, "could not heartbeat task", "error", err)
				abort(errHeartbeatFailed)
				return
			}
		}
	}
}
