package monoprocess

import (
	"context"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cschleiden/go-dispatch/backend"
	"github.com/cschleiden/go-dispatch/core"
	"github.com/cschleiden/go-dispatch/log"
)

type monoprocessBackend struct {
	backend.Backend

	jobSignal     chan struct{}
	signalTimeout time.Duration

	clock  clock.Clock
	logger *slog.Logger
}

var (
	_ backend.Backend     = (*monoprocessBackend)(nil)
	_ backend.JobNotifier = (*monoprocessBackend)(nil)
)

// NewMonoprocessBackend wraps an existing backend and improves its responsiveness
// in case the backend and scheduler are running in the same process. This backend
// uses a channel to notify the scheduler every time a job is scheduled, and again
// when it becomes due. Note that only one scheduler will be notified.
// IMPORTANT: Only use this backend if the backend and scheduler are running in the
// same process.
func NewMonoprocessBackend(b backend.Backend, signalBufferSize int, signalTimeout time.Duration) *monoprocessBackend {
	if signalTimeout <= 0 {
		signalTimeout = time.Second // default
	}

	return &monoprocessBackend{
		Backend:       b,
		jobSignal:     make(chan struct{}, signalBufferSize),
		signalTimeout: signalTimeout,
		clock:         b.Options().Clock,
		logger:        b.Options().Logger,
	}
}

func (b *monoprocessBackend) JobScheduled() <-chan struct{} {
	return b.jobSignal
}

func (b *monoprocessBackend) Jobs() backend.JobStore {
	return &jobStore{JobStore: b.Backend.Jobs(), b: b}
}

type jobStore struct {
	backend.JobStore

	b *monoprocessBackend
}

func (s *jobStore) Schedule(ctx context.Context, job *core.ScheduledJob) error {
	if err := s.JobStore.Schedule(ctx, job); err != nil {
		return err
	}

	if wait := job.FireAt.Sub(s.b.clock.Now()); wait > 0 {
		s.b.logger.DebugContext(ctx, "scheduling timer to notify scheduler", log.JobIDKey, job.ID, "wait", wait)
		// TODO: stop the timer when the job is deleted with its instance
		s.b.clock.AfterFunc(wait, func() { s.b.notifyScheduler(context.Background()) })

		return nil
	}

	s.b.notifyScheduler(ctx)

	return nil
}

func (b *monoprocessBackend) notifyScheduler(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, b.signalTimeout)
	defer cancel()

	select {
	case <-ctx.Done():
		// we didn't manage to notify the scheduler that there is a new job, it
		// will pick it up after the poll interval
		b.logger.DebugContext(ctx, "failed to signal job to scheduler", "reason", ctx.Err())
		return false
	case b.jobSignal <- struct{}{}:
		b.logger.DebugContext(ctx, "signalled a new job to scheduler")
		return true
	}
}
