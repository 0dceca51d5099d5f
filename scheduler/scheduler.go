// Package scheduler fires durable timers. Every node polls the job store for due jobs, claims them
// atomically and dispatches the stored request. Of any number of nodes racing for a job, exactly
// one fires it.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/benbjohnson/clock"
	"github.com/cschleiden/go-dispatch/backend"
	"github.com/cschleiden/go-dispatch/core"
	"github.com/cschleiden/go-dispatch/dispatcher"
	"github.com/cschleiden/go-dispatch/internal/metrickeys"
	"github.com/cschleiden/go-dispatch/internal/tracing"
	"github.com/cschleiden/go-dispatch/internal/worker"
	"github.com/cschleiden/go-dispatch/log"
	"github.com/cschleiden/go-dispatch/metrics"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type Scheduler struct {
	options Options

	w *worker.Worker[core.ScheduledJob, jobResult]
}

func New(b backend.Backend, d *dispatcher.Dispatcher, opts ...Option) *Scheduler {
	options := DefaultOptions
	for _, opt := range opts {
		opt(&options)
	}

	if options.NodeID == "" {
		options.NodeID = uuid.NewString()
	}

	logger := b.Options().Logger.With(log.NodeKey, options.NodeID)

	jw := &jobWorker{
		jobs:       b.Jobs(),
		dispatcher: d,
		options:    options,
		clock:      b.Options().Clock,
		logger:     logger,
		tracer:     b.Tracer(),
		metrics:    b.Metrics(),
	}

	wo := &worker.Options{
		Pollers:           options.Pollers,
		MaxParallelTasks:  options.MaxParallelJobs,
		HeartbeatInterval: options.HeartbeatInterval,
		PollingInterval:   options.PollingInterval,
		MaxPollBackoff:    options.MaxPollBackoff,
	}

	if n, ok := b.(backend.JobNotifier); ok {
		wo.Wake = n.JobScheduled()
	}

	return &Scheduler{
		options: options,
		w:       worker.NewWorker[core.ScheduledJob, jobResult](logger, b.Options().Clock, jw, wo),
	}
}

// NodeID returns the claim owner of this scheduler.
func (s *Scheduler) NodeID() string {
	return s.options.NodeID
}

// Start begins polling. Polling stops when ctx is cancelled, jobs in progress finish.
func (s *Scheduler) Start(ctx context.Context) error {
	return s.w.Start(ctx)
}

func (s *Scheduler) WaitForCompletion() error {
	return s.w.WaitForCompletion()
}

type jobResult struct {
	// retry is set when the job could not be applied to every instance and must fire again.
	retry bool
}

type jobWorker struct {
	jobs       backend.JobStore
	dispatcher *dispatcher.Dispatcher
	options    Options

	clock   clock.Clock
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics metrics.Client
}

var _ worker.TaskWorker[core.ScheduledJob, jobResult] = (*jobWorker)(nil)

// Get claims the first due job that no other node claimed in the meantime.
func (jw *jobWorker) Get(ctx context.Context) (*core.ScheduledJob, error) {
	now := jw.clock.Now()

	due, err := jw.jobs.Due(ctx, now, jw.options.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("reading due jobs: %w", err)
	}

	for _, job := range due {
		ok, err := jw.jobs.Claim(ctx, job.ID, jw.options.NodeID, now, now.Add(jw.options.ClaimTimeout))
		if err != nil {
			return nil, fmt.Errorf("claiming job %s: %w", job.ID, err)
		}

		if !ok {
			continue
		}

		jw.metrics.Counter(metrickeys.JobClaimed, metrics.Tags{}, 1)
		jw.metrics.Distribution(metrickeys.JobDelay, metrics.Tags{}, float64(now.Sub(job.FireAt).Milliseconds()))

		job.ClaimedBy = jw.options.NodeID
		return job, nil
	}

	return nil, nil
}

func (jw *jobWorker) Extend(ctx context.Context, job *core.ScheduledJob) error {
	return jw.jobs.Extend(ctx, job.ID, jw.options.NodeID, jw.clock.Now().Add(jw.options.ClaimTimeout))
}

// Execute dispatches the request of the job. Infrastructure errors are returned and leave the
// claim to expire, the job then fires again on any node.
func (jw *jobWorker) Execute(ctx context.Context, job *core.ScheduledJob) (*jobResult, error) {
	ctx, span := jw.tracer.Start(ctx, "Scheduler.FireJob", trace.WithAttributes(
		attribute.String(tracing.JobID, job.ID),
		attribute.String(tracing.InstanceID, job.InstanceID),
	))
	defer span.End()

	logger := jw.logger.With(log.JobIDKey, job.ID, log.InstanceIDKey, job.InstanceID)

	req := job.Request
	r, err := jw.dispatcher.ResumeBookmarks(ctx, &req)
	if err != nil {
		logger.ErrorContext(ctx, "could not fire job", "error", err)
		return nil, tracing.WithSpanError(span, err)
	}

	result := &jobResult{}
	for _, item := range r.Items {
		switch item.Status {
		case dispatcher.ItemLockTimeout, dispatcher.ItemFailed:
			result.retry = true
		}
	}

	span.SetAttributes(attribute.String(tracing.Outcome, string(r.Outcome)))
	logger.DebugContext(ctx, "fired job", log.MatchesKey, len(r.Items), "retry", result.retry)

	return result, nil
}

func (jw *jobWorker) Complete(ctx context.Context, result *jobResult, job *core.ScheduledJob) error {
	if result.retry {
		fireAt := jw.clock.Now().Add(jw.options.RetryDelay)
		if err := jw.jobs.Release(ctx, job.ID, jw.options.NodeID, fireAt); err != nil {
			return fmt.Errorf("releasing job %s: %w", job.ID, err)
		}

		return nil
	}

	if err := jw.jobs.Complete(ctx, job.ID, jw.options.NodeID); err != nil {
		return fmt.Errorf("completing job %s: %w", job.ID, err)
	}

	jw.metrics.Counter(metrickeys.JobFired, metrics.Tags{}, 1)

	return nil
}
