// Package runner interprets the activity graph of a workflow instance. A run starts at the root
// node, a trigger activity or a resumed bookmark and executes activities until the instance
// completes, faults, is cancelled or waits for a bookmark. The caller holds the instance lock.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/benbjohnson/clock"
	"github.com/cschleiden/go-dispatch/backend"
	"github.com/cschleiden/go-dispatch/internal/lease"
	"github.com/cschleiden/go-dispatch/internal/metrickeys"
	"github.com/cschleiden/go-dispatch/internal/tracing"
	"github.com/cschleiden/go-dispatch/log"
	"github.com/cschleiden/go-dispatch/metrics"
	"github.com/cschleiden/go-dispatch/payload"
	"github.com/cschleiden/go-dispatch/registry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrCancelRequested is the context cause used to cancel an in-flight run.
	ErrCancelRequested = errors.New("instance cancellation requested")

	// ErrNotWaiting is returned when a bookmark is resumed whose activity is no longer waiting.
	// The bookmark is stale and can be removed.
	ErrNotWaiting = errors.New("activity is not waiting")

	ErrStepLimitExceeded = errors.New("step limit exceeded")
)

type Runner struct {
	backend  backend.Backend
	registry *registry.Registry
	hasher   payload.Hasher
	options  Options

	clock   clock.Clock
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics metrics.Client
}

func New(b backend.Backend, r *registry.Registry, hasher payload.Hasher, opts ...Option) *Runner {
	options := DefaultOptions
	for _, opt := range opts {
		opt(&options)
	}

	if hasher == nil {
		hasher = payload.DefaultHasher
	}

	return &Runner{
		backend:  b,
		registry: r,
		hasher:   hasher,
		options:  options,

		clock:   b.Options().Clock,
		logger:  b.Options().Logger,
		tracer:  b.Tracer(),
		metrics: b.Metrics(),
	}
}

// Run executes the instance and persists the result. Activity errors fault the instance and are
// not returned, the error return is reserved for infrastructure failures, ErrNotWaiting and a
// lost lock (lease.ErrLost). Nothing is persisted when an error is returned.
func (r *Runner) Run(ctx context.Context, req *Request) (*Result, error) {
	ctx, span := r.tracer.Start(ctx, "Runner.Run", trace.WithAttributes(
		attribute.String(tracing.InstanceID, req.Instance.ID),
		attribute.String(tracing.DefinitionID, req.Definition.ID),
		attribute.Int(tracing.DefinitionVersion, req.Definition.Version),
	))
	defer span.End()

	timer := metrics.NewTimer(r.metrics, r.clock, metrickeys.RunDuration, metrics.Tags{
		metrickeys.Operation: string(req.Operation),
	})
	defer timer.Stop()

	e, err := r.newExecution(req)
	if err != nil {
		return nil, tracing.WithSpanError(span, err)
	}

	fromStatus := req.Instance.Status
	if req.New {
		fromStatus = ""
	}

	if err := e.run(ctx); err != nil {
		return nil, tracing.WithSpanError(span, err)
	}

	if err := e.close(); err != nil {
		return nil, tracing.WithSpanError(span, err)
	}

	// Never write state once another node may hold the lock
	if cause := context.Cause(ctx); errors.Is(cause, lease.ErrLost) {
		return nil, tracing.WithSpanError(span, fmt.Errorf("persisting instance %s: %w", req.Instance.ID, lease.ErrLost))
	}

	if err := e.persist(context.WithoutCancel(ctx), req.Operation, fromStatus); err != nil {
		return nil, tracing.WithSpanError(span, err)
	}

	r.metrics.Distribution(metrickeys.RunSteps, metrics.Tags{}, float64(e.steps))
	if e.instance.Status.Terminal() {
		r.metrics.Counter(metrickeys.InstanceFinished, metrics.Tags{metrickeys.Status: string(e.instance.Status)}, 1)
	}

	span.SetAttributes(attribute.String(tracing.Status, string(e.instance.Status)))

	e.logger.DebugContext(ctx, "run finished",
		log.InstanceStatus, e.instance.Status,
		log.StepsKey, e.steps,
	)

	return &Result{
		Instance:   e.instance.Clone(),
		FromStatus: fromStatus,
		Bookmarks:  e.created,
		Steps:      e.steps,
	}, nil
}
