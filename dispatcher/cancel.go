package dispatcher

import (
	"context"
	"fmt"

	"github.com/cschleiden/go-dispatch/core"
	"github.com/cschleiden/go-dispatch/internal/metrickeys"
	"github.com/cschleiden/go-dispatch/internal/tracing"
	"github.com/cschleiden/go-dispatch/log"
	"github.com/cschleiden/go-dispatch/metrics"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// CancelInstance moves a non-terminal instance to Cancelled and removes its bookmarks and jobs. A
// run of the instance in progress on this node is interrupted first.
func (d *Dispatcher) CancelInstance(ctx context.Context, req *core.CancelInstanceRequest) (*CancelResult, error) {
	ctx, span := d.tracer.Start(ctx, "Dispatcher.CancelInstance", trace.WithAttributes(
		attribute.String(tracing.InstanceID, req.InstanceID),
	))
	defer span.End()

	if d.interrupt(req.InstanceID) {
		d.logger.DebugContext(ctx, "interrupted running instance", log.InstanceIDKey, req.InstanceID)
	}

	result := &CancelResult{InstanceID: req.InstanceID}

	err := d.withLock(ctx, req.InstanceID, false, func(ctx context.Context) error {
		instance, err := d.backend.Instances().Load(ctx, req.InstanceID)
		if err != nil {
			return err
		}

		result.Status = instance.Status

		switch instance.Status {
		case core.StatusCancelled:
			// The interrupted run already persisted the cancellation
			return nil
		case core.StatusCompleted, core.StatusFaulted:
			return fmt.Errorf("instance %s is %v: %w", instance.ID, instance.Status, ErrInstanceNotResumable)
		}

		from := instance.Status
		now := d.clock.Now()

		instance.Status = core.StatusCancelled
		instance.Position = nil
		instance.UpdatedAt = now
		instance.FinishedAt = &now

		if err := d.backend.Instances().Save(ctx, instance); err != nil {
			return fmt.Errorf("saving instance: %w", err)
		}

		if err := d.backend.Bookmarks().DeleteByInstance(ctx, instance.ID); err != nil {
			return fmt.Errorf("deleting bookmarks: %w", err)
		}

		if err := d.backend.Jobs().DeleteByInstance(ctx, instance.ID); err != nil {
			return fmt.Errorf("deleting jobs: %w", err)
		}

		if err := d.backend.ExecutionLog().Append(ctx, &core.LogEntry{
			InstanceID: instance.ID,
			Timestamp:  now,
			Operation:  core.OperationCancel,
			FromStatus: from,
			ToStatus:   core.StatusCancelled,
		}); err != nil {
			return fmt.Errorf("appending log entry: %w", err)
		}

		d.metrics.Counter(metrickeys.InstanceFinished, metrics.Tags{metrickeys.Status: string(core.StatusCancelled)}, 1)
		result.Status = core.StatusCancelled

		return nil
	})
	if err != nil {
		switch itemStatus(err) {
		case ItemNotFound, ItemRejected, ItemLockTimeout:
			result.Outcome, result.Err = Rejected, err
			span.SetAttributes(attribute.String(tracing.Outcome, string(Rejected)))
			return result, nil
		}

		return nil, tracing.WithSpanError(span, err)
	}

	result.Outcome = Succeeded
	span.SetAttributes(attribute.String(tracing.Outcome, string(Succeeded)))

	d.logger.DebugContext(ctx, "instance cancelled", log.InstanceIDKey, req.InstanceID)

	return result, nil
}
