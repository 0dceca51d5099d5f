package dispatcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/cschleiden/go-dispatch/backend"
	"github.com/cschleiden/go-dispatch/core"
	"github.com/cschleiden/go-dispatch/definition"
	"github.com/cschleiden/go-dispatch/internal/metrickeys"
	"github.com/cschleiden/go-dispatch/internal/tracing"
	"github.com/cschleiden/go-dispatch/log"
	"github.com/cschleiden/go-dispatch/metrics"
	"github.com/cschleiden/go-dispatch/payload"
	"github.com/cschleiden/go-dispatch/runner"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type startParams struct {
	operation  core.Operation
	definition *definition.WorkflowDefinition
	instanceID string

	correlationID string
	input         payload.Payload

	triggerActivityID string
	triggerPayload    payload.Payload
	stimulus          payload.Payload
}

// StartDefinition creates an instance of a published definition and runs it until it completes,
// faults or suspends.
func (d *Dispatcher) StartDefinition(ctx context.Context, req *core.StartDefinitionRequest) (*StartResult, error) {
	ctx, span := d.tracer.Start(ctx, "Dispatcher.StartDefinition", trace.WithAttributes(
		attribute.String(tracing.DefinitionID, req.DefinitionID),
	))
	defer span.End()

	def, err := d.resolveDefinition(ctx, req.DefinitionID, req.VersionPolicy)
	if err != nil {
		if errors.Is(err, ErrDefinitionNotFound) || errors.Is(err, ErrDefinitionNotPublished) {
			span.SetAttributes(attribute.String(tracing.Outcome, string(Rejected)))
			return &StartResult{Outcome: Rejected, Err: err}, nil
		}

		return nil, tracing.WithSpanError(span, err)
	}

	instanceID := d.instanceID(req.IdempotencyKey, def.ID)
	span.SetAttributes(
		attribute.String(tracing.InstanceID, instanceID),
		attribute.Int(tracing.DefinitionVersion, def.Version),
	)

	instance, err := d.start(ctx, &startParams{
		operation:     core.OperationStart,
		definition:    def,
		instanceID:    instanceID,
		correlationID: req.CorrelationID,
		input:         req.Input,
	})
	if err != nil {
		if errors.Is(err, backend.ErrLockTimeout) {
			span.SetAttributes(attribute.String(tracing.Outcome, string(Rejected)))
			return &StartResult{Outcome: Rejected, InstanceID: instanceID, Err: err}, nil
		}

		return nil, tracing.WithSpanError(span, err)
	}

	span.SetAttributes(
		attribute.String(tracing.Outcome, string(Succeeded)),
		attribute.String(tracing.Status, string(instance.Status)),
	)

	return &StartResult{
		Outcome:    Succeeded,
		InstanceID: instance.ID,
		Status:     instance.Status,
	}, nil
}

// start creates and runs a new instance under its lock. If the instance already exists, a retry of
// the same idempotent request, it is returned unchanged.
func (d *Dispatcher) start(ctx context.Context, p *startParams) (*core.WorkflowInstance, error) {
	var instance *core.WorkflowInstance

	err := d.withLock(ctx, p.instanceID, true, func(ctx context.Context) error {
		existing, err := d.backend.Instances().Load(ctx, p.instanceID)
		if err == nil {
			d.logger.DebugContext(ctx, "instance already started", log.InstanceIDKey, p.instanceID)
			instance = existing
			return nil
		}

		if !errors.Is(err, backend.ErrInstanceNotFound) {
			return err
		}

		now := d.clock.Now()
		result, err := d.runner.Run(ctx, &runner.Request{
			Operation: p.operation,
			Instance: &core.WorkflowInstance{
				ID:                p.instanceID,
				DefinitionID:      p.definition.ID,
				DefinitionVersion: p.definition.Version,
				CorrelationID:     p.correlationID,
				Status:            core.StatusRunning,
				Variables:         core.Variables{},
				CreatedAt:         now,
				UpdatedAt:         now,
			},
			Definition:        p.definition,
			New:               true,
			TriggerActivityID: p.triggerActivityID,
			TriggerPayload:    p.triggerPayload,
			Stimulus:          p.stimulus,
			Input:             p.input,
		})
		if err != nil {
			return err
		}

		d.metrics.Counter(metrickeys.InstanceStarted, metrics.Tags{metrickeys.Operation: string(p.operation)}, 1)

		d.logger.DebugContext(ctx, "instance started",
			log.InstanceIDKey, p.instanceID,
			log.DefinitionIDKey, p.definition.ID,
			log.DefinitionVersionKey, p.definition.Version,
			log.InstanceStatus, result.Instance.Status,
		)

		instance = result.Instance
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("starting instance of %s: %w", p.definition.ID, err)
	}

	return instance, nil
}
