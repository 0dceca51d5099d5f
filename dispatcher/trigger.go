package dispatcher

import (
	"context"
	"fmt"

	"github.com/cschleiden/go-dispatch/backend"
	"github.com/cschleiden/go-dispatch/core"
	"github.com/cschleiden/go-dispatch/internal/metrickeys"
	"github.com/cschleiden/go-dispatch/internal/tracing"
	"github.com/cschleiden/go-dispatch/log"
	"github.com/cschleiden/go-dispatch/metrics"
	"github.com/cschleiden/go-dispatch/payload"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// stimulus splits a payload into the hashed key and the remaining data, according to the stimulus
// keys of the activity type. Unknown activity types hash the whole payload.
func (d *Dispatcher) stimulus(activityTypeName string, p payload.Payload) (string, payload.Payload, error) {
	key, data := p, payload.Payload{}
	if desc, err := d.registry.GetActivity(activityTypeName); err == nil {
		key, data = desc.StimulusKey(p), desc.StimulusData(p)
	}

	hash, err := payload.HashString(d.options.Hasher, key)
	if err != nil {
		return "", nil, fmt.Errorf("hashing stimulus: %w", err)
	}

	return hash, data, nil
}

// TriggerWorkflows starts one instance of every published definition whose trigger matches the
// stimulus. The trigger activity is entered as already satisfied by the stimulus.
func (d *Dispatcher) TriggerWorkflows(ctx context.Context, req *core.TriggerWorkflowsRequest) (*TriggerResult, error) {
	ctx, span := d.tracer.Start(ctx, "Dispatcher.TriggerWorkflows", trace.WithAttributes(
		attribute.String(tracing.ActivityType, req.ActivityTypeName),
	))
	defer span.End()

	hash, data, err := d.stimulus(req.ActivityTypeName, req.Payload)
	if err != nil {
		return nil, tracing.WithSpanError(span, err)
	}

	span.SetAttributes(attribute.String(tracing.PayloadHash, hash))

	entries, err := d.index.Lookup(ctx, req.ActivityTypeName, hash)
	if err != nil {
		return nil, tracing.WithSpanError(span, err)
	}

	d.metrics.Distribution(metrickeys.TriggerMatches, metrics.Tags{}, float64(len(entries)))
	span.SetAttributes(attribute.Int(tracing.Matches, len(entries)))

	d.logger.DebugContext(ctx, "matched triggers",
		log.ActivityTypeKey, req.ActivityTypeName,
		log.PayloadHashKey, hash,
		log.MatchesKey, len(entries),
	)

	items := make([]ItemResult, len(entries))

	var g errgroup.Group
	g.SetLimit(d.parallelism())

	for i, entry := range entries {
		g.Go(func() error {
			items[i] = d.triggerOne(ctx, req, entry, data)
			return nil
		})
	}

	_ = g.Wait()

	result := &TriggerResult{
		Outcome:            batchOutcome(items),
		StartedInstanceIDs: []string{},
		Items:              items,
	}

	for _, item := range items {
		if item.Status == ItemOK {
			result.StartedInstanceIDs = append(result.StartedInstanceIDs, item.InstanceID)
		}
	}

	span.SetAttributes(attribute.String(tracing.Outcome, string(result.Outcome)))

	return result, nil
}

func (d *Dispatcher) triggerOne(ctx context.Context, req *core.TriggerWorkflowsRequest, entry backend.TriggerEntry, data payload.Payload) ItemResult {
	item := ItemResult{DefinitionID: entry.DefinitionID}

	def, err := d.backend.Definitions().Get(ctx, entry.DefinitionID, entry.DefinitionVersion)
	if err == nil && !def.IsPublished {
		err = fmt.Errorf("definition %s version %d: %w", def.ID, def.Version, ErrDefinitionNotPublished)
	}
	if err != nil {
		item.Status, item.Err = itemStatus(err), err
		return item
	}

	item.InstanceID = d.instanceID(req.IdempotencyKey, def.ID)

	instance, err := d.start(ctx, &startParams{
		operation:         core.OperationTrigger,
		definition:        def,
		instanceID:        item.InstanceID,
		correlationID:     req.CorrelationID,
		input:             req.Input,
		triggerActivityID: entry.ActivityID,
		triggerPayload:    entry.Payload,
		stimulus:          data,
	})
	if err != nil {
		d.logger.WarnContext(ctx, "could not start triggered instance",
			log.InstanceIDKey, item.InstanceID,
			log.DefinitionIDKey, def.ID,
			"error", err,
		)

		item.Status, item.Err = itemStatus(err), err
		return item
	}

	item.Status = ItemOK
	item.InstanceStatus = instance.Status

	return item
}

func (d *Dispatcher) parallelism() int {
	if d.options.MaxParallelResumes <= 0 {
		return 1
	}

	return d.options.MaxParallelResumes
}
