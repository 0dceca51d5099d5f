package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cschleiden/go-dispatch/activity"
	"github.com/cschleiden/go-dispatch/core"
	"github.com/cschleiden/go-dispatch/definition"
	"github.com/cschleiden/go-dispatch/internal/metrickeys"
	"github.com/cschleiden/go-dispatch/internal/workflowerrors"
	"github.com/cschleiden/go-dispatch/log"
	"github.com/cschleiden/go-dispatch/metrics"
	"github.com/cschleiden/go-dispatch/payload"
	"github.com/google/uuid"
)

// execution is the state of a single run. It works on a copy of the instance, nothing is visible
// to other runs until persist.
type execution struct {
	r   *Runner
	req *Request

	instance *core.WorkflowInstance
	position *core.Position
	graph    *definition.Graph

	created []*core.Bookmark
	jobs    []*core.ScheduledJob
	deleted []string

	steps int

	logger *slog.Logger
}

func (r *Runner) newExecution(req *Request) (*execution, error) {
	if req.Definition == nil || req.Definition.Graph == nil {
		return nil, fmt.Errorf("instance %s: %w", req.Instance.ID, definition.ErrInvalidDefinition)
	}

	instance := req.Instance.Clone()
	if instance.Variables == nil {
		instance.Variables = core.Variables{}
	}

	position, err := core.DecodePosition(instance.Position)
	if err != nil {
		return nil, fmt.Errorf("instance %s: %w", instance.ID, err)
	}

	return &execution{
		r:        r,
		req:      req,
		instance: instance,
		position: position,
		graph:    req.Definition.Graph,
		logger: r.logger.With(
			log.InstanceIDKey, instance.ID,
			log.DefinitionIDKey, instance.DefinitionID,
			log.DefinitionVersionKey, instance.DefinitionVersion,
		),
	}, nil
}

func (e *execution) run(ctx context.Context) error {
	e.instance.Status = core.StatusRunning

	if err := e.enter(ctx); err != nil {
		return err
	}

	for len(e.position.Scheduled) > 0 && e.instance.Status == core.StatusRunning {
		if err := e.interrupted(ctx); err != nil {
			return err
		}

		if e.instance.Status != core.StatusRunning {
			break
		}

		id := e.position.Scheduled[0]
		e.position.Scheduled = e.position.Scheduled[1:]

		node, ok := e.graph.Node(id)
		if !ok {
			e.fault(&definition.Node{ID: id}, fmt.Errorf("node %q does not exist", id))
			break
		}

		e.steps++
		if e.r.options.MaxSteps > 0 && e.steps > e.r.options.MaxSteps {
			e.fault(node, fmt.Errorf("%w: %d", ErrStepLimitExceeded, e.r.options.MaxSteps))
			break
		}

		outcome, err := e.invoke(ctx, node, func(d *activity.Descriptor, ac *activity.Context) (activity.Outcome, error) {
			return d.Execute(ctx, ac)
		})
		if err := e.apply(ctx, node, outcome, err, nil); err != nil {
			return err
		}
	}

	// Cancellation may arrive while the last activity runs
	return e.interrupted(ctx)
}

// enter applies the entry point of the run: the root node for new instances, the trigger
// activity, or the resumed bookmark.
func (e *execution) enter(ctx context.Context) error {
	switch {
	case e.req.Bookmark != nil:
		b := e.req.Bookmark
		if !e.position.IsWaiting(b.ActivityID) {
			return fmt.Errorf("bookmark %s of activity %s: %w", b.ID, b.ActivityID, ErrNotWaiting)
		}

		node, ok := e.graph.Node(b.ActivityID)
		if !ok {
			e.fault(&definition.Node{ID: b.ActivityID, Type: b.ActivityTypeName}, fmt.Errorf("node %q does not exist", b.ActivityID))
			return nil
		}

		if b.BurnOnResume {
			e.deleted = append(e.deleted, b.ID)
		}

		e.steps++
		outcome, err := e.invoke(ctx, node, func(d *activity.Descriptor, ac *activity.Context) (activity.Outcome, error) {
			if d.Resume == nil {
				return activity.Outcome{}, fmt.Errorf("activity type %q cannot be resumed", d.TypeName)
			}

			return d.Resume(ctx, ac, &activity.Resumption{
				BookmarkID: b.ID,
				Token:      b.Token,
				Payload:    b.Payload,
				Stimulus:   e.req.Stimulus,
				Input:      e.req.Input,
			})
		})

		return e.apply(ctx, node, outcome, err, b)

	case e.req.TriggerActivityID != "":
		node, ok := e.graph.Node(e.req.TriggerActivityID)
		if !ok {
			e.fault(&definition.Node{ID: e.req.TriggerActivityID}, fmt.Errorf("node %q does not exist", e.req.TriggerActivityID))
			return nil
		}

		e.steps++
		outcome, err := e.invoke(ctx, node, func(d *activity.Descriptor, ac *activity.Context) (activity.Outcome, error) {
			if !d.Has(activity.CanTrigger) {
				return activity.Outcome{}, fmt.Errorf("activity type %q cannot trigger", d.TypeName)
			}

			return d.Resume(ctx, ac, &activity.Resumption{
				Payload:   e.req.TriggerPayload,
				Stimulus:  e.req.Stimulus,
				Input:     e.req.Input,
				Triggered: true,
			})
		})

		return e.apply(ctx, node, outcome, err, nil)

	case e.req.New:
		if err := mergeInput(e.instance.Variables, e.req.Input); err != nil {
			return err
		}

		e.position.Scheduled = []string{e.graph.Root}

	default:
		// Continue the scheduled work of an interrupted run
		if err := mergeInput(e.instance.Variables, e.req.Input); err != nil {
			return err
		}
	}

	return nil
}

// interrupted inspects a done context. Cancellation requests cancel the instance, every other
// cause aborts the run.
func (e *execution) interrupted(ctx context.Context) error {
	if ctx.Err() == nil {
		return nil
	}

	cause := context.Cause(ctx)
	if errors.Is(cause, ErrCancelRequested) {
		if e.instance.Status == core.StatusRunning {
			e.logger.InfoContext(ctx, "cancelling instance")
			e.instance.Status = core.StatusCancelled
		}

		return nil
	}

	return cause
}

// invoke calls the activity of node. Panics are converted into errors.
func (e *execution) invoke(
	ctx context.Context, node *definition.Node, fn func(*activity.Descriptor, *activity.Context) (activity.Outcome, error),
) (outcome activity.Outcome, err error) {
	d, err := e.r.registry.GetActivity(node.Type)
	if err != nil {
		return activity.Outcome{}, err
	}

	services, err := e.r.registry.Services(d)
	if err != nil {
		return activity.Outcome{}, err
	}

	ac := activity.NewContext(services)
	ac.InstanceID = e.instance.ID
	ac.DefinitionID = e.instance.DefinitionID
	ac.DefinitionVersion = e.instance.DefinitionVersion
	ac.CorrelationID = e.instance.CorrelationID
	ac.ActivityID = node.ID
	ac.Properties = activity.Properties(node.Properties)
	ac.Variables = e.instance.Variables
	ac.Logger = e.logger.With(log.ActivityIDKey, node.ID, log.ActivityTypeKey, node.Type)
	ac.Clock = e.r.clock

	defer func() {
		if r := recover(); r != nil {
			err = workflowerrors.FromPanic(r)
		}
	}()

	return fn(d, ac)
}

// apply continues the run according to the outcome of an activity. resumed is the bookmark the
// activity was entered through, if any.
func (e *execution) apply(ctx context.Context, node *definition.Node, outcome activity.Outcome, err error, resumed *core.Bookmark) error {
	if err != nil {
		e.fault(node, err)
		return nil
	}

	switch {
	case outcome.Finished():
		e.position.Scheduled = nil
		e.position.Waiting = nil
		e.instance.Status = core.StatusCompleted

	case outcome.Suspended():
		if len(outcome.Bookmarks()) == 0 {
			e.fault(node, errors.New("activity suspended without bookmarks"))
			return nil
		}

		if err := e.suspend(node, outcome.Bookmarks()); err != nil {
			e.fault(node, err)
			return nil
		}

	default:
		if resumed != nil && resumed.BurnOnResume {
			// The activity is done waiting, drop its remaining bookmarks
			if err := e.releaseActivity(ctx, node.ID); err != nil {
				return err
			}
		}

		for _, port := range outcome.Ports() {
			e.position.Scheduled = append(e.position.Scheduled, e.graph.Next(node.ID, port)...)
		}
	}

	return nil
}

func (e *execution) suspend(node *definition.Node, requests []activity.BookmarkRequest) error {
	d, err := e.r.registry.GetActivity(node.Type)
	if err != nil {
		return err
	}

	now := e.r.clock.Now()

	for _, br := range requests {
		hash, err := payload.HashString(e.r.hasher, d.StimulusKey(br.Payload))
		if err != nil {
			return fmt.Errorf("hashing bookmark payload: %w", err)
		}

		correlationID := br.CorrelationID
		if correlationID == "" {
			correlationID = e.instance.CorrelationID
		}

		b := &core.Bookmark{
			ID:               uuid.NewString(),
			InstanceID:       e.instance.ID,
			ActivityID:       node.ID,
			ActivityTypeName: node.Type,
			Payload:          br.Payload,
			PayloadHash:      hash,
			CorrelationID:    correlationID,
			BurnOnResume:     br.BurnOnResume,
			Token:            br.Token,
			ResumeAt:         br.ResumeAt,
			CreatedAt:        now,
		}
		e.created = append(e.created, b)

		if br.ResumeAt != nil {
			e.jobs = append(e.jobs, &core.ScheduledJob{
				ID:         uuid.NewString(),
				InstanceID: e.instance.ID,
				BookmarkID: b.ID,
				FireAt:     *br.ResumeAt,
				Request: core.ResumeBookmarksRequest{
					ActivityTypeName: node.Type,
					Payload:          br.Payload,
					CorrelationID:    correlationID,
					InstanceID:       e.instance.ID,
				},
				CreatedAt: now,
			})
		}
	}

	e.position.AddWaiting(node.ID)

	return nil
}

// releaseActivity marks the activity as no longer waiting and schedules all of its bookmarks for
// deletion.
func (e *execution) releaseActivity(ctx context.Context, activityID string) error {
	e.position.RemoveWaiting(activityID)

	bookmarks, err := e.r.backend.Bookmarks().FindByInstance(ctx, e.instance.ID)
	if err != nil {
		return fmt.Errorf("loading bookmarks: %w", err)
	}

	for _, b := range bookmarks {
		if b.ActivityID == activityID {
			e.deleted = append(e.deleted, b.ID)
		}
	}

	return nil
}

func (e *execution) fault(node *definition.Node, err error) {
	e.logger.Error("activity faulted",
		log.ActivityIDKey, node.ID,
		log.ActivityTypeKey, node.Type,
		"error", err,
	)

	e.instance.Incidents = append(e.instance.Incidents, core.Incident{
		ActivityID:   node.ID,
		ActivityType: node.Type,
		Message:      err.Error(),
		Cause:        workflowerrors.FromError(err),
		Timestamp:    e.r.clock.Now(),
	})
	e.instance.Status = core.StatusFaulted
}

// close computes the final status and position.
func (e *execution) close() error {
	now := e.r.clock.Now()

	if e.instance.Status == core.StatusRunning {
		if len(e.position.Waiting) > 0 {
			e.instance.Status = core.StatusSuspended
		} else {
			e.instance.Status = core.StatusCompleted
		}
	}

	if e.instance.Status.Terminal() {
		e.position.Scheduled = nil
		e.position.Waiting = nil
		e.instance.FinishedAt = &now
	}

	pos, err := e.position.Encode()
	if err != nil {
		return fmt.Errorf("encoding position: %w", err)
	}

	e.instance.Position = pos
	e.instance.UpdatedAt = now

	return nil
}

// persist writes the run. New bookmarks are saved before the instance and burned bookmarks are
// deleted after it, so a crash in between leaves a stale bookmark rather than a waiting instance
// without one.
func (e *execution) persist(ctx context.Context, op core.Operation, fromStatus core.Status) error {
	b := e.r.backend
	terminal := e.instance.Status.Terminal()

	if !terminal {
		for _, bm := range e.created {
			if err := b.Bookmarks().Save(ctx, bm); err != nil {
				return fmt.Errorf("saving bookmark: %w", err)
			}
		}

		for _, job := range e.jobs {
			if err := b.Jobs().Schedule(ctx, job); err != nil {
				return fmt.Errorf("scheduling job: %w", err)
			}

			e.r.metrics.Counter(metrickeys.JobScheduled, metrics.Tags{}, 1)
			e.logger.DebugContext(ctx, "scheduled job", log.JobIDKey, job.ID, log.FireAtKey, job.FireAt)
		}
	} else {
		e.created = nil
	}

	if err := b.Instances().Save(ctx, e.instance); err != nil {
		return fmt.Errorf("saving instance: %w", err)
	}

	if terminal {
		if err := b.Bookmarks().DeleteByInstance(ctx, e.instance.ID); err != nil {
			return fmt.Errorf("deleting bookmarks: %w", err)
		}

		if err := b.Jobs().DeleteByInstance(ctx, e.instance.ID); err != nil {
			return fmt.Errorf("deleting jobs: %w", err)
		}
	} else {
		for _, id := range e.deleted {
			if err := b.Bookmarks().Delete(ctx, id); err != nil {
				return fmt.Errorf("deleting bookmark: %w", err)
			}
		}
	}

	if fromStatus != e.instance.Status {
		entry := &core.LogEntry{
			InstanceID: e.instance.ID,
			Timestamp:  e.instance.UpdatedAt,
			Operation:  op,
			FromStatus: fromStatus,
			ToStatus:   e.instance.Status,
		}

		if n := len(e.instance.Incidents); e.instance.Status == core.StatusFaulted && n > 0 {
			entry.ActivityID = e.instance.Incidents[n-1].ActivityID
			entry.Message = e.instance.Incidents[n-1].Message
		}

		if err := b.ExecutionLog().Append(ctx, entry); err != nil {
			return fmt.Errorf("appending execution log: %w", err)
		}
	}

	return nil
}

func mergeInput(vs core.Variables, input payload.Payload) error {
	for k, v := range input {
		if err := vs.Set(k, v); err != nil {
			return err
		}
	}

	return nil
}
