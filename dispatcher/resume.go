package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/cschleiden/go-dispatch/backend"
	"github.com/cschleiden/go-dispatch/core"
	"github.com/cschleiden/go-dispatch/internal/metrickeys"
	"github.com/cschleiden/go-dispatch/internal/tracing"
	"github.com/cschleiden/go-dispatch/log"
	"github.com/cschleiden/go-dispatch/metrics"
	"github.com/cschleiden/go-dispatch/payload"
	"github.com/cschleiden/go-dispatch/runner"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// ResumeInstance continues a specific instance, optionally at a specific bookmark.
func (d *Dispatcher) ResumeInstance(ctx context.Context, req *core.ResumeInstanceRequest) (*ResumeInstanceResult, error) {
	ctx, span := d.tracer.Start(ctx, "Dispatcher.ResumeInstance", trace.WithAttributes(
		attribute.String(tracing.InstanceID, req.InstanceID),
		attribute.String(tracing.BookmarkID, req.BookmarkID),
	))
	defer span.End()

	result := &ResumeInstanceResult{InstanceID: req.InstanceID}

	err := d.withLock(ctx, req.InstanceID, true, func(ctx context.Context) error {
		instance, err := d.backend.Instances().Load(ctx, req.InstanceID)
		if err != nil {
			return err
		}

		if instance.Status.Terminal() {
			result.Status = instance.Status
			return fmt.Errorf("instance %s is %v: %w", instance.ID, instance.Status, ErrInstanceNotResumable)
		}

		def, err := d.backend.Definitions().Get(ctx, instance.DefinitionID, instance.DefinitionVersion)
		if err != nil {
			return err
		}

		var bookmark *core.Bookmark
		if req.BookmarkID != "" {
			bookmark, err = d.backend.Bookmarks().Get(ctx, req.BookmarkID)
			if err != nil {
				return err
			}

			if bookmark.InstanceID != instance.ID {
				return fmt.Errorf("bookmark %s of instance %s: %w", bookmark.ID, instance.ID, ErrBookmarkNotFound)
			}
		}

		r, err := d.runner.Run(ctx, &runner.Request{
			Operation:  core.OperationResume,
			Instance:   instance,
			Definition: def,
			Bookmark:   bookmark,
			Input:      req.Input,
		})
		if errors.Is(err, runner.ErrNotWaiting) {
			d.deleteStale(ctx, bookmark)
			return fmt.Errorf("bookmark %s: %w", bookmark.ID, ErrBookmarkNotFound)
		}
		if err != nil {
			return err
		}

		d.metrics.Counter(metrickeys.InstanceResumed, metrics.Tags{}, 1)
		result.Status = r.Instance.Status

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
	span.SetAttributes(
		attribute.String(tracing.Outcome, string(Succeeded)),
		attribute.String(tracing.Status, string(result.Status)),
	)

	return result, nil
}

// ResumeBookmarks resumes every bookmark matching the stimulus. Matches are grouped per instance,
// each instance is processed under its own lock and failures of one instance never affect another.
func (d *Dispatcher) ResumeBookmarks(ctx context.Context, req *core.ResumeBookmarksRequest) (*ResumeResult, error) {
	ctx, span := d.tracer.Start(ctx, "Dispatcher.ResumeBookmarks", trace.WithAttributes(
		attribute.String(tracing.ActivityType, req.ActivityTypeName),
	))
	defer span.End()

	hash, data, err := d.stimulus(req.ActivityTypeName, req.Payload)
	if err != nil {
		return nil, tracing.WithSpanError(span, err)
	}

	span.SetAttributes(attribute.String(tracing.PayloadHash, hash))

	bookmarks, err := d.backend.Bookmarks().FindMany(ctx, core.BookmarkFilter{
		ActivityTypeName: req.ActivityTypeName,
		PayloadHash:      hash,
		CorrelationID:    req.CorrelationID,
		InstanceID:       req.InstanceID,
	})
	if err != nil {
		return nil, tracing.WithSpanError(span, fmt.Errorf("finding bookmarks: %w", err))
	}

	d.metrics.Distribution(metrickeys.BookmarkMatches, metrics.Tags{}, float64(len(bookmarks)))
	span.SetAttributes(attribute.Int(tracing.Matches, len(bookmarks)))

	d.logger.DebugContext(ctx, "matched bookmarks",
		log.ActivityTypeKey, req.ActivityTypeName,
		log.PayloadHashKey, hash,
		log.MatchesKey, len(bookmarks),
	)

	// Group by instance, keeping the order in which bookmarks were created
	slices.SortStableFunc(bookmarks, func(a, b *core.Bookmark) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	var instanceIDs []string
	byInstance := make(map[string][]*core.Bookmark)
	for _, b := range bookmarks {
		if _, ok := byInstance[b.InstanceID]; !ok {
			instanceIDs = append(instanceIDs, b.InstanceID)
		}
		byInstance[b.InstanceID] = append(byInstance[b.InstanceID], b)
	}

	items := make([]ItemResult, len(instanceIDs))

	var g errgroup.Group
	g.SetLimit(d.parallelism())

	for i, instanceID := range instanceIDs {
		g.Go(func() error {
			items[i] = d.resumeOne(ctx, instanceID, byInstance[instanceID], req.Input, data)
			return nil
		})
	}

	_ = g.Wait()

	result := &ResumeResult{
		Outcome:            batchOutcome(items),
		ResumedInstanceIDs: []string{},
		Items:              items,
	}

	for _, item := range items {
		if item.Status == ItemOK {
			result.ResumedInstanceIDs = append(result.ResumedInstanceIDs, item.InstanceID)
		}
	}

	span.SetAttributes(attribute.String(tracing.Outcome, string(result.Outcome)))

	return result, nil
}

// resumeOne resumes the matched bookmarks of one instance. Every bookmark is read again under the
// lock, a bookmark burned by a concurrent resume is skipped.
func (d *Dispatcher) resumeOne(ctx context.Context, instanceID string, bookmarks []*core.Bookmark, input, stimulus payload.Payload) ItemResult {
	item := ItemResult{InstanceID: instanceID}
	resumed := 0

	err := d.withLock(ctx, instanceID, true, func(ctx context.Context) error {
		instance, err := d.backend.Instances().Load(ctx, instanceID)
		if errors.Is(err, backend.ErrInstanceNotFound) {
			for _, b := range bookmarks {
				d.deleteStale(ctx, b)
			}
		}
		if err != nil {
			return err
		}

		item.DefinitionID = instance.DefinitionID
		item.InstanceStatus = instance.Status

		if instance.Status.Terminal() {
			for _, b := range bookmarks {
				d.deleteStale(ctx, b)
			}

			return fmt.Errorf("instance %s is %v: %w", instance.ID, instance.Status, ErrInstanceNotFound)
		}

		def, err := d.backend.Definitions().Get(ctx, instance.DefinitionID, instance.DefinitionVersion)
		if err != nil {
			return err
		}

		for _, b := range bookmarks {
			current, err := d.backend.Bookmarks().Get(ctx, b.ID)
			if errors.Is(err, backend.ErrBookmarkNotFound) {
				continue
			}
			if err != nil {
				return err
			}

			r, err := d.runner.Run(ctx, &runner.Request{
				Operation:  core.OperationResume,
				Instance:   instance,
				Definition: def,
				Bookmark:   current,
				Stimulus:   stimulus,
				Input:      input,
			})
			if errors.Is(err, runner.ErrNotWaiting) {
				d.deleteStale(ctx, current)
				continue
			}
			if err != nil {
				return err
			}

			d.metrics.Counter(metrickeys.InstanceResumed, metrics.Tags{}, 1)
			resumed++

			instance = r.Instance
			item.InstanceStatus = instance.Status

			if instance.Status.Terminal() {
				break
			}
		}

		if resumed == 0 {
			return fmt.Errorf("instance %s: %w", instanceID, ErrBookmarkNotFound)
		}

		return nil
	})
	if err != nil {
		item.Status, item.Err = itemStatus(err), err
		if item.Status == ItemFailed {
			d.logger.ErrorContext(ctx, "could not resume instance", log.InstanceIDKey, instanceID, "error", err)
		}

		return item
	}

	item.Status = ItemOK

	return item
}
