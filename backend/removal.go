package backend

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type RemovalOptions struct {
	FinishedBefore time.Time

	// BatchSize limits the number of instances removed per call.
	BatchSize int
}

type RemovalOption func(o *RemovalOptions)

func RemoveFinishedBefore(t time.Time) RemovalOption {
	return func(o *RemovalOptions) {
		o.FinishedBefore = t
	}
}

func RemoveBatchSize(n int) RemovalOption {
	return func(o *RemovalOptions) {
		o.BatchSize = n
	}
}

// RemoveFinishedInstances deletes terminal instances, their bookmarks, jobs and execution log.
// It returns the ids of the removed instances.
func RemoveFinishedInstances(ctx context.Context, b Backend, opts ...RemovalOption) ([]string, error) {
	o := &RemovalOptions{
		FinishedBefore: b.Options().Clock.Now(),
		BatchSize:      100,
	}

	for _, opt := range opts {
		opt(o)
	}

	ids, err := b.Instances().ListFinished(ctx, o.FinishedBefore, o.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("listing finished instances: %w", err)
	}

	removed := make([]string, 0, len(ids))
	for _, id := range ids {
		if err := removeInstance(ctx, b, id); err != nil {
			return removed, fmt.Errorf("removing instance %s: %w", id, err)
		}

		removed = append(removed, id)
	}

	return removed, nil
}

func removeInstance(ctx context.Context, b Backend, id string) error {
	if err := b.Bookmarks().DeleteByInstance(ctx, id); err != nil {
		return err
	}

	if err := b.Jobs().DeleteByInstance(ctx, id); err != nil {
		return err
	}

	if err := b.ExecutionLog().DeleteByInstance(ctx, id); err != nil {
		return err
	}

	if err := b.Instances().Delete(ctx, id); err != nil && !errors.Is(err, ErrInstanceNotFound) {
		return err
	}

	return nil
}
