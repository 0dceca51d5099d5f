// Package dispatcher is the entry point for all stimuli. It resolves definitions, matches triggers
// and bookmarks, serializes work per instance with the lock provider and hands each instance to
// the runner.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/cschleiden/go-dispatch/backend"
	"github.com/cschleiden/go-dispatch/core"
	"github.com/cschleiden/go-dispatch/definition"
	"github.com/cschleiden/go-dispatch/internal/lease"
	"github.com/cschleiden/go-dispatch/internal/metrickeys"
	"github.com/cschleiden/go-dispatch/log"
	"github.com/cschleiden/go-dispatch/metrics"
	"github.com/cschleiden/go-dispatch/registry"
	"github.com/cschleiden/go-dispatch/runner"
	"github.com/cschleiden/go-dispatch/triggers"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// idempotencyNamespace derives instance ids from idempotency keys.
var idempotencyNamespace = uuid.MustParse("5f0c2a4e-6f1d-4c8e-9a55-0d4f4c7b9e21")

type Dispatcher struct {
	backend  backend.Backend
	registry *registry.Registry
	index    *triggers.Index
	runner   *runner.Runner
	options  Options

	clock   clock.Clock
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics metrics.Client

	// inflight holds the cancel functions of runs in progress on this node
	mu       sync.Mutex
	inflight map[string]context.CancelCauseFunc
}

func New(b backend.Backend, r *registry.Registry, opts ...Option) *Dispatcher {
	options := DefaultOptions
	for _, opt := range opts {
		opt(&options)
	}

	return &Dispatcher{
		backend:  b,
		registry: r,
		index:    triggers.NewIndex(b, r, options.Hasher, options.TriggerOptions...),
		runner:   runner.New(b, r, options.Hasher, options.RunnerOptions...),
		options:  options,

		clock:   b.Options().Clock,
		logger:  b.Options().Logger,
		tracer:  b.Tracer(),
		metrics: b.Metrics(),

		inflight: make(map[string]context.CancelCauseFunc),
	}
}

// Index returns the trigger index used by the dispatcher.
func (d *Dispatcher) Index() *triggers.Index {
	return d.index
}

// Publish validates def, assigns the next version and updates the trigger index.
func (d *Dispatcher) Publish(ctx context.Context, def *definition.WorkflowDefinition) (*definition.WorkflowDefinition, error) {
	return d.index.Publish(ctx, def)
}

// SaveDraft stores an unpublished version of def. Starting it fails with ErrDefinitionNotPublished
// until a version is published.
func (d *Dispatcher) SaveDraft(ctx context.Context, def *definition.WorkflowDefinition) (*definition.WorkflowDefinition, error) {
	return d.index.SaveDraft(ctx, def)
}

// instanceID returns a fresh id, or an id derived from the idempotency key so that retried
// deliveries address the same instance.
func (d *Dispatcher) instanceID(idempotencyKey, definitionID string) string {
	if idempotencyKey == "" {
		return uuid.NewString()
	}

	return uuid.NewSHA1(idempotencyNamespace, []byte(definitionID+"\x00"+idempotencyKey)).String()
}

func (d *Dispatcher) resolveDefinition(ctx context.Context, id string, policy core.VersionPolicy) (*definition.WorkflowDefinition, error) {
	defs := d.backend.Definitions()

	if !policy.Latest() {
		def, err := defs.Get(ctx, id, policy.Version)
		if err != nil {
			return nil, err
		}

		if !def.IsPublished {
			return nil, fmt.Errorf("definition %s version %d: %w", id, def.Version, ErrDefinitionNotPublished)
		}

		return def, nil
	}

	def, err := defs.Latest(ctx, id, true)
	if errors.Is(err, backend.ErrDefinitionNotFound) {
		// Distinguish drafts from unknown definitions
		if _, derr := defs.Latest(ctx, id, false); derr == nil {
			return nil, fmt.Errorf("definition %s: %w", id, ErrDefinitionNotPublished)
		}
	}

	return def, err
}

// withLock runs fn while holding the lock of the instance. The lock is renewed in the background
// and fn's context is cancelled with lease.ErrLost if renewal fails. Tracked runs can be
// interrupted by CancelInstance on this node.
func (d *Dispatcher) withLock(ctx context.Context, instanceID string, track bool, fn func(ctx context.Context) error) error {
	locks := d.backend.Locks()
	key := core.LockResourceKey(instanceID)

	h, err := locks.Acquire(ctx, key, d.options.LockTimeout, d.options.LockLease)
	if err != nil {
		if errors.Is(err, backend.ErrLockTimeout) {
			d.metrics.Counter(metrickeys.LockTimeout, metrics.Tags{}, 1)
			d.logger.DebugContext(ctx, "lock timeout", log.InstanceIDKey, instanceID, log.LockKey, key)
		}

		return fmt.Errorf("instance %s: %w", instanceID, err)
	}

	d.metrics.Counter(metrickeys.LockAcquired, metrics.Tags{}, 1)

	runCtx, cancel := context.WithCancelCause(ctx)
	if track {
		d.track(instanceID, cancel)
		defer d.untrack(instanceID)
	}

	rctx, renewer := lease.Start(runCtx, locks, d.clock, d.logger, h, d.options.LockLease)
	defer func() {
		lost := renewer.Lost(rctx)
		h := renewer.Stop()
		cancel(nil)

		if lost {
			d.metrics.Counter(metrickeys.LockLost, metrics.Tags{}, 1)
			return
		}

		if err := locks.Release(context.WithoutCancel(ctx), h); err != nil {
			d.logger.ErrorContext(ctx, "could not release lock", log.LockKey, key, "error", err)
		}
	}()

	return fn(rctx)
}

func (d *Dispatcher) track(instanceID string, cancel context.CancelCauseFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.inflight[instanceID] = cancel
}

func (d *Dispatcher) untrack(instanceID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.inflight, instanceID)
}

// interrupt signals a run of the instance in progress on this node. Returns false if there is none.
func (d *Dispatcher) interrupt(instanceID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	cancel, ok := d.inflight[instanceID]
	if ok {
		cancel(runner.ErrCancelRequested)
	}

	return ok
}

// deleteStale removes a bookmark whose activity is no longer waiting.
func (d *Dispatcher) deleteStale(ctx context.Context, b *core.Bookmark) {
	d.logger.DebugContext(ctx, "removing stale bookmark", log.BookmarkIDKey, b.ID, log.InstanceIDKey, b.InstanceID)

	if err := d.backend.Bookmarks().Delete(ctx, b.ID); err != nil {
		d.logger.ErrorContext(ctx, "could not remove stale bookmark", log.BookmarkIDKey, b.ID, "error", err)
	}
}
