package backend

import (
	"context"
	"errors"
	"time"

	"github.com/cschleiden/go-dispatch/core"
	"github.com/cschleiden/go-dispatch/definition"
	"github.com/cschleiden/go-dispatch/metrics"
	"github.com/cschleiden/go-dispatch/payload"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrInstanceNotFound        = errors.New("workflow instance not found")
	ErrDefinitionNotFound      = errors.New("workflow definition not found")
	ErrDefinitionVersionExists = errors.New("workflow definition version already exists")
	ErrBookmarkNotFound        = errors.New("bookmark not found")

	// ErrLockTimeout is returned when a lock could not be acquired within the timeout. It is an
	// expected outcome under contention.
	ErrLockTimeout = errors.New("lock acquisition timed out")

	// ErrLockExpired is returned when a handle is no longer the valid holder of its lock.
	ErrLockExpired = errors.New("lock expired")

	// ErrClaimLost is returned when a job claim is no longer held by the given owner.
	ErrClaimLost = errors.New("job claim lost")
)

const TracerName = "go-dispatch"

// InstanceStore persists workflow instances.
type InstanceStore interface {
	// Load returns ErrInstanceNotFound if the instance does not exist.
	Load(ctx context.Context, id string) (*core.WorkflowInstance, error)

	// Save creates or replaces the instance.
	Save(ctx context.Context, instance *core.WorkflowInstance) error

	Delete(ctx context.Context, id string) error

	// ListFinished returns ids of terminal instances that finished before the given time.
	ListFinished(ctx context.Context, before time.Time, limit int) ([]string, error)
}

// BookmarkStore persists suspension points. Stores must be able to query efficiently by
// (ActivityTypeName, PayloadHash).
type BookmarkStore interface {
	Save(ctx context.Context, bookmark *core.Bookmark) error

	// Delete removes the bookmark, deleting a missing bookmark is not an error.
	Delete(ctx context.Context, id string) error

	// Get returns ErrBookmarkNotFound if the bookmark does not exist.
	Get(ctx context.Context, id string) (*core.Bookmark, error)

	FindMany(ctx context.Context, filter core.BookmarkFilter) ([]*core.Bookmark, error)

	FindByInstance(ctx context.Context, instanceID string) ([]*core.Bookmark, error)

	DeleteByInstance(ctx context.Context, instanceID string) error
}

// DefinitionStore persists versioned definitions. Rows are immutable, Save fails with
// ErrDefinitionVersionExists if the version is already stored.
type DefinitionStore interface {
	Save(ctx context.Context, def *definition.WorkflowDefinition) error

	// Get returns ErrDefinitionNotFound if the version does not exist.
	Get(ctx context.Context, id string, version int) (*definition.WorkflowDefinition, error)

	// Latest returns the highest version, restricted to published versions if publishedOnly is
	// set. Returns ErrDefinitionNotFound if there is none.
	Latest(ctx context.Context, id string, publishedOnly bool) (*definition.WorkflowDefinition, error)
}

// TriggerEntry maps (ActivityTypeName, PayloadHash) to a definition that starts on it.
type TriggerEntry struct {
	ActivityTypeName string          `json:"activity_type_name"`
	PayloadHash      string          `json:"payload_hash"`
	Payload          payload.Payload `json:"payload,omitempty"`

	DefinitionID      string `json:"definition_id"`
	DefinitionVersion int    `json:"definition_version"`
	ActivityID        string `json:"activity_id"`
}

// TriggerStore persists the trigger index.
type TriggerStore interface {
	// ReplaceForDefinition atomically replaces all entries of the given definition. Concurrent
	// readers observe either the old or the new set, never a mix.
	ReplaceForDefinition(ctx context.Context, definitionID string, entries []TriggerEntry) error

	Find(ctx context.Context, activityTypeName, payloadHash string) ([]TriggerEntry, error)
}

// JobStore persists scheduled jobs. Claim must be an atomic compare-and-set: of any number of
// concurrent claims for the same job, at most one returns true.
type JobStore interface {
	Schedule(ctx context.Context, job *core.ScheduledJob) error

	// Due returns jobs with FireAt <= now that are unclaimed or whose claim expired.
	Due(ctx context.Context, now time.Time, limit int) ([]*core.ScheduledJob, error)

	// Claim claims the job for owner until claimUntil if it is still claimable at now.
	Claim(ctx context.Context, id, owner string, now, claimUntil time.Time) (bool, error)

	// Extend moves the claim expiry of a job claimed by owner. Returns ErrClaimLost if owner does
	// not hold the claim.
	Extend(ctx context.Context, id, owner string, claimUntil time.Time) error

	// Complete deletes a job claimed by owner.
	Complete(ctx context.Context, id, owner string) error

	// Release drops the claim of owner and moves the job to fireAt.
	Release(ctx context.Context, id, owner string, fireAt time.Time) error

	DeleteByInstance(ctx context.Context, instanceID string) error
}

// ExecutionLogStore is the append-only log of status changes per instance.
type ExecutionLogStore interface {
	// Append assigns the next sequence number of the instance to the entry and stores it.
	Append(ctx context.Context, entry *core.LogEntry) error

	List(ctx context.Context, instanceID string) ([]*core.LogEntry, error)

	DeleteByInstance(ctx context.Context, instanceID string) error
}

type Backend interface {
	Definitions() DefinitionStore
	Instances() InstanceStore
	Bookmarks() BookmarkStore
	Triggers() TriggerStore
	Jobs() JobStore
	ExecutionLog() ExecutionLogStore
	Locks() LockProvider

	// Tracer returns the configured trace provider for the backend
	Tracer() trace.Tracer

	// Metrics returns the configured metrics client for the backend
	Metrics() metrics.Client

	// Options returns the configured options for the backend
	Options() *Options

	// Close closes any underlying resources
	Close() error
}

// JobNotifier is implemented by backends that can signal newly scheduled jobs, allowing the
// scheduler to poll less frequently.
type JobNotifier interface {
	JobScheduled() <-chan struct{}
}
