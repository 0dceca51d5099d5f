package runner

import (
	"github.com/cschleiden/go-dispatch/core"
	"github.com/cschleiden/go-dispatch/definition"
	"github.com/cschleiden/go-dispatch/payload"
)

// Request describes one run of an instance. The caller holds the instance lock for the whole run.
type Request struct {
	Operation core.Operation

	Instance   *core.WorkflowInstance
	Definition *definition.WorkflowDefinition

	// New is set when the instance was just created and has not been persisted yet.
	New bool

	// Bookmark is the bookmark being resumed, if any.
	Bookmark *core.Bookmark

	// TriggerActivityID is the activity that started the instance, it is entered through Resume
	// instead of Execute.
	TriggerActivityID string
	TriggerPayload    payload.Payload

	// Stimulus holds the stimulus fields that are not part of the payload hash.
	Stimulus payload.Payload

	Input payload.Payload
}

// Result is the persisted outcome of a run.
type Result struct {
	Instance *core.WorkflowInstance

	// FromStatus is the status before the run, empty for new instances.
	FromStatus core.Status

	// Bookmarks are the bookmarks created during the run.
	Bookmarks []*core.Bookmark

	Steps int
}

func (r *Result) StatusChanged() bool {
	return r.FromStatus != r.Instance.Status
}
