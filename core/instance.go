package core

import (
	"time"

	"github.com/cschleiden/go-dispatch/internal/workflowerrors"
)

// WorkflowInstance is the mutable execution record of a started definition. It is only mutated
// by the runner while holding the instance lock.
type WorkflowInstance struct {
	ID string `json:"id"`

	DefinitionID      string `json:"definition_id"`
	DefinitionVersion int    `json:"definition_version"`

	CorrelationID string `json:"correlation_id,omitempty"`

	Status Status `json:"status"`

	Variables Variables `json:"variables,omitempty"`

	// Position is the serialized continuation pointer into the activity graph, see Position.
	Position []byte `json:"position,omitempty"`

	Incidents []Incident `json:"incidents,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Clone returns a deep copy of the instance, stores hand out copies so callers can never mutate
// shared state outside of the lock.
func (wi *WorkflowInstance) Clone() *WorkflowInstance {
	if wi == nil {
		return nil
	}

	c := *wi
	c.Variables = wi.Variables.Clone()

	if wi.Position != nil {
		c.Position = append([]byte(nil), wi.Position...)
	}

	if wi.Incidents != nil {
		c.Incidents = append([]Incident(nil), wi.Incidents...)
	}

	if wi.FinishedAt != nil {
		t := *wi.FinishedAt
		c.FinishedAt = &t
	}

	return &c
}

// Incident records an execution fault of an activity.
type Incident struct {
	ActivityID   string                `json:"activity_id"`
	ActivityType string                `json:"activity_type,omitempty"`
	Message      string                `json:"message"`
	Cause        *workflowerrors.Error `json:"cause,omitempty"`
	Timestamp    time.Time             `json:"timestamp"`
}

// LockResourceKey returns the lock key guarding the given instance.
func LockResourceKey(instanceID string) string {
	return "instance:" + instanceID
}
