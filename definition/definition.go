// Package definition contains the immutable, versioned workflow templates and their activity
// graphs.
package definition

import (
	"errors"
	"fmt"
	"time"

	"github.com/cschleiden/go-dispatch/payload"
)

// DefaultPort is the outgoing port an activity completes through unless it names another one.
const DefaultPort = "done"

// WorkflowDefinition is a versioned template. After publishing it is never mutated, a changed
// definition is published as a new version.
type WorkflowDefinition struct {
	ID          string `json:"id" yaml:"id"`
	Version     int    `json:"version" yaml:"version"`
	IsPublished bool   `json:"is_published" yaml:"-"`

	Graph *Graph `json:"graph" yaml:"graph"`

	// Triggers are computed when the definition is published.
	Triggers []TriggerDescriptor `json:"triggers,omitempty" yaml:"-"`

	CreatedAt time.Time `json:"created_at" yaml:"-"`
}

// TriggerDescriptor is one (activity type, payload fragment) pair that starts the definition.
type TriggerDescriptor struct {
	ActivityID       string          `json:"activity_id"`
	ActivityTypeName string          `json:"activity_type_name"`
	Payload          payload.Payload `json:"payload,omitempty"`
	PayloadHash      string          `json:"payload_hash"`
}

// Clone returns a deep copy of the definition's graph and triggers.
func (d *WorkflowDefinition) Clone() *WorkflowDefinition {
	if d == nil {
		return nil
	}

	c := *d
	c.Graph = d.Graph.Clone()
	if d.Triggers != nil {
		c.Triggers = append([]TriggerDescriptor(nil), d.Triggers...)
	}

	return &c
}

var (
	ErrInvalidDefinition = errors.New("invalid workflow definition")
)

// Validate checks the structural integrity of the definition.
func (d *WorkflowDefinition) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidDefinition)
	}

	if d.Graph == nil {
		return fmt.Errorf("%w: %s has no graph", ErrInvalidDefinition, d.ID)
	}

	if err := d.Graph.Validate(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidDefinition, d.ID, err)
	}

	return nil
}
