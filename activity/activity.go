// Package activity defines what the runner needs to know about an activity type: its capability
// tags, its entry points and the explicit context it is executed with.
package activity

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/cschleiden/go-dispatch/payload"
)

// Capability is a closed set of tags the runner branches on.
type Capability uint8

const (
	// CanTrigger activities can start new instances in response to a stimulus.
	CanTrigger Capability = 1 << iota

	// CanSuspend activities can create bookmarks and be resumed later.
	CanSuspend
)

func (c Capability) String() string {
	switch c {
	case 0:
		return "None"
	case CanTrigger:
		return "CanTrigger"
	case CanSuspend:
		return "CanSuspend"
	case CanTrigger | CanSuspend:
		return "CanTrigger|CanSuspend"
	}

	return fmt.Sprintf("Capability(%d)", uint8(c))
}

// ExecuteFunc runs an activity when the runner reaches its node.
type ExecuteFunc func(ctx context.Context, ac *Context) (Outcome, error)

// ResumeFunc runs an activity when one of its bookmarks is resumed, or when a trigger starts an
// instance at this activity.
type ResumeFunc func(ctx context.Context, ac *Context, r *Resumption) (Outcome, error)

// TriggerFunc returns the candidate payload fragments that start a definition containing a node
// with the given properties. It is called once, at publish time.
type TriggerFunc func(props Properties) ([]payload.Payload, error)

// Descriptor describes an activity type.
type Descriptor struct {
	TypeName     string
	Capabilities Capability

	// StimulusKeys restricts which payload fields take part in hashing. A stimulus is projected to
	// these keys before it is hashed, the remaining fields are handed to the activity as
	// Resumption.Stimulus. Empty means the whole payload is hashed.
	StimulusKeys []string

	// Services lists the named services the activity needs. Only these are available through
	// Context.Service.
	Services []string

	Execute  ExecuteFunc
	Resume   ResumeFunc
	Triggers TriggerFunc
}

func (d *Descriptor) Has(c Capability) bool {
	return d.Capabilities&c == c
}

// StimulusKey returns the part of p that is hashed for this activity type.
func (d *Descriptor) StimulusKey(p payload.Payload) payload.Payload {
	return p.Project(d.StimulusKeys)
}

// StimulusData returns the part of p that is not hashed.
func (d *Descriptor) StimulusData(p payload.Payload) payload.Payload {
	if len(d.StimulusKeys) == 0 {
		return payload.Payload{}
	}

	return p.Without(d.StimulusKeys)
}

var ErrInvalidDescriptor = errors.New("invalid activity descriptor")

func (d *Descriptor) Validate() error {
	if d.TypeName == "" {
		return fmt.Errorf("%w: missing type name", ErrInvalidDescriptor)
	}

	if d.Execute == nil {
		return fmt.Errorf("%w: %s has no Execute", ErrInvalidDescriptor, d.TypeName)
	}

	if (d.Has(CanSuspend) || d.Has(CanTrigger)) && d.Resume == nil {
		return fmt.Errorf("%w: %s declares %v but has no Resume", ErrInvalidDescriptor, d.TypeName, d.Capabilities)
	}

	if d.Has(CanTrigger) && d.Triggers == nil {
		return fmt.Errorf("%w: %s can trigger but has no Triggers", ErrInvalidDescriptor, d.TypeName)
	}

	if slices.Contains(d.StimulusKeys, "") {
		return fmt.Errorf("%w: %s has an empty stimulus key", ErrInvalidDescriptor, d.TypeName)
	}

	return nil
}

// Resumption is handed to ResumeFunc.
type Resumption struct {
	// BookmarkID is empty when the activity is entered through a trigger.
	BookmarkID string

	// Token is the continuation the activity stored in its bookmark.
	Token string

	// Payload is the bookmark (or trigger fragment) payload.
	Payload payload.Payload

	// Stimulus holds the stimulus fields that were not part of the hash.
	Stimulus payload.Payload

	Input payload.Payload

	Triggered bool
}
