package activities

import (
	"context"
	"fmt"

	"github.com/cschleiden/go-dispatch/activity"
	"github.com/cschleiden/go-dispatch/payload"
)

// EventKey is the payload field naming the event. It is the only field that is hashed, all other
// stimulus fields are copied into the instance variables.
const EventKey = "event"

// Event waits for, or starts an instance on, a named event. Properties:
//
//	event: name of the event (required)
//	burn: keep the bookmark after it fired when set to false (default true)
func Event() activity.Descriptor {
	return activity.Descriptor{
		TypeName:     EventType,
		Capabilities: activity.CanTrigger | activity.CanSuspend,
		StimulusKeys: []string{EventKey},
		Execute:      executeEvent,
		Resume:       resumeEvent,
		Triggers:     eventTriggers,
	}
}

func eventPayload(props activity.Properties) (payload.Payload, error) {
	name, err := props.String(EventKey)
	if err != nil {
		return nil, err
	}

	if name == "" {
		return nil, fmt.Errorf("property %q must not be empty", EventKey)
	}

	return payload.Payload{EventKey: name}, nil
}

func executeEvent(ctx context.Context, ac *activity.Context) (activity.Outcome, error) {
	p, err := eventPayload(ac.Properties)
	if err != nil {
		return activity.Outcome{}, err
	}

	b := activity.NewBookmark(p)
	if burn, ok := ac.Properties["burn"].(bool); ok {
		b.BurnOnResume = burn
	}

	return activity.Suspend(b), nil
}

func resumeEvent(ctx context.Context, ac *activity.Context, r *activity.Resumption) (activity.Outcome, error) {
	for _, p := range []payload.Payload{r.Stimulus, r.Input} {
		for k, v := range p {
			if err := ac.Variables.Set(k, v); err != nil {
				return activity.Outcome{}, err
			}
		}
	}

	return activity.Done(), nil
}

func eventTriggers(props activity.Properties) ([]payload.Payload, error) {
	p, err := eventPayload(props)
	if err != nil {
		return nil, err
	}

	return []payload.Payload{p}, nil
}
