package activities

import (
	"context"

	"github.com/cschleiden/go-dispatch/activity"
	"github.com/cschleiden/go-dispatch/payload"
)

// Delay suspends the instance for a duration. The bookmark is resumed by the scheduler. Properties:
//
//	duration: Go duration string or number of seconds (required)
func Delay() activity.Descriptor {
	return activity.Descriptor{
		TypeName:     DelayType,
		Capabilities: activity.CanSuspend,
		Execute:      executeDelay,
		Resume:       resumeDelay,
	}
}

func executeDelay(ctx context.Context, ac *activity.Context) (activity.Outcome, error) {
	d, err := ac.Properties.Duration("duration")
	if err != nil {
		return activity.Outcome{}, err
	}

	resumeAt := ac.Clock.Now().Add(d)

	b := activity.NewBookmark(payload.Payload{"activity_id": ac.ActivityID})
	b.ResumeAt = &resumeAt

	return activity.Suspend(b), nil
}

func resumeDelay(ctx context.Context, ac *activity.Context, r *activity.Resumption) (activity.Outcome, error) {
	return activity.Done(), nil
}
