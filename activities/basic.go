package activities

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/cschleiden/go-dispatch/activity"
	goerrors "github.com/go-errors/errors"
)

// SetVariable sets the variable "name" to "value".
func SetVariable() activity.Descriptor {
	return activity.Descriptor{
		TypeName: SetVariableType,
		Execute: func(ctx context.Context, ac *activity.Context) (activity.Outcome, error) {
			name, err := ac.Properties.String("name")
			if err != nil {
				return activity.Outcome{}, err
			}

			if err := ac.Variables.Set(name, ac.Properties["value"]); err != nil {
				return activity.Outcome{}, err
			}

			return activity.Done(), nil
		},
	}
}

// Log writes "message" to the instance logger at "level" (debug, info, warn, error).
func Log() activity.Descriptor {
	return activity.Descriptor{
		TypeName: LogType,
		Execute: func(ctx context.Context, ac *activity.Context) (activity.Outcome, error) {
			var level slog.Level
			if err := level.UnmarshalText([]byte(strings.ToUpper(ac.Properties.StringOr("level", "info")))); err != nil {
				return activity.Outcome{}, err
			}

			ac.Logger.Log(ctx, level, ac.Properties.StringOr("message", ""))

			return activity.Done(), nil
		},
	}
}

var ErrFault = errors.New("fault")

// Fault faults the instance with "message".
func Fault() activity.Descriptor {
	return activity.Descriptor{
		TypeName: FaultType,
		Execute: func(ctx context.Context, ac *activity.Context) (activity.Outcome, error) {
			msg := ac.Properties.StringOr("message", "fault activity reached")

			return activity.Outcome{}, goerrors.WrapPrefix(ErrFault, msg, 0)
		},
	}
}

// Finish completes the instance, regardless of pending bookmarks or parallel branches.
func Finish() activity.Descriptor {
	return activity.Descriptor{
		TypeName: FinishType,
		Execute: func(ctx context.Context, ac *activity.Context) (activity.Outcome, error) {
			return activity.Finish(), nil
		},
	}
}
