// Package activities contains the built-in activity types.
package activities

import (
	"github.com/cschleiden/go-dispatch/activity"
	"github.com/cschleiden/go-dispatch/registry"
)

const (
	EventType       = "Event"
	DelayType       = "Delay"
	SetVariableType = "SetVariable"
	LogType         = "Log"
	FaultType       = "Fault"
	FinishType      = "Finish"
)

// All returns the descriptors of all built-in activities.
func All() []activity.Descriptor {
	return []activity.Descriptor{
		Event(),
		Delay(),
		SetVariable(),
		Log(),
		Fault(),
		Finish(),
	}
}

// Register adds all built-in activities to r.
func Register(r *registry.Registry) error {
	for _, d := range All() {
		if err := r.RegisterActivity(d); err != nil {
			return err
		}
	}

	return nil
}
