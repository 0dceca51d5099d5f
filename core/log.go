package core

import "time"

type Operation string

const (
	OperationStart   Operation = "start"
	OperationTrigger Operation = "trigger"
	OperationResume  Operation = "resume"
	OperationCancel  Operation = "cancel"
)

// LogEntry is one record of the append-only execution log of an instance.
type LogEntry struct {
	InstanceID string    `json:"instance_id"`
	Sequence   int64     `json:"sequence"`
	Timestamp  time.Time `json:"timestamp"`

	Operation  Operation `json:"operation"`
	ActivityID string    `json:"activity_id,omitempty"`

	// FromStatus is empty for the entry created when the instance is started.
	FromStatus Status `json:"from_status,omitempty"`
	ToStatus   Status `json:"to_status"`

	Message string `json:"message,omitempty"`
}
