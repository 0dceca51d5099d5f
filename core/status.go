package core

// Status is the lifecycle state of a workflow instance.
type Status string

const (
	StatusRunning   Status = "Running"
	StatusSuspended Status = "Suspended"
	StatusCompleted Status = "Completed"
	StatusFaulted   Status = "Faulted"
	StatusCancelled Status = "Cancelled"
)

// Terminal returns true if no further transition is possible from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFaulted, StatusCancelled:
		return true
	}

	return false
}

func (s Status) Valid() bool {
	switch s {
	case StatusRunning, StatusSuspended, StatusCompleted, StatusFaulted, StatusCancelled:
		return true
	}

	return false
}

func (s Status) String() string {
	return string(s)
}
