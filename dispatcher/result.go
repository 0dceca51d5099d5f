package dispatcher

import (
	"errors"

	"github.com/cschleiden/go-dispatch/backend"
	"github.com/cschleiden/go-dispatch/core"
)

var (
	ErrDefinitionNotFound     = backend.ErrDefinitionNotFound
	ErrDefinitionNotPublished = errors.New("workflow definition is not published")
	ErrInstanceNotFound       = backend.ErrInstanceNotFound
	ErrInstanceNotResumable   = errors.New("workflow instance is not resumable")
	ErrBookmarkNotFound       = backend.ErrBookmarkNotFound
)

type Outcome string

const (
	Succeeded          Outcome = "Succeeded"
	PartiallySucceeded Outcome = "PartiallySucceeded"
	Rejected           Outcome = "Rejected"
)

type ItemStatus string

const (
	ItemOK          ItemStatus = "OK"
	ItemNotFound    ItemStatus = "NotFound"
	ItemLockTimeout ItemStatus = "LockTimeout"
	ItemRejected    ItemStatus = "Rejected"
	ItemFailed      ItemStatus = "Failed"
)

type StartResult struct {
	Outcome Outcome

	InstanceID string
	Status     core.Status

	// Err is the reason for a rejection.
	Err error
}

type ResumeInstanceResult struct {
	Outcome Outcome

	InstanceID string
	Status     core.Status

	Err error
}

// ItemResult is the result for one instance of a batch operation.
type ItemResult struct {
	InstanceID   string
	DefinitionID string

	Status ItemStatus

	// InstanceStatus is the status of the instance after the operation, if it ran.
	InstanceStatus core.Status

	Err error
}

type TriggerResult struct {
	Outcome Outcome

	StartedInstanceIDs []string

	Items []ItemResult
}

type ResumeResult struct {
	Outcome Outcome

	ResumedInstanceIDs []string

	Items []ItemResult
}

type CancelResult struct {
	Outcome Outcome

	InstanceID string
	Status     core.Status

	Err error
}

// batchOutcome summarizes per item statuses. Items that were not found are benign and do not make
// a batch fail.
func batchOutcome(items []ItemResult) Outcome {
	failed := 0
	for _, item := range items {
		switch item.Status {
		case ItemLockTimeout, ItemRejected, ItemFailed:
			failed++
		}
	}

	switch {
	case failed == 0:
		return Succeeded
	case failed < len(items):
		return PartiallySucceeded
	default:
		return Rejected
	}
}

func itemStatus(err error) ItemStatus {
	switch {
	case err == nil:
		return ItemOK
	case errors.Is(err, backend.ErrLockTimeout):
		return ItemLockTimeout
	case errors.Is(err, ErrInstanceNotFound), errors.Is(err, ErrBookmarkNotFound), errors.Is(err, ErrDefinitionNotFound):
		return ItemNotFound
	case errors.Is(err, ErrInstanceNotResumable), errors.Is(err, ErrDefinitionNotPublished):
		return ItemRejected
	}

	return ItemFailed
}
