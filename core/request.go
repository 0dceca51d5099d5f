package core

import "github.com/cschleiden/go-dispatch/payload"

// VersionPolicy selects the definition version to start. The zero value selects the latest
// published version.
type VersionPolicy struct {
	Version int `json:"version,omitempty"`
}

func LatestVersion() VersionPolicy {
	return VersionPolicy{}
}

func SpecificVersion(v int) VersionPolicy {
	return VersionPolicy{Version: v}
}

func (vp VersionPolicy) Latest() bool {
	return vp.Version <= 0
}

type StartDefinitionRequest struct {
	DefinitionID  string          `json:"definition_id"`
	VersionPolicy VersionPolicy   `json:"version_policy"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Input         payload.Payload `json:"input,omitempty"`

	// IdempotencyKey makes retried deliveries of the same request start at most one instance.
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type ResumeInstanceRequest struct {
	InstanceID string          `json:"instance_id"`
	BookmarkID string          `json:"bookmark_id,omitempty"`
	Input      payload.Payload `json:"input,omitempty"`
}

type TriggerWorkflowsRequest struct {
	ActivityTypeName string          `json:"activity_type_name"`
	Payload          payload.Payload `json:"payload,omitempty"`
	CorrelationID    string          `json:"correlation_id,omitempty"`
	Input            payload.Payload `json:"input,omitempty"`

	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type ResumeBookmarksRequest struct {
	ActivityTypeName string          `json:"activity_type_name"`
	Payload          payload.Payload `json:"payload,omitempty"`
	CorrelationID    string          `json:"correlation_id,omitempty"`
	InstanceID       string          `json:"instance_id,omitempty"`
	Input            payload.Payload `json:"input,omitempty"`
}

type CancelInstanceRequest struct {
	InstanceID string `json:"instance_id"`
}
