package tracing

const (
	InstanceID        = "dispatch.instance_id"
	DefinitionID      = "dispatch.definition_id"
	DefinitionVersion = "dispatch.definition_version"
	ActivityType      = "dispatch.activity_type"
	PayloadHash       = "dispatch.payload_hash"
	BookmarkID        = "dispatch.bookmark_id"
	JobID             = "dispatch.job_id"

	Matches = "dispatch.matches"
	Outcome = "dispatch.outcome"
	Status  = "dispatch.status"
)
