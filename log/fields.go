package log

const (
	NamespaceKey = "dispatch"

	InstanceIDKey    = NamespaceKey + ".instance.id"
	InstanceStatus   = NamespaceKey + ".instance.status"
	CorrelationIDKey = NamespaceKey + ".correlation_id"

	DefinitionIDKey      = NamespaceKey + ".definition.id"
	DefinitionVersionKey = NamespaceKey + ".definition.version"

	ActivityIDKey   = NamespaceKey + ".activity.id"
	ActivityTypeKey = NamespaceKey + ".activity.type"

	BookmarkIDKey  = NamespaceKey + ".bookmark.id"
	PayloadHashKey = NamespaceKey + ".payload.hash"

	LockKey   = NamespaceKey + ".lock.key"
	LockOwner = NamespaceKey + ".lock.owner"

	JobIDKey  = NamespaceKey + ".job.id"
	FireAtKey = NamespaceKey + ".job.fire_at"
	NodeKey   = NamespaceKey + ".node"

	MatchesKey  = NamespaceKey + ".matches"
	CountKey    = NamespaceKey + ".count"
	StepsKey    = NamespaceKey + ".steps"
	DurationKey = NamespaceKey + ".duration_ms"
)
