package metrickeys

const (
	Prefix = "dispatch."

	// Instances
	InstanceStarted  = Prefix + "instance.started"
	InstanceResumed  = Prefix + "instance.resumed"
	InstanceFinished = Prefix + "instance.finished"
	InstanceRemoved  = Prefix + "instance.removed"

	RunDuration = Prefix + "runner.duration"
	RunSteps    = Prefix + "runner.steps"

	// Dispatcher
	TriggerMatches  = Prefix + "trigger.matches"
	BookmarkMatches = Prefix + "bookmark.matches"

	TriggerCacheSize     = Prefix + "trigger.cache.size"
	TriggerCacheEviction = Prefix + "trigger.cache.eviction"

	// Locks
	LockAcquired = Prefix + "lock.acquired"
	LockTimeout  = Prefix + "lock.timeout"
	LockLost     = Prefix + "lock.lost"

	// Scheduler
	JobScheduled = Prefix + "job.scheduled"
	JobClaimed   = Prefix + "job.claimed"
	JobFired     = Prefix + "job.fired"
	JobDelay     = Prefix + "job.delay"
)

// Tag names
const (
	// Backend being used
	Backend = "backend"

	Operation = "operation"
	Status    = "status"

	// Reason for evicting an entry from the trigger cache
	EvictionReason = "reason"

	ActivityType = "activity_type"
)
