package core

import "time"

// ScheduledJob is a durable timer. When FireAt has passed, exactly one node claims it and
// dispatches Request.
type ScheduledJob struct {
	ID         string `json:"id"`
	InstanceID string `json:"instance_id"`
	BookmarkID string `json:"bookmark_id,omitempty"`

	FireAt time.Time `json:"fire_at"`

	Request ResumeBookmarksRequest `json:"request"`

	ClaimedBy      string     `json:"claimed_by,omitempty"`
	ClaimExpiresAt *time.Time `json:"claim_expires_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Claimable returns true if the job is due and not held by a valid claim at now.
func (j *ScheduledJob) Claimable(now time.Time) bool {
	if j.FireAt.After(now) {
		return false
	}

	return j.ClaimedBy == "" || j.ClaimExpiresAt == nil || j.ClaimExpiresAt.Before(now)
}
