package core

import (
	"time"

	"github.com/cschleiden/go-dispatch/payload"
)

// Bookmark is a persisted suspension point. (ActivityTypeName, PayloadHash) is its lookup key,
// several bookmarks may share it but each one belongs to a single instance.
type Bookmark struct {
	ID         string `json:"id"`
	InstanceID string `json:"instance_id"`

	ActivityID       string `json:"activity_id"`
	ActivityTypeName string `json:"activity_type_name"`

	Payload     payload.Payload `json:"payload,omitempty"`
	PayloadHash string          `json:"payload_hash"`

	CorrelationID string `json:"correlation_id,omitempty"`

	// BurnOnResume deletes the bookmark when it is resumed. Bookmarks that are not burned can fire
	// repeatedly.
	BurnOnResume bool `json:"burn_on_resume"`

	// Token is the continuation handed back to the activity on resume.
	Token string `json:"token,omitempty"`

	// ResumeAt is set for timed bookmarks, the scheduler resumes them at that time.
	ResumeAt *time.Time `json:"resume_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// BookmarkFilter selects bookmarks by lookup key. Empty CorrelationID and InstanceID match any
// value.
type BookmarkFilter struct {
	ActivityTypeName string
	PayloadHash      string
	CorrelationID    string
	InstanceID       string
}

// Matches implements the bookmark matching rule for stores that filter in process.
func (f BookmarkFilter) Matches(b *Bookmark) bool {
	if b.ActivityTypeName != f.ActivityTypeName || b.PayloadHash != f.PayloadHash {
		return false
	}

	if f.CorrelationID != "" && b.CorrelationID != f.CorrelationID {
		return false
	}

	if f.InstanceID != "" && b.InstanceID != f.InstanceID {
		return false
	}

	return true
}
