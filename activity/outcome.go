package activity

import (
	"time"

	"github.com/cschleiden/go-dispatch/definition"
	"github.com/cschleiden/go-dispatch/payload"
)

type outcomeKind int

const (
	outcomeDone outcomeKind = iota
	outcomeSuspend
	outcomeFinish
)

// Outcome tells the runner how to continue after an activity call. Errors are returned
// separately and fault the instance.
type Outcome struct {
	kind      outcomeKind
	ports     []string
	bookmarks []BookmarkRequest
}

// Done completes the activity through the default port.
func Done() Outcome {
	return Outcome{kind: outcomeDone, ports: []string{definition.DefaultPort}}
}

// DoneVia completes the activity and follows the given ports.
func DoneVia(ports ...string) Outcome {
	return Outcome{kind: outcomeDone, ports: ports}
}

// Suspend creates the given bookmarks and parks the activity until one is resumed.
func Suspend(bookmarks ...BookmarkRequest) Outcome {
	return Outcome{kind: outcomeSuspend, bookmarks: bookmarks}
}

// Finish completes the whole instance, dropping all scheduled work and bookmarks.
func Finish() Outcome {
	return Outcome{kind: outcomeFinish}
}

func (o Outcome) Suspended() bool {
	return o.kind == outcomeSuspend
}

func (o Outcome) Finished() bool {
	return o.kind == outcomeFinish
}

func (o Outcome) Ports() []string {
	return o.ports
}

func (o Outcome) Bookmarks() []BookmarkRequest {
	return o.bookmarks
}

// BookmarkRequest asks the runner to persist a bookmark for the current activity.
type BookmarkRequest struct {
	Payload payload.Payload

	// Token is an opaque continuation handed back in Resumption.Token.
	Token string

	BurnOnResume bool

	// CorrelationID overrides the instance correlation id for this bookmark.
	CorrelationID string

	// ResumeAt makes this a timed bookmark resumed by the scheduler.
	ResumeAt *time.Time
}

// NewBookmark returns a request for a bookmark that is burned on resume.
func NewBookmark(p payload.Payload) BookmarkRequest {
	return BookmarkRequest{Payload: p, BurnOnResume: true}
}
