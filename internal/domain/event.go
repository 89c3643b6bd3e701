package domain

import "time"

type EventKind string

const (
	EventKindTopLevel EventKind = "top_level"
	EventKindReply    EventKind = "reply"
	// EventKindPost is a freshly published item on the tenant's own feed.
	EventKindPost EventKind = "post"
)

func (k EventKind) Valid() bool {
	switch k {
	case EventKindTopLevel, EventKindReply, EventKindPost:
		return true
	}
	return false
}

// Event is one inbound change notification. It is evaluated once by
// admission and never mutated.
type Event struct {
	CreatedAt time.Time
	TenantID  string
	ItemID    string
	// ThreadID is the root item of the conversation. For comments it is the post id.
	ThreadID string
	ParentID string
	AuthorID string
	Kind     EventKind
}

// Credentials identify a tenant against the remote platform.
type Credentials struct {
	PageID      string
	AccessToken string
}
