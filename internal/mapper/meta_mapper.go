package mapper

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"basegraph.app/pagebot/internal/domain"
)

// MetaFeedMapper maps page feed webhooks. Only newly added comments and
// posts become events; edits, removals, reactions and test pings are dropped.
type MetaFeedMapper struct{}

func NewMetaFeedMapper() *MetaFeedMapper {
	return &MetaFeedMapper{}
}

type metaPayload struct {
	Object string      `json:"object"`
	Entry  []metaEntry `json:"entry"`
}

type metaEntry struct {
	ID      string       `json:"id"`
	Changes []metaChange `json:"changes"`
}

type metaChange struct {
	Field string     `json:"field"`
	Value *feedValue `json:"value"`
}

type feedValue struct {
	Item        string      `json:"item"`
	Verb        string      `json:"verb"`
	PostID      string      `json:"post_id"`
	ParentID    string      `json:"parent_id"`
	CommentID   string      `json:"comment_id"`
	CommentIDv2 string      `json:"commentId"`
	Comment     *objectRef  `json:"comment"`
	From        *objectRef  `json:"from"`
	CreatedTime json.Number `json:"created_time"`
}

type objectRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// commentID accepts the spellings the platform has used over time.
func (v *feedValue) commentID() string {
	switch {
	case v.CommentID != "":
		return v.CommentID
	case v.Comment != nil && v.Comment.ID != "":
		return v.Comment.ID
	}
	return v.CommentIDv2
}

func (v *feedValue) createdAt() time.Time {
	secs, err := v.CreatedTime.Int64()
	if err != nil || secs <= 0 {
		return time.Time{}
	}
	return time.Unix(secs, 0).UTC()
}

func (v *feedValue) authorID() string {
	if v.From == nil {
		return ""
	}
	return v.From.ID
}

func (m *MetaFeedMapper) Map(ctx context.Context, body []byte) ([]domain.Event, error) {
	var payload metaPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decoding feed payload: %w", err)
	}
	if payload.Object != "page" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedObject, payload.Object)
	}

	var events []domain.Event
	for _, entry := range payload.Entry {
		if len(entry.Changes) == 0 {
			slog.DebugContext(ctx, "feed entry without changes", "page_id", entry.ID)
			continue
		}
		for _, change := range entry.Changes {
			ev, ok := m.mapChange(entry.ID, change)
			if !ok {
				continue
			}
			events = append(events, ev)
		}
	}
	return events, nil
}

func (m *MetaFeedMapper) mapChange(pageID string, change metaChange) (domain.Event, bool) {
	v := change.Value
	if change.Field != "feed" || v == nil || v.Verb != "add" {
		return domain.Event{}, false
	}

	ev := domain.Event{
		TenantID:  pageID,
		AuthorID:  v.authorID(),
		CreatedAt: v.createdAt(),
	}

	switch v.Item {
	case "comment":
		ev.ItemID = v.commentID()
		if ev.ItemID == "" || v.PostID == "" {
			return domain.Event{}, false
		}
		ev.ThreadID = v.PostID
		if v.ParentID == "" || v.ParentID == v.PostID {
			ev.Kind = domain.EventKindTopLevel
			ev.ParentID = v.PostID
		} else {
			ev.Kind = domain.EventKindReply
			ev.ParentID = v.ParentID
		}
	case "status", "photo", "video", "post", "share":
		if v.PostID == "" {
			return domain.Event{}, false
		}
		ev.Kind = domain.EventKindPost
		ev.ItemID = v.PostID
		ev.ThreadID = v.PostID
	default:
		return domain.Event{}, false
	}
	return ev, true
}
