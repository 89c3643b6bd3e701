package queue

import (
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"basegraph.app/pagebot/internal/domain"
)

// Message is one intake event read back from the stream.
type Message struct {
	ID         string
	DeliveryID string
	Event      domain.Event
	Attempt    int
	TraceID    string
	Raw        redis.XMessage
}

func eventValues(ev domain.Event, deliveryID, traceID string, attempt int) map[string]any {
	if attempt <= 0 {
		attempt = 1
	}
	values := map[string]any{
		"delivery_id": deliveryID,
		"tenant_id":   ev.TenantID,
		"item_id":     ev.ItemID,
		"thread_id":   ev.ThreadID,
		"kind":        string(ev.Kind),
		"attempt":     attempt,
	}
	if ev.ParentID != "" {
		values["parent_id"] = ev.ParentID
	}
	if ev.AuthorID != "" {
		values["author_id"] = ev.AuthorID
	}
	if !ev.CreatedAt.IsZero() {
		values["created_at"] = ev.CreatedAt.Unix()
	}
	if traceID != "" {
		values["trace_id"] = traceID
	}
	return values
}

func messageValues(msg Message, attempt int) map[string]any {
	return eventValues(msg.Event, msg.DeliveryID, msg.TraceID, attempt)
}

// ParseMessage turns a raw stream entry into a Message. Entries missing
// the tenant, item or kind are rejected.
func ParseMessage(msg redis.XMessage) (Message, error) {
	tenantID, err := parseString(msg.Values, "tenant_id")
	if err != nil {
		return Message{}, err
	}
	itemID, err := parseString(msg.Values, "item_id")
	if err != nil {
		return Message{}, err
	}
	kind, err := parseString(msg.Values, "kind")
	if err != nil {
		return Message{}, err
	}
	if !domain.EventKind(kind).Valid() {
		return Message{}, fmt.Errorf("unknown kind %q", kind)
	}

	createdAt, err := parseOptionalInt64(msg.Values, "created_at")
	if err != nil {
		return Message{}, err
	}
	attempt, err := parseOptionalInt(msg.Values, "attempt")
	if err != nil {
		return Message{}, err
	}
	if attempt == 0 {
		attempt = 1
	}

	ev := domain.Event{
		TenantID: tenantID,
		ItemID:   itemID,
		ThreadID: parseOptionalString(msg.Values, "thread_id"),
		ParentID: parseOptionalString(msg.Values, "parent_id"),
		AuthorID: parseOptionalString(msg.Values, "author_id"),
		Kind:     domain.EventKind(kind),
	}
	if createdAt != nil {
		ev.CreatedAt = time.Unix(*createdAt, 0).UTC()
	}

	return Message{
		ID:         msg.ID,
		DeliveryID: parseOptionalString(msg.Values, "delivery_id"),
		Event:      ev,
		Attempt:    attempt,
		TraceID:    parseOptionalString(msg.Values, "trace_id"),
		Raw:        msg,
	}, nil
}

func parseString(values map[string]any, key string) (string, error) {
	raw, ok := values[key]
	if !ok {
		return "", fmt.Errorf("missing %s", key)
	}
	s := fmt.Sprint(raw)
	if s == "" {
		return "", fmt.Errorf("empty %s", key)
	}
	return s, nil
}

func parseOptionalString(values map[string]any, key string) string {
	raw, ok := values[key]
	if !ok {
		return ""
	}
	return fmt.Sprint(raw)
}

func parseOptionalInt64(values map[string]any, key string) (*int64, error) {
	raw, ok := values[key]
	if !ok {
		return nil, nil
	}
	num, err := strconv.ParseInt(fmt.Sprint(raw), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", key, err)
	}
	return &num, nil
}

func parseOptionalInt(values map[string]any, key string) (int, error) {
	raw, ok := values[key]
	if !ok {
		return 0, nil
	}
	num, err := strconv.Atoi(fmt.Sprint(raw))
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return num, nil
}
