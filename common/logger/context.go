package logger

import (
	"context"
	"log/slog"
	"unicode/utf8"
)

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields are attached to every record logged with a context that carries them.
// Set them once where the value becomes known (intake, admission, task run)
// and every downstream slog.*Context call picks them up.
type LogFields struct {
	TenantID  *string // page id owning the event
	ItemID    *string // comment or post id under admission
	ThreadID  *string // root post id of the conversation
	TaskID    *int64
	TaskType  *string // acknowledge, respond, seed
	MessageID *string // redis stream message id
	Component string  // e.g. "pagebot.scheduler"
}

// WithLogFields merges fields into the context. Non-nil values in fields win.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	merged := mergeFields(GetLogFields(ctx), fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields returns the fields stored in ctx, or the zero value.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

func mergeFields(existing, next LogFields) LogFields {
	result := existing

	if next.TenantID != nil {
		result.TenantID = next.TenantID
	}
	if next.ItemID != nil {
		result.ItemID = next.ItemID
	}
	if next.ThreadID != nil {
		result.ThreadID = next.ThreadID
	}
	if next.TaskID != nil {
		result.TaskID = next.TaskID
	}
	if next.TaskType != nil {
		result.TaskType = next.TaskType
	}
	if next.MessageID != nil {
		result.MessageID = next.MessageID
	}
	if next.Component != "" {
		result.Component = next.Component
	}

	return result
}

func (f LogFields) attrs() []slog.Attr {
	var attrs []slog.Attr
	if f.TenantID != nil {
		attrs = append(attrs, slog.String("tenant_id", *f.TenantID))
	}
	if f.ItemID != nil {
		attrs = append(attrs, slog.String("item_id", *f.ItemID))
	}
	if f.ThreadID != nil {
		attrs = append(attrs, slog.String("thread_id", *f.ThreadID))
	}
	if f.TaskID != nil {
		attrs = append(attrs, slog.Int64("task_id", *f.TaskID))
	}
	if f.TaskType != nil {
		attrs = append(attrs, slog.String("task_type", *f.TaskType))
	}
	if f.MessageID != nil {
		attrs = append(attrs, slog.String("message_id", *f.MessageID))
	}
	if f.Component != "" {
		attrs = append(attrs, slog.String("component", f.Component))
	}
	return attrs
}

// Ptr returns a pointer to v. Handy for inline LogFields literals.
func Ptr[T any](v T) *T {
	return &v
}

// Truncate shortens s to maxLen runes and appends "..." when it cut something.
func Truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	r := []rune(s)
	return string(r[:maxLen]) + "..."
}
