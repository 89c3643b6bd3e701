package actions

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"basegraph.app/pagebot/common/id"
	"basegraph.app/pagebot/common/logger"
	"basegraph.app/pagebot/internal/brain"
	"basegraph.app/pagebot/internal/domain"
	"basegraph.app/pagebot/internal/model"
	"basegraph.app/pagebot/internal/store"
	"basegraph.app/pagebot/internal/tenant"
)

// Platform is the remote side: content reads and the writes tasks perform.
type Platform interface {
	FetchItem(ctx context.Context, creds domain.Credentials, itemID string) (domain.Item, error)
	FetchContainer(ctx context.Context, creds domain.Credentials, postID string) (domain.Container, error)
	PostAction(ctx context.Context, creds domain.Credentials, taskType domain.TaskType, targetID, message string) (string, error)
}

// Writer produces the text of comments.
type Writer interface {
	Reply(ctx context.Context, in brain.ReplyInput) (string, error)
	Opening(ctx context.Context, in brain.OpeningInput) (string, error)
}

// Result describes what a handler did on the platform.
type Result struct {
	Performed bool
	RemoteID  string
	Message   string
}

type Handler func(ctx context.Context, st *tenant.State, task domain.Task) (Result, error)

// Dispatcher routes tasks to handlers by type and writes each outcome to
// the action log.
type Dispatcher struct {
	handlers map[domain.TaskType]Handler
	platform Platform
	writer   Writer
	logs     store.ActionLogStore
}

// NewDispatcher wires the standard handlers. logs may be nil.
func NewDispatcher(platform Platform, writer Writer, logs store.ActionLogStore) *Dispatcher {
	d := &Dispatcher{
		platform: platform,
		writer:   writer,
		logs:     logs,
	}
	d.handlers = map[domain.TaskType]Handler{
		domain.TaskTypeAcknowledge: d.acknowledge,
		domain.TaskTypeRespond:     d.respond,
		domain.TaskTypeSeed:        d.seed,
	}
	return d
}

// Dispatch implements tenant.Dispatcher.
func (d *Dispatcher) Dispatch(ctx context.Context, st *tenant.State, task domain.Task) (bool, error) {
	handler, ok := d.handlers[task.Type]
	if !ok {
		return false, fmt.Errorf("no handler for task type %q", task.Type)
	}

	started := st.Clock().Now()
	res, err := handler(ctx, st, task)

	if err == nil && res.Performed {
		slog.InfoContext(ctx, "action performed",
			"remote_id", res.RemoteID,
			"message", logger.Truncate(res.Message, 120))
	}
	d.record(ctx, st, task, res, err, started)
	return res.Performed, err
}

func (d *Dispatcher) record(ctx context.Context, st *tenant.State, task domain.Task, res Result, runErr error, started time.Time) {
	if d.logs == nil {
		return
	}

	entry := &model.ActionLog{
		ID:         id.New(),
		TenantID:   st.ID,
		TaskID:     task.ID,
		TaskType:   string(task.Type),
		ItemID:     task.ItemID,
		TargetID:   task.TargetID,
		ThreadID:   task.ThreadID,
		Status:     model.ActionStatusPerformed,
		DueAt:      task.DueAt,
		StartedAt:  started,
		FinishedAt: st.Clock().Now(),
	}
	switch {
	case runErr != nil:
		entry.Status = model.ActionStatusFailed
		entry.Error = logger.Ptr(runErr.Error())
	case !res.Performed:
		entry.Status = model.ActionStatusSkipped
	}
	if res.RemoteID != "" {
		entry.RemoteID = logger.Ptr(res.RemoteID)
	}
	if res.Message != "" {
		entry.Message = logger.Ptr(res.Message)
	}

	if err := d.logs.Create(ctx, entry); err != nil {
		slog.WarnContext(ctx, "failed to write action log", "error", err)
	}
}
