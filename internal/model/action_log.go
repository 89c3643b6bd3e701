package model

import "time"

type ActionStatus string

const (
	ActionStatusPerformed ActionStatus = "performed"
	ActionStatusSkipped   ActionStatus = "skipped"
	ActionStatusFailed    ActionStatus = "failed"
)

// ActionLog is one executed task as it was carried out against the platform.
type ActionLog struct {
	DueAt      time.Time    `json:"due_at"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	RemoteID   *string      `json:"remote_id,omitempty"`
	Message    *string      `json:"message,omitempty"`
	Error      *string      `json:"error,omitempty"`
	TenantID   string       `json:"tenant_id"`
	TaskType   string       `json:"task_type"`
	ItemID     string       `json:"item_id"`
	TargetID   string       `json:"target_id"`
	ThreadID   string       `json:"thread_id"`
	Status     ActionStatus `json:"status"`
	ID         int64        `json:"id"`
	TaskID     int64        `json:"task_id"`
}
