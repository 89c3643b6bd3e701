package dto

import "time"

type TenantSnapshotResponse struct {
	TenantID  string                `json:"tenant_id"`
	Name      string                `json:"name,omitempty"`
	Queued    int                   `json:"queued"`
	InFlight  int                   `json:"in_flight"`
	Seen      int                   `json:"seen"`
	Threads   int                   `json:"threads"`
	HourCount int                   `json:"hour_count"`
	DayCount  int                   `json:"day_count"`
	Gates     map[string]*time.Time `json:"gates"`
	Pending   []PendingTaskResponse `json:"pending"`
}

type PendingTaskResponse struct {
	ID       int64     `json:"id"`
	Type     string    `json:"type"`
	ItemID   string    `json:"item_id"`
	TargetID string    `json:"target_id"`
	ThreadID string    `json:"thread_id"`
	DueAt    time.Time `json:"due_at"`
}

type ListTenantsResponse struct {
	KillSwitch bool                     `json:"kill_switch"`
	Tenants    []TenantSnapshotResponse `json:"tenants"`
}

type KillSwitchRequest struct {
	Disabled *bool `json:"disabled" binding:"required"`
}

type KillSwitchResponse struct {
	Disabled bool `json:"disabled"`
	Changed  bool `json:"changed"`
}
