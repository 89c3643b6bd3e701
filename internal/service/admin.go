package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"basegraph.app/pagebot/internal/killswitch"
	"basegraph.app/pagebot/internal/model"
	"basegraph.app/pagebot/internal/store"
	"basegraph.app/pagebot/internal/tenant"
)

var ErrActionLogDisabled = errors.New("action log is not configured")

type AdminService interface {
	Tenants() []tenant.Snapshot
	KillSwitch() bool
	// SetKillSwitch returns true when the state changed.
	SetKillSwitch(ctx context.Context, disabled bool) bool
	RecentActions(ctx context.Context, tenantID string, limit int32) ([]model.ActionLog, error)
}

type adminService struct {
	registry *tenant.Registry
	sw       *killswitch.Switch
	logs     store.ActionLogStore
}

// NewAdminService accepts a nil registry (stream-mode server) and nil logs
// (no database).
func NewAdminService(registry *tenant.Registry, sw *killswitch.Switch, logs store.ActionLogStore) AdminService {
	return &adminService{registry: registry, sw: sw, logs: logs}
}

func (s *adminService) Tenants() []tenant.Snapshot {
	snapshots := []tenant.Snapshot{}
	if s.registry == nil {
		return snapshots
	}
	s.registry.Range(func(st *tenant.State) bool {
		snapshots = append(snapshots, st.Snapshot())
		return true
	})
	slices.SortFunc(snapshots, func(a, b tenant.Snapshot) int {
		return cmp.Compare(a.TenantID, b.TenantID)
	})
	return snapshots
}

func (s *adminService) KillSwitch() bool {
	return s.sw.Engaged()
}

func (s *adminService) SetKillSwitch(ctx context.Context, disabled bool) bool {
	changed := s.sw.Set(disabled)
	if changed {
		slog.WarnContext(ctx, "kill switch changed by operator", "engaged", disabled)
	}
	return changed
}

func (s *adminService) RecentActions(ctx context.Context, tenantID string, limit int32) ([]model.ActionLog, error) {
	if s.logs == nil {
		return nil, ErrActionLogDisabled
	}
	if s.registry != nil && !s.registry.Known(tenantID) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTenant, tenantID)
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	logs, err := s.logs.ListByTenant(ctx, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing actions: %w", err)
	}
	return logs, nil
}
