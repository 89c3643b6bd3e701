package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"basegraph.app/pagebot/internal/http/dto"
	"basegraph.app/pagebot/internal/service"
	"basegraph.app/pagebot/internal/tenant"
)

type AdminHandler struct {
	admin service.AdminService
}

func NewAdminHandler(admin service.AdminService) *AdminHandler {
	return &AdminHandler{admin: admin}
}

// ListTenants returns queue and limiter state for every active tenant.
func (h *AdminHandler) ListTenants(c *gin.Context) {
	snapshots := h.admin.Tenants()
	resp := dto.ListTenantsResponse{
		KillSwitch: h.admin.KillSwitch(),
		Tenants:    make([]dto.TenantSnapshotResponse, 0, len(snapshots)),
	}
	for _, s := range snapshots {
		resp.Tenants = append(resp.Tenants, toSnapshotResponse(s))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *AdminHandler) SetKillSwitch(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.KillSwitchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: disabled is required"})
		return
	}

	changed := h.admin.SetKillSwitch(ctx, *req.Disabled)
	c.JSON(http.StatusOK, dto.KillSwitchResponse{Disabled: h.admin.KillSwitch(), Changed: changed})
}

func (h *AdminHandler) ListActions(c *gin.Context) {
	ctx := c.Request.Context()
	tenantID := c.Param("id")

	limit := int64(50)
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	logs, err := h.admin.RecentActions(ctx, tenantID, int32(limit))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnknownTenant):
			c.JSON(http.StatusNotFound, gin.H{"error": "tenant not found"})
		case errors.Is(err, service.ErrActionLogDisabled):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "action log not configured"})
		default:
			slog.ErrorContext(ctx, "failed to list actions", "error", err, "tenant_id", tenantID)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list actions"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"actions": logs})
}

func toSnapshotResponse(s tenant.Snapshot) dto.TenantSnapshotResponse {
	resp := dto.TenantSnapshotResponse{
		TenantID:  s.TenantID,
		Name:      s.Name,
		Queued:    s.Queued,
		InFlight:  s.InFlight,
		Seen:      s.Seen,
		Threads:   s.Threads,
		HourCount: s.HourCount,
		DayCount:  s.DayCount,
		Gates:     make(map[string]*time.Time, len(s.Gates)),
		Pending:   make([]dto.PendingTaskResponse, 0, len(s.Pending)),
	}
	for class, gate := range s.Gates {
		if gate.IsZero() {
			resp.Gates[string(class)] = nil
			continue
		}
		resp.Gates[string(class)] = &gate
	}
	for _, t := range s.Pending {
		resp.Pending = append(resp.Pending, dto.PendingTaskResponse{
			ID:       t.ID,
			Type:     string(t.Type),
			ItemID:   t.ItemID,
			TargetID: t.TargetID,
			ThreadID: t.ThreadID,
			DueAt:    t.DueAt,
		})
	}
	return resp
}
