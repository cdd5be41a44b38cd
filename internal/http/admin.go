package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/librarian/internal/audit"
	"github.com/mrlokans/librarian/internal/auth"
	auditrepo "github.com/mrlokans/librarian/internal/database/audit"
	"github.com/mrlokans/librarian/internal/entities"
	"github.com/mrlokans/librarian/internal/policy"
	"github.com/mrlokans/librarian/internal/settingsstore"
	"github.com/mrlokans/librarian/internal/tasks"
)

// AdminController serves inventory reconciliation, its schedule settings and
// the audit log. Every endpoint requires an administrator.
type AdminController struct {
	reconciler  *tasks.Reconciler
	store       *settingsstore.SettingsStore
	rescheduler Rescheduler
	audit       *audit.Service
}

// NewAdminController creates an AdminController. rescheduler may be nil when
// no scheduler runs.
func NewAdminController(reconciler *tasks.Reconciler, store *settingsstore.SettingsStore, rescheduler Rescheduler, auditService *audit.Service) *AdminController {
	return &AdminController{
		reconciler:  reconciler,
		store:       store,
		rescheduler: rescheduler,
		audit:       auditService,
	}
}

// ReconcileStatusResponse combines the last run with the live state.
type ReconcileStatusResponse struct {
	settingsstore.ReconcileStatus
	Running bool `json:"running"`
}

func (ac *AdminController) authorize(c *gin.Context, action policy.Action) bool {
	if err := policy.Authorize(auth.GetCaller(c), action); err != nil {
		respondLendingError(c, err, string(action))
		return false
	}
	return true
}

// Reconcile handles POST /api/admin/reconcile?fix=
func (ac *AdminController) Reconcile(c *gin.Context) {
	if !ac.authorize(c, policy.RunTasks) {
		return
	}

	report, err := ac.reconciler.Run(c.Request.Context(), actorFromContext(c), parseTruthy(c.Query("fix")))
	if errors.Is(err, tasks.ErrReconcileRunning) {
		respondError(c, http.StatusConflict, CodeConflict, err.Error())
		return
	}
	if err != nil {
		respondLendingError(c, err, "reconcile")
		return
	}
	c.JSON(http.StatusOK, report)
}

// ReconcileStatus handles GET /api/admin/reconcile/status
func (ac *AdminController) ReconcileStatus(c *gin.Context) {
	if !ac.authorize(c, policy.RunTasks) {
		return
	}

	status, err := ac.reconciler.Status(c.Request.Context())
	if err != nil {
		respondInternalError(c, err, "reconcile status")
		return
	}
	c.JSON(http.StatusOK, ReconcileStatusResponse{ReconcileStatus: status, Running: ac.reconciler.IsRunning()})
}

// GetReconcileSettings handles GET /api/admin/reconcile/settings
func (ac *AdminController) GetReconcileSettings(c *gin.Context) {
	if !ac.authorize(c, policy.RunTasks) {
		return
	}
	c.JSON(http.StatusOK, ac.store.GetReconcileConfigInfo(c.Request.Context()))
}

// UpdateReconcileSettings handles PUT /api/admin/reconcile/settings
func (ac *AdminController) UpdateReconcileSettings(c *gin.Context) {
	if !ac.authorize(c, policy.RunTasks) {
		return
	}

	var update settingsstore.ReconcileConfigUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	err := ac.store.UpdateReconcileConfig(c.Request.Context(), update)
	if errors.Is(err, settingsstore.ErrInvalidSchedule) {
		respondBadRequest(c, err.Error())
		return
	}
	if err != nil {
		respondInternalError(c, err, "update reconcile settings")
		return
	}

	if !ac.reschedule(c) {
		return
	}
	c.JSON(http.StatusOK, ac.store.GetReconcileConfigInfo(c.Request.Context()))
}

// ResetReconcileSettings handles DELETE /api/admin/reconcile/settings
func (ac *AdminController) ResetReconcileSettings(c *gin.Context) {
	if !ac.authorize(c, policy.RunTasks) {
		return
	}

	if err := ac.store.ClearReconcileSettings(c.Request.Context()); err != nil {
		respondInternalError(c, err, "reset reconcile settings")
		return
	}

	if !ac.reschedule(c) {
		return
	}
	c.JSON(http.StatusOK, ac.store.GetReconcileConfigInfo(c.Request.Context()))
}

// reschedule restarts the scheduler with the stored settings. The scheduler
// outlives the request, so it must not inherit the request's cancellation.
func (ac *AdminController) reschedule(c *gin.Context) bool {
	if ac.rescheduler == nil {
		return true
	}
	if err := ac.rescheduler.Reschedule(context.WithoutCancel(c.Request.Context())); err != nil {
		respondInternalError(c, err, "reschedule")
		return false
	}
	return true
}

// AuditEvents handles GET /api/admin/audit?type=&user_id=&since=&limit=&offset=
func (ac *AdminController) AuditEvents(c *gin.Context) {
	if !ac.authorize(c, policy.ReadAudit) {
		return
	}
	limit, offset, ok := parsePagination(c)
	if !ok {
		return
	}
	userID, ok := parseOptionalQueryID(c, "user_id")
	if !ok {
		return
	}

	filter := auditrepo.EventFilter{
		EventType: entities.AuditEventType(c.Query("type")),
		Limit:     limit,
		Offset:    offset,
	}
	if userID != nil {
		filter.UserID = *userID
	}
	if raw := c.Query("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			respondBadRequest(c, "since must be an RFC 3339 timestamp")
			return
		}
		filter.Since = since
	}

	events, total, err := ac.audit.Events(c.Request.Context(), filter)
	if err != nil {
		respondInternalError(c, err, "audit events")
		return
	}
	if events == nil {
		events = []entities.AuditEvent{}
	}
	if limit == 0 {
		limit = 50
	}
	c.JSON(http.StatusOK, gin.H{
		"items":  events,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}
