package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"greenos-alerts/internal/domain"
	"greenos-alerts/internal/repository"
	"greenos-alerts/internal/service"

	"go.uber.org/zap"
)

// AlertsHandler 告警查询与生命周期接口
type AlertsHandler struct {
	alerts *service.AlertsService
	logger *zap.Logger
}

func NewAlertsHandler(alerts *service.AlertsService, logger *zap.Logger) *AlertsHandler {
	return &AlertsHandler{alerts: alerts, logger: logger}
}

// List GET /api/v1/alerts
func (h *AlertsHandler) List(w http.ResponseWriter, r *http.Request) {
	actor := ActorFromRequest(r)
	if !Allowed(actor, OpRead) {
		writeError(w, fmt.Errorf("%w: role %s cannot read alerts", domain.ErrForbidden, actor.Role))
		return
	}

	q := r.URL.Query()
	filters := repository.AlertFilters{
		Status:   q.Get("status"),
		Severity: q.Get("severity"),
		SensorID: q.Get("sensor_id"),
		RuleID:   q.Get("rule_id"),
	}
	if v := q.Get("start_time"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, Fail("invalid start_time"))
			return
		}
		filters.StartTime = &t
	}
	if v := q.Get("end_time"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, Fail("invalid end_time"))
			return
		}
		filters.EndTime = &t
	}

	page := parseInt(q.Get("page"), 1)
	size := parseInt(q.Get("size"), 50)
	alerts, total, err := h.alerts.ListAlerts(r.Context(), actor.FarmID, filters, page, size)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"items": alerts,
		"total": total,
		"page":  page,
		"size":  size,
	}))
}

// Active GET /api/v1/alerts/active
func (h *AlertsHandler) Active(w http.ResponseWriter, r *http.Request) {
	actor := ActorFromRequest(r)
	if !Allowed(actor, OpRead) {
		writeError(w, fmt.Errorf("%w: role %s cannot read alerts", domain.ErrForbidden, actor.Role))
		return
	}

	alerts, err := h.alerts.ListActiveAlerts(r.Context(), actor.FarmID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(alerts))
}

// Count GET /api/v1/alerts/count
func (h *AlertsHandler) Count(w http.ResponseWriter, r *http.Request) {
	actor := ActorFromRequest(r)
	if !Allowed(actor, OpRead) {
		writeError(w, fmt.Errorf("%w: role %s cannot read alerts", domain.ErrForbidden, actor.Role))
		return
	}

	count, err := h.alerts.CountActive(r.Context(), actor.FarmID, r.URL.Query().Get("severity"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"count": count}))
}

// Get GET /api/v1/alerts/{id}
func (h *AlertsHandler) Get(w http.ResponseWriter, r *http.Request, alertID string) {
	actor := ActorFromRequest(r)
	if !Allowed(actor, OpRead) {
		writeError(w, fmt.Errorf("%w: role %s cannot read alerts", domain.ErrForbidden, actor.Role))
		return
	}

	alert, err := h.alerts.GetAlert(r.Context(), actor.FarmID, alertID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(alert))
}

type lifecycleRequest struct {
	Notes *string `json:"notes"`
}

// Acknowledge POST /api/v1/alerts/{id}/acknowledge
func (h *AlertsHandler) Acknowledge(w http.ResponseWriter, r *http.Request, alertID string) {
	actor := ActorFromRequest(r)
	if !Allowed(actor, OpAlertAck) {
		writeError(w, fmt.Errorf("%w: role %s cannot acknowledge alerts", domain.ErrForbidden, actor.Role))
		return
	}

	var req lifecycleRequest
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid JSON body"))
		return
	}

	alert, err := h.alerts.Acknowledge(r.Context(), actor.FarmID, alertID, actor.UserID, req.Notes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(alert))
}

// Resolve POST /api/v1/alerts/{id}/resolve
func (h *AlertsHandler) Resolve(w http.ResponseWriter, r *http.Request, alertID string) {
	actor := ActorFromRequest(r)
	if !Allowed(actor, OpAlertResolve) {
		writeError(w, fmt.Errorf("%w: role %s cannot resolve alerts", domain.ErrForbidden, actor.Role))
		return
	}

	var req lifecycleRequest
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid JSON body"))
		return
	}

	alert, err := h.alerts.Resolve(r.Context(), actor.FarmID, alertID, req.Notes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(alert))
}
