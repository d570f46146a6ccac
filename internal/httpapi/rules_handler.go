package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"greenos-alerts/internal/domain"
	"greenos-alerts/internal/service"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RulesHandler 告警规则管理接口
type RulesHandler struct {
	rules  *service.RulesService
	logger *zap.Logger
}

func NewRulesHandler(rules *service.RulesService, logger *zap.Logger) *RulesHandler {
	return &RulesHandler{rules: rules, logger: logger}
}

// createRuleRequest 创建规则请求体
type createRuleRequest struct {
	ZoneID             *string          `json:"zone_id"`
	SensorType         string           `json:"sensor_type"`
	Condition          string           `json:"condition"`
	ThresholdMin       *json.Number     `json:"threshold_min"`
	ThresholdMax       *json.Number     `json:"threshold_max"`
	Severity           string           `json:"severity"`
	CooldownMinutes    int              `json:"cooldown_minutes"`
	IsActive           *bool            `json:"is_active"`
	NotifyChannels     json.RawMessage  `json:"notify_channels"`
	EscalationPolicyID *string          `json:"escalation_policy_id"`
}

// Create POST /api/v1/alert-rules
func (h *RulesHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor := ActorFromRequest(r)
	if !Allowed(actor, OpRuleWrite) {
		writeError(w, fmt.Errorf("%w: role %s cannot manage rules", domain.ErrForbidden, actor.Role))
		return
	}

	var req createRuleRequest
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid JSON body"))
		return
	}

	thresholdMin, err := parseThreshold(req.ThresholdMin)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid threshold_min"))
		return
	}
	thresholdMax, err := parseThreshold(req.ThresholdMax)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid threshold_max"))
		return
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	rule := &domain.AlertRule{
		FarmID:             actor.FarmID,
		ZoneID:             req.ZoneID,
		SensorType:         req.SensorType,
		Condition:          req.Condition,
		ThresholdMin:       thresholdMin,
		ThresholdMax:       thresholdMax,
		Severity:           req.Severity,
		CooldownMinutes:    req.CooldownMinutes,
		IsActive:           isActive,
		NotifyChannels:     req.NotifyChannels,
		EscalationPolicyID: req.EscalationPolicyID,
	}

	created, err := h.rules.CreateRule(r.Context(), rule)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, Ok(created))
}

// List GET /api/v1/alert-rules
func (h *RulesHandler) List(w http.ResponseWriter, r *http.Request) {
	actor := ActorFromRequest(r)
	if !Allowed(actor, OpRead) {
		writeError(w, fmt.Errorf("%w: role %s cannot read rules", domain.ErrForbidden, actor.Role))
		return
	}

	page := parseInt(r.URL.Query().Get("page"), 1)
	size := parseInt(r.URL.Query().Get("size"), 50)
	rules, total, err := h.rules.ListRules(r.Context(), actor.FarmID, page, size)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"items": rules,
		"total": total,
		"page":  page,
		"size":  size,
	}))
}

// Get GET /api/v1/alert-rules/{id}
func (h *RulesHandler) Get(w http.ResponseWriter, r *http.Request, ruleID string) {
	actor := ActorFromRequest(r)
	if !Allowed(actor, OpRead) {
		writeError(w, fmt.Errorf("%w: role %s cannot read rules", domain.ErrForbidden, actor.Role))
		return
	}

	rule, err := h.rules.GetRule(r.Context(), actor.FarmID, ruleID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(rule))
}

// Update PATCH /api/v1/alert-rules/{id}
func (h *RulesHandler) Update(w http.ResponseWriter, r *http.Request, ruleID string) {
	actor := ActorFromRequest(r)
	if !Allowed(actor, OpRuleWrite) {
		writeError(w, fmt.Errorf("%w: role %s cannot manage rules", domain.ErrForbidden, actor.Role))
		return
	}

	var updates map[string]interface{}
	if err := readBodyJSON(r, 1<<20, &updates); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid JSON body"))
		return
	}
	// notify_channels 以 JSON 原样落库
	if v, ok := updates["notify_channels"]; ok && v != nil {
		data, err := json.Marshal(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, Fail("invalid notify_channels"))
			return
		}
		updates["notify_channels"] = data
	}

	rule, err := h.rules.UpdateRule(r.Context(), actor.FarmID, ruleID, updates)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(rule))
}

// Delete DELETE /api/v1/alert-rules/{id}
func (h *RulesHandler) Delete(w http.ResponseWriter, r *http.Request, ruleID string) {
	actor := ActorFromRequest(r)
	if !Allowed(actor, OpRuleDelete) {
		writeError(w, fmt.Errorf("%w: role %s cannot delete rules", domain.ErrForbidden, actor.Role))
		return
	}

	if err := h.rules.DeleteRule(r.Context(), actor.FarmID, ruleID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"deleted": ruleID}))
}

func parseThreshold(n *json.Number) (decimal.NullDecimal, error) {
	if n == nil {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}, nil
}
