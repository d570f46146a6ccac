package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"greenos-alerts/internal/domain"
	"greenos-alerts/internal/service"

	"go.uber.org/zap"
)

// PoliciesHandler 升级策略管理接口
type PoliciesHandler struct {
	policies *service.PoliciesService
	logger   *zap.Logger
}

func NewPoliciesHandler(policies *service.PoliciesService, logger *zap.Logger) *PoliciesHandler {
	return &PoliciesHandler{policies: policies, logger: logger}
}

type createPolicyRequest struct {
	Name  string          `json:"name"`
	Steps json.RawMessage `json:"steps"`
}

// Create POST /api/v1/escalation-policies
func (h *PoliciesHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor := ActorFromRequest(r)
	if !Allowed(actor, OpPolicyWrite) {
		writeError(w, fmt.Errorf("%w: role %s cannot manage policies", domain.ErrForbidden, actor.Role))
		return
	}

	var req createPolicyRequest
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid JSON body"))
		return
	}

	policy := &domain.EscalationPolicy{
		FarmID: actor.FarmID,
		Name:   req.Name,
		Steps:  req.Steps,
	}
	created, err := h.policies.CreatePolicy(r.Context(), policy)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, Ok(created))
}

// List GET /api/v1/escalation-policies
func (h *PoliciesHandler) List(w http.ResponseWriter, r *http.Request) {
	actor := ActorFromRequest(r)
	if !Allowed(actor, OpRead) {
		writeError(w, fmt.Errorf("%w: role %s cannot read policies", domain.ErrForbidden, actor.Role))
		return
	}

	policies, err := h.policies.ListPolicies(r.Context(), actor.FarmID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(policies))
}

// Get GET /api/v1/escalation-policies/{id}
func (h *PoliciesHandler) Get(w http.ResponseWriter, r *http.Request, policyID string) {
	actor := ActorFromRequest(r)
	if !Allowed(actor, OpRead) {
		writeError(w, fmt.Errorf("%w: role %s cannot read policies", domain.ErrForbidden, actor.Role))
		return
	}

	policy, err := h.policies.GetPolicy(r.Context(), actor.FarmID, policyID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(policy))
}

// Delete DELETE /api/v1/escalation-policies/{id}
func (h *PoliciesHandler) Delete(w http.ResponseWriter, r *http.Request, policyID string) {
	actor := ActorFromRequest(r)
	if !Allowed(actor, OpPolicyWrite) {
		writeError(w, fmt.Errorf("%w: role %s cannot manage policies", domain.ErrForbidden, actor.Role))
		return
	}

	if err := h.policies.DeletePolicy(r.Context(), actor.FarmID, policyID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"deleted": policyID}))
}
