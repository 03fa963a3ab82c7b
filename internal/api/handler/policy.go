package handler

import (
	"net/http"

	"github.com/bcnelson/firewall-policy-manager/internal/domain"
	"github.com/bcnelson/firewall-policy-manager/internal/logging"
	"github.com/bcnelson/firewall-policy-manager/internal/service"
)

// PolicyHandler handles filtering policy endpoints.
type PolicyHandler struct {
	policies *service.PolicyService
	logger   *logging.Logger
}

// NewPolicyHandler creates a new PolicyHandler.
func NewPolicyHandler(svc *service.Services, logger *logging.Logger) *PolicyHandler {
	return &PolicyHandler{policies: svc.Policies, logger: logger}
}

// Create inserts a filtering policy into a firewall's chain.
func (h *PolicyHandler) Create(w http.ResponseWriter, r *http.Request) {
	firewallID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req domain.CreateFilteringPolicyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, domain.ErrCodeInvalidInput, "invalid request body")
		return
	}

	policy, _, err := h.policies.Create(r.Context(), firewallID, &req)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	respondCreated(w, policy)
}

// List lists a firewall's filtering policies in order.
func (h *PolicyHandler) List(w http.ResponseWriter, r *http.Request) {
	firewallID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	policies, err := h.policies.List(r.Context(), firewallID)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, policies)
}

// Get gets a filtering policy by ID, with its ordered rules when
// show_rules=true.
func (h *PolicyHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var (
		policy *domain.FilteringPolicy
		err    error
	)
	if queryFlag(r, "show_rules") {
		policy, err = h.policies.GetWithRules(r.Context(), id)
	} else {
		policy, err = h.policies.Get(r.Context(), id)
	}
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, policy)
}

// Delete deletes a filtering policy.
func (h *PolicyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.policies.Delete(r.Context(), id); err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
