package handler

import (
	"net/http"

	"github.com/bcnelson/firewall-policy-manager/internal/domain"
	"github.com/bcnelson/firewall-policy-manager/internal/logging"
	"github.com/bcnelson/firewall-policy-manager/internal/service"
)

// RuleHandler handles rule endpoints.
type RuleHandler struct {
	rules  *service.RuleService
	logger *logging.Logger
}

// NewRuleHandler creates a new RuleHandler.
func NewRuleHandler(svc *service.Services, logger *logging.Logger) *RuleHandler {
	return &RuleHandler{rules: svc.Rules, logger: logger}
}

// Create inserts a rule into a filtering policy's chain.
func (h *RuleHandler) Create(w http.ResponseWriter, r *http.Request) {
	policyID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req domain.CreateRuleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, domain.ErrCodeInvalidInput, "invalid request body")
		return
	}

	rule, _, err := h.rules.Create(r.Context(), policyID, &req)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	respondCreated(w, rule)
}

// List lists a filtering policy's rules in evaluation order.
func (h *RuleHandler) List(w http.ResponseWriter, r *http.Request) {
	policyID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	rules, err := h.rules.List(r.Context(), policyID)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, rules)
}

// Get gets a rule by ID. With ?show_filtering_policy=true the owning
// filtering policy is embedded.
func (h *RuleHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	get := h.rules.Get
	if queryFlag(r, "show_filtering_policy") {
		get = h.rules.GetWithPolicy
	}
	rule, err := get(r.Context(), id)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, rule)
}

// Delete deletes a rule.
func (h *RuleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.rules.Delete(r.Context(), id); err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
