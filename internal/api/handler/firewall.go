package handler

import (
	"net/http"

	"github.com/bcnelson/firewall-policy-manager/internal/domain"
	"github.com/bcnelson/firewall-policy-manager/internal/logging"
	"github.com/bcnelson/firewall-policy-manager/internal/service"
)

// FirewallHandler handles firewall endpoints.
type FirewallHandler struct {
	firewalls *service.FirewallService
	logger    *logging.Logger
}

// NewFirewallHandler creates a new FirewallHandler.
func NewFirewallHandler(svc *service.Services, logger *logging.Logger) *FirewallHandler {
	return &FirewallHandler{firewalls: svc.Firewalls, logger: logger}
}

// Create registers a firewall.
func (h *FirewallHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateFirewallRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, domain.ErrCodeInvalidInput, "invalid request body")
		return
	}

	fw, _, err := h.firewalls.Create(r.Context(), &req)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	respondCreated(w, fw)
}

// List lists all firewalls.
func (h *FirewallHandler) List(w http.ResponseWriter, r *http.Request) {
	fws, err := h.firewalls.List(r.Context())
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, fws)
}

// Get gets a firewall by ID, with its ordered filtering policies when
// show_filtering_policies=true.
func (h *FirewallHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var (
		fw  *domain.Firewall
		err error
	)
	if queryFlag(r, "show_filtering_policies") {
		fw, err = h.firewalls.GetWithPolicies(r.Context(), id)
	} else {
		fw, err = h.firewalls.Get(r.Context(), id)
	}
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, fw)
}

// Delete deletes a firewall and everything it owns.
func (h *FirewallHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.firewalls.Delete(r.Context(), id); err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
