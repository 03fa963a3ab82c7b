package handler

import (
	"net/http"

	"github.com/bcnelson/firewall-policy-manager/internal/api/middleware"
	"github.com/bcnelson/firewall-policy-manager/internal/domain"
	"github.com/bcnelson/firewall-policy-manager/internal/logging"
	"github.com/bcnelson/firewall-policy-manager/internal/service"
	"github.com/go-chi/chi/v5"
)

// APIKeyHandler handles API key endpoints.
type APIKeyHandler struct {
	keys   *service.APIKeyService
	logger *logging.Logger
}

// NewAPIKeyHandler creates a new APIKeyHandler.
func NewAPIKeyHandler(svc *service.Services, logger *logging.Logger) *APIKeyHandler {
	return &APIKeyHandler{keys: svc.APIKeys, logger: logger}
}

// Create creates a new API key. The key value is only in this response.
func (h *APIKeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateAPIKeyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, domain.ErrCodeInvalidInput, "invalid request body")
		return
	}

	resp, err := h.keys.Create(r.Context(), &req)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	if by := middleware.GetAPIKey(r.Context()); by != nil {
		h.logger.Info("api key issued", "id", resp.ID, "issued_by", by.ID)
	}
	respondJSON(w, http.StatusCreated, resp)
}

// List lists all API keys without their values.
func (h *APIKeyHandler) List(w http.ResponseWriter, r *http.Request) {
	keys, err := h.keys.List(r.Context())
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, keys)
}

// Delete revokes an API key.
func (h *APIKeyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, domain.ErrCodeInvalidInput, "id is required")
		return
	}

	if err := h.keys.Delete(r.Context(), id); err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
