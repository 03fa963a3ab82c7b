package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/bcnelson/firewall-policy-manager/internal/api/middleware"
	"github.com/bcnelson/firewall-policy-manager/internal/domain"
	"github.com/bcnelson/firewall-policy-manager/internal/logging"
	"github.com/bcnelson/firewall-policy-manager/internal/validation"
	"github.com/go-chi/chi/v5"
)

const maxBodyBytes = 1 << 20

// respondJSON writes a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError writes a JSON error response.
func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, &domain.StandardErrorResponse{
		Error: domain.StandardError{Code: code, Message: message},
	})
}

// respondValidationErrors writes a JSON response for multiple validation errors.
func respondValidationErrors(w http.ResponseWriter, errs validation.ValidationErrors) {
	respondJSON(w, http.StatusBadRequest, &domain.StandardErrorResponse{
		Error: domain.StandardError{
			Code:    domain.ErrCodeValidationError,
			Message: errs.Error(),
			Field:   errs[0].Field,
			Details: map[string]any{"errors": errs},
		},
	})
}

// respondCreated writes a creation result. Re-submitting an existing entity
// answers 201 as well so retries are indistinguishable from the first call.
func respondCreated(w http.ResponseWriter, data any) {
	respondJSON(w, http.StatusCreated, data)
}

// handleError converts domain errors to HTTP errors.
func handleError(w http.ResponseWriter, r *http.Request, logger *logging.Logger, err error) {
	var verrs validation.ValidationErrors
	switch {
	case errors.As(err, &verrs) && len(verrs) > 0:
		respondValidationErrors(w, verrs)
	case errors.Is(err, domain.ErrNotFound):
		respondError(w, http.StatusNotFound, domain.ErrCodeResourceNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrAlreadyExists):
		respondError(w, http.StatusConflict, domain.ErrCodeConflict, err.Error())
	case errors.Is(err, domain.ErrInvalidInput):
		respondError(w, http.StatusBadRequest, domain.ErrCodeInvalidInput, err.Error())
	case errors.Is(err, domain.ErrChainCorrupt):
		logger.Error("stored order is corrupt",
			"request_id", middleware.GetRequestID(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
		respondError(w, http.StatusInternalServerError, domain.ErrCodeChainCorrupt, "stored order is corrupt")
	default:
		logger.Error("request failed",
			"request_id", middleware.GetRequestID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		respondError(w, http.StatusInternalServerError, domain.ErrCodeInternalError, "internal server error")
	}
}

// decodeJSON decodes JSON from request body.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return domain.ErrInvalidInput
	}
	return nil
}

// pathID parses a positive integer URL parameter.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, domain.ErrCodeInvalidInput, name+" must be a positive integer")
		return 0, false
	}
	return id, true
}

// queryFlag reports whether the boolean query parameter name is set to true.
func queryFlag(r *http.Request, name string) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(name))
	return err == nil && v
}
