package domain

import "errors"

// Sentinel errors. Storage and services wrap them with %w.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidInput  = errors.New("invalid input")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrConflict      = errors.New("conflict")
	// ErrChainCorrupt reports a stored ordering that no longer forms a single
	// path: several heads, a cycle, or a successor outside the owner.
	ErrChainCorrupt = errors.New("chain corrupt")
)

// Error codes for standardized API error responses.
const (
	ErrCodeResourceNotFound = "RESOURCE_NOT_FOUND"
	ErrCodeConflict         = "CONFLICT"
	ErrCodeInvalidInput     = "INVALID_INPUT"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeValidationError  = "VALIDATION_ERROR"
	ErrCodeInternalError    = "INTERNAL_ERROR"
	ErrCodeChainCorrupt     = "CHAIN_CORRUPT"
)

// StandardError represents a standardized error response from the API.
type StandardError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Field   string         `json:"field,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// StandardErrorResponse wraps a StandardError for JSON responses.
type StandardErrorResponse struct {
	Error StandardError `json:"error"`
}
