package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/bcnelson/firewall-policy-manager/internal/domain"
	"github.com/bcnelson/firewall-policy-manager/internal/logging"
)

// APIKeyContextKey holds the authenticated *domain.APIKey.
const APIKeyContextKey contextKey = "api_key"

// Authenticator checks bearer tokens. A nil key with a nil error means the
// API is open.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*domain.APIKey, error)
}

// Auth authenticates "Authorization: Bearer <key>" through keys and stores
// the matching key in the request context.
func Auth(keys Authenticator, logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := bearerToken(r)
			if err != nil {
				// Only rejected if the API turns out not to be open.
				token = ""
			}

			key, authErr := keys.Authenticate(r.Context(), token)
			switch {
			case authErr == nil && key == nil:
				next.ServeHTTP(w, r)
				return
			case authErr == nil:
				ctx := context.WithValue(r.Context(), APIKeyContextKey, key)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			case errors.Is(authErr, domain.ErrUnauthorized):
				if err != nil {
					authErr = err
				}
				writeError(w, http.StatusUnauthorized, domain.ErrCodeUnauthorized, authErr.Error())
			default:
				logger.Error("authentication failed",
					"request_id", GetRequestID(r.Context()),
					"error", authErr,
				)
				writeError(w, http.StatusInternalServerError, domain.ErrCodeInternalError, "internal server error")
			}
		})
	}
}

// GetAPIKey returns the key that authenticated the request, or nil when the
// API is open.
func GetAPIKey(ctx context.Context) *domain.APIKey {
	key, _ := ctx.Value(APIKeyContextKey).(*domain.APIKey)
	return key
}

func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errors.New("missing authorization header")
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return "", errors.New("invalid authorization header format")
	}
	if token == "" {
		return "", errors.New("empty API key")
	}
	return token, nil
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(&domain.StandardErrorResponse{
		Error: domain.StandardError{Code: code, Message: message},
	})
}
