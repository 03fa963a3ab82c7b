package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/bcnelson/firewall-policy-manager/internal/domain"
	"github.com/bcnelson/firewall-policy-manager/internal/logging"
	"github.com/bcnelson/firewall-policy-manager/internal/storage"
	"github.com/bcnelson/firewall-policy-manager/internal/validation"
	"github.com/google/uuid"
)

// APIKeyPrefix starts every generated key.
const APIKeyPrefix = "fwm_"

// BootstrapKeyID identifies the bootstrap key in the request context.
const BootstrapKeyID = "bootstrap"

// APIKeyService issues and checks API keys.
//
// Authentication has three modes. With stored keys, only a stored key is
// accepted. Without stored keys, the bootstrap key is accepted if one is
// configured; it is meant for creating the first stored key. With neither,
// the API is open.
type APIKeyService struct {
	store        storage.Storage
	bootstrapKey string
	logger       *logging.Logger
	now          func() time.Time
}

// Create generates a key, stores its hash and returns the key. The key is
// not retrievable afterwards.
func (s *APIKeyService) Create(ctx context.Context, req *domain.CreateAPIKeyRequest) (*domain.CreateAPIKeyResponse, error) {
	if err := validation.ValidateAPIKeyRequest(req); err != nil {
		return nil, err
	}

	key, hash, prefix, err := generateAPIKey()
	if err != nil {
		return nil, fmt.Errorf("generating api key: %w", err)
	}

	apiKey := &domain.APIKey{
		ID:        uuid.NewString(),
		Name:      req.Name,
		KeyHash:   hash,
		KeyPrefix: prefix,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.CreateAPIKey(ctx, apiKey); err != nil {
		return nil, err
	}
	s.logger.Info("api key created", "id", apiKey.ID, "name", apiKey.Name, "prefix", prefix)

	return &domain.CreateAPIKeyResponse{
		ID:        apiKey.ID,
		Name:      apiKey.Name,
		Key:       key,
		KeyPrefix: apiKey.KeyPrefix,
		CreatedAt: apiKey.CreatedAt,
	}, nil
}

// List returns all stored keys, newest first, without their values.
func (s *APIKeyService) List(ctx context.Context) ([]*domain.APIKey, error) {
	return s.store.ListAPIKeys(ctx)
}

// Delete revokes a key. Unknown ids are domain.ErrNotFound.
func (s *APIKeyService) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteAPIKey(ctx, id); err != nil {
		return fmt.Errorf("api key %s: %w", id, err)
	}
	s.logger.Info("api key deleted", "id", id)
	return nil
}

// Authenticate checks a bearer token. It returns nil, nil when the API is
// open and an error wrapping domain.ErrUnauthorized when the token is
// rejected.
func (s *APIKeyService) Authenticate(ctx context.Context, token string) (*domain.APIKey, error) {
	count, err := s.store.CountAPIKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting api keys: %w", err)
	}
	if count == 0 && s.bootstrapKey == "" {
		return nil, nil
	}
	if token == "" {
		return nil, fmt.Errorf("%w: missing bearer token", domain.ErrUnauthorized)
	}

	if count == 0 {
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.bootstrapKey)) != 1 {
			return nil, fmt.Errorf("%w: invalid API key", domain.ErrUnauthorized)
		}
		return &domain.APIKey{ID: BootstrapKeyID, Name: "Bootstrap Key"}, nil
	}

	key, err := s.store.GetAPIKeyByHash(ctx, HashAPIKey(token))
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: invalid API key", domain.ErrUnauthorized)
	}
	if err != nil {
		return nil, fmt.Errorf("looking up api key: %w", err)
	}

	now := s.now().UTC()
	if err := s.store.UpdateAPIKeyLastUsed(ctx, key.ID, now); err != nil {
		s.logger.Warn("failed to record api key use", "id", key.ID, "error", err)
	} else {
		key.LastUsedAt = &now
	}
	return key, nil
}

// HashAPIKey returns the hex SHA-256 of key. Keys are 32 random bytes, so a
// plain digest is enough for lookup.
func HashAPIKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}

func generateAPIKey() (key, hash, prefix string, err error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", "", err
	}
	key = APIKeyPrefix + hex.EncodeToString(b)
	return key, HashAPIKey(key), key[:len(APIKeyPrefix)+8], nil
}
