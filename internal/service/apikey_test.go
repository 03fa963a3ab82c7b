package service_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bcnelson/firewall-policy-manager/internal/domain"
	"github.com/bcnelson/firewall-policy-manager/internal/logging"
	"github.com/bcnelson/firewall-policy-manager/internal/service"
	"github.com/bcnelson/firewall-policy-manager/internal/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newKeyService(bootstrap string) *service.APIKeyService {
	return service.New(memory.New(),
		service.WithLogger(logging.Discard()),
		service.WithBootstrapKey(bootstrap),
		service.WithClock(func() time.Time { return fixedNow }),
	).APIKeys
}

func TestAPIKeyCreate(t *testing.T) {
	ctx := context.Background()
	keys := newKeyService("")

	resp, err := keys.Create(ctx, &domain.CreateAPIKeyRequest{Name: "ci"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(resp.Key, service.APIKeyPrefix))
	assert.Len(t, resp.Key, len(service.APIKeyPrefix)+64)
	assert.Equal(t, resp.Key[:len(service.APIKeyPrefix)+8], resp.KeyPrefix)
	assert.Equal(t, fixedNow, resp.CreatedAt)
	assert.NotEmpty(t, resp.ID)

	list, err := keys.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, service.HashAPIKey(resp.Key), list[0].KeyHash)

	_, err = keys.Create(ctx, &domain.CreateAPIKeyRequest{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestAPIKeyOpenWithoutKeys(t *testing.T) {
	key, err := newKeyService("").Authenticate(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, key)
}

func TestAPIKeyBootstrap(t *testing.T) {
	ctx := context.Background()
	keys := newKeyService("boot")

	_, err := keys.Authenticate(ctx, "")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	_, err = keys.Authenticate(ctx, "wrong")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	key, err := keys.Authenticate(ctx, "boot")
	require.NoError(t, err)
	assert.Equal(t, service.BootstrapKeyID, key.ID)

	created, err := keys.Create(ctx, &domain.CreateAPIKeyRequest{Name: "first"})
	require.NoError(t, err)

	_, err = keys.Authenticate(ctx, "boot")
	assert.ErrorIs(t, err, domain.ErrUnauthorized, "bootstrap key stops working once a key is stored")

	key, err = keys.Authenticate(ctx, created.Key)
	require.NoError(t, err)
	assert.Equal(t, created.ID, key.ID)
	require.NotNil(t, key.LastUsedAt)
	assert.Equal(t, fixedNow, *key.LastUsedAt)
}

func TestAPIKeyStoredKeysEnforcedWithoutBootstrap(t *testing.T) {
	ctx := context.Background()
	keys := newKeyService("")

	created, err := keys.Create(ctx, &domain.CreateAPIKeyRequest{Name: "ops"})
	require.NoError(t, err)

	_, err = keys.Authenticate(ctx, "")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = keys.Authenticate(ctx, created.Key)
	require.NoError(t, err)

	require.NoError(t, keys.Delete(ctx, created.ID))
	assert.ErrorIs(t, keys.Delete(ctx, created.ID), domain.ErrNotFound)

	key, err := keys.Authenticate(ctx, created.Key)
	require.NoError(t, err)
	assert.Nil(t, key, "deleting the last key reopens the API")
}
