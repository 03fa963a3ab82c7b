package sql_test

import (
	"context"
	"testing"

	"github.com/bcnelson/firewall-policy-manager/internal/storage"
	"github.com/bcnelson/firewall-policy-manager/internal/storage/sql"
	"github.com/bcnelson/firewall-policy-manager/internal/storage/storagetest"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *sql.Store {
	t.Helper()
	s, err := sql.New(context.Background(), "sqlite", ":memory:")
	require.NoError(t, err)
	return s
}

func TestStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Storage {
		return newStore(t)
	})
}

func TestMigrations(t *testing.T) {
	ctx := context.Background()
	s, err := sql.Open(ctx, "sqlite", ":memory:")
	require.NoError(t, err)
	defer s.Close()

	status, err := s.MigrationStatus(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, status)
	assert.Equal(t, goose.StatePending, status[0].State)

	results, err := s.Migrate(ctx)
	require.NoError(t, err)
	assert.Len(t, results, len(status))

	status, err = s.MigrationStatus(ctx)
	require.NoError(t, err)
	for _, st := range status {
		assert.Equal(t, goose.StateApplied, st.State)
	}

	// Re-running is a no-op.
	results, err = s.Migrate(ctx)
	require.NoError(t, err)
	assert.Empty(t, results)

	_, err = s.MigrateDown(ctx)
	require.NoError(t, err)
	_, err = s.ListFirewalls(ctx)
	assert.Error(t, err)
}

func TestUnsupportedDriver(t *testing.T) {
	_, err := sql.Open(context.Background(), "mysql", "")
	assert.ErrorContains(t, err, "unsupported database driver")
}
