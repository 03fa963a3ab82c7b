package memory_test

import (
	"context"
	"sync"
	"testing"

	"github.com/bcnelson/firewall-policy-manager/internal/domain"
	"github.com/bcnelson/firewall-policy-manager/internal/storage"
	"github.com/bcnelson/firewall-policy-manager/internal/storage/memory"
	"github.com/bcnelson/firewall-policy-manager/internal/storage/storagetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Storage {
		return memory.New()
	})
}

func TestTxFinishesOnce(t *testing.T) {
	s := memory.New()
	tx, err := s.BeginTx(context.Background())
	require.NoError(t, err)

	require.NoError(t, tx.Commit())
	assert.Error(t, tx.Commit())
	assert.Error(t, tx.Rollback())

	_, err = tx.ListFirewalls(context.Background())
	assert.Error(t, err)

	// The writer lock was released by the first Commit.
	require.NoError(t, s.CreateFirewall(context.Background(), &domain.Firewall{Name: "a", IPAddress: "10.0.0.1", Port: 1}))
}

func TestReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	fw := &domain.Firewall{Name: "edge", IPAddress: "10.0.0.1", Port: 22}
	require.NoError(t, s.CreateFirewall(ctx, fw))
	p := &domain.FilteringPolicy{FirewallID: fw.ID, Name: "a"}
	require.NoError(t, s.CreateFilteringPolicy(ctx, p))

	got, err := s.GetFilteringPolicy(ctx, p.ID)
	require.NoError(t, err)
	got.Name = "mutated"
	fw.Name = "mutated"

	again, err := s.GetFilteringPolicy(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "a", again.Name)
	gotFw, err := s.GetFirewall(ctx, fw.ID)
	require.NoError(t, err)
	assert.Equal(t, "edge", gotFw.Name)
}

func TestFailedWriteLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	fw := &domain.Firewall{Name: "edge", IPAddress: "10.0.0.1", Port: 22}
	require.NoError(t, s.CreateFirewall(ctx, fw))
	p := &domain.FilteringPolicy{FirewallID: fw.ID, Name: "a"}
	require.NoError(t, s.CreateFilteringPolicy(ctx, p))

	missing := int64(404)
	err := s.CreateFilteringPolicy(ctx, &domain.FilteringPolicy{FirewallID: fw.ID, Name: "b", NextPolicyID: &missing})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	ps, err := s.ListFilteringPolicies(ctx, fw.ID)
	require.NoError(t, err)
	assert.Len(t, ps, 1)
}

func TestConcurrentTransactionsSerialize(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(port int) {
			defer wg.Done()
			err := storage.WithTx(ctx, s, func(tx storage.Storage) error {
				return tx.CreateFirewall(ctx, &domain.Firewall{Name: "fw", IPAddress: "10.0.0.1", Port: port})
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	fws, err := s.ListFirewalls(ctx)
	require.NoError(t, err)
	require.Len(t, fws, 20)
	for i, fw := range fws {
		assert.Equal(t, int64(i+1), fw.ID)
	}
}
