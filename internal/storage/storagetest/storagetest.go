// Package storagetest holds the behavioural suite every storage.Storage
// implementation must pass.
package storagetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bcnelson/firewall-policy-manager/internal/chain"
	"github.com/bcnelson/firewall-policy-manager/internal/domain"
	"github.com/bcnelson/firewall-policy-manager/internal/logging"
	"github.com/bcnelson/firewall-policy-manager/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty store. The suite closes it when the test ends.
type Factory func(t *testing.T) storage.Storage

// Run exercises s against the storage contract.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s storage.Storage)
	}{
		{"FirewallCRUD", testFirewallCRUD},
		{"FirewallUniqueAddress", testFirewallUniqueAddress},
		{"PolicyRequiresFirewall", testPolicyRequiresFirewall},
		{"PolicyUniqueName", testPolicyUniqueName},
		{"SuccessorIsUnique", testSuccessorIsUnique},
		{"RuleFields", testRuleFields},
		{"RuleUniqueMatch", testRuleUniqueMatch},
		{"DeleteClearsSuccessor", testDeleteClearsSuccessor},
		{"DeleteFirewallCascades", testDeleteFirewallCascades},
		{"Rollback", testRollback},
		{"Commit", testCommit},
		{"PolicyChain", testPolicyChain},
		{"RuleChain", testRuleChain},
		{"APIKeys", testAPIKeys},
		{"APIKeyUniqueHash", testAPIKeyUniqueHash},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			tt.fn(t, s)
		})
	}
}

func ptr[T any](v T) *T { return &v }

func memberIDs[M chain.Member](o *chain.Order[M]) []int64 {
	out := make([]int64, 0, o.Len())
	for _, m := range o.Members() {
		out = append(out, m.ChainID())
	}
	return out
}

func firewall(t *testing.T, s storage.Storage, name, ip string, port int) *domain.Firewall {
	t.Helper()
	fw := &domain.Firewall{Name: name, IPAddress: ip, Port: port}
	require.NoError(t, s.CreateFirewall(context.Background(), fw))
	require.NotZero(t, fw.ID)
	return fw
}

func policy(t *testing.T, s storage.Storage, firewallID int64, name string, next *int64) *domain.FilteringPolicy {
	t.Helper()
	p := &domain.FilteringPolicy{FirewallID: firewallID, Name: name, NextPolicyID: next}
	require.NoError(t, s.CreateFilteringPolicy(context.Background(), p))
	require.NotZero(t, p.ID)
	return p
}

func rule(t *testing.T, s storage.Storage, policyID int64, dport int, next *int64) *domain.Rule {
	t.Helper()
	r := &domain.Rule{
		FilteringPolicyID: policyID,
		SourceIP:          "10.0.0.1",
		DestinationIP:     "10.0.0.2",
		DestinationPort:   dport,
		Protocol:          domain.ProtocolTCP,
		Action:            domain.ActionAllow,
		NextRuleID:        next,
	}
	require.NoError(t, s.CreateRule(context.Background(), r))
	require.NotZero(t, r.ID)
	return r
}

func testFirewallCRUD(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	fw := firewall(t, s, "edge", "192.168.1.1", 8080)

	got, err := s.GetFirewall(ctx, fw.ID)
	require.NoError(t, err)
	assert.Equal(t, fw.Name, got.Name)
	assert.Equal(t, fw.IPAddress, got.IPAddress)
	assert.Equal(t, fw.Port, got.Port)

	byAddr, err := s.GetFirewallByAddress(ctx, "192.168.1.1", 8080)
	require.NoError(t, err)
	assert.Equal(t, fw.ID, byAddr.ID)

	_, err = s.GetFirewallByAddress(ctx, "192.168.1.1", 8081)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	second := firewall(t, s, "core", "192.168.1.2", 8080)
	fws, err := s.ListFirewalls(ctx)
	require.NoError(t, err)
	require.Len(t, fws, 2)
	assert.Equal(t, fw.ID, fws[0].ID)
	assert.Equal(t, second.ID, fws[1].ID)

	require.NoError(t, s.DeleteFirewall(ctx, fw.ID))
	_, err = s.GetFirewall(ctx, fw.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, s.DeleteFirewall(ctx, fw.ID), domain.ErrNotFound)
}

func testFirewallUniqueAddress(t *testing.T, s storage.Storage) {
	firewall(t, s, "edge", "192.168.1.1", 8080)
	err := s.CreateFirewall(context.Background(), &domain.Firewall{Name: "other", IPAddress: "192.168.1.1", Port: 8080})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
}

func testPolicyRequiresFirewall(t *testing.T, s storage.Storage) {
	err := s.CreateFilteringPolicy(context.Background(), &domain.FilteringPolicy{FirewallID: 404, Name: "p"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	err = s.CreateRule(context.Background(), &domain.Rule{
		FilteringPolicyID: 404,
		SourceIP:          "10.0.0.1",
		DestinationIP:     "10.0.0.2",
		Protocol:          domain.ProtocolAny,
		Action:            domain.ActionDeny,
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func testPolicyUniqueName(t *testing.T, s storage.Storage) {
	fw := firewall(t, s, "edge", "192.168.1.1", 8080)
	other := firewall(t, s, "core", "192.168.1.2", 8080)
	policy(t, s, fw.ID, "inbound", nil)

	err := s.CreateFilteringPolicy(context.Background(), &domain.FilteringPolicy{FirewallID: fw.ID, Name: "inbound"})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	policy(t, s, other.ID, "inbound", nil)
}

func testSuccessorIsUnique(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	fw := firewall(t, s, "edge", "192.168.1.1", 8080)
	tail := policy(t, s, fw.ID, "tail", nil)
	head := policy(t, s, fw.ID, "head", &tail.ID)

	err := s.CreateFilteringPolicy(ctx, &domain.FilteringPolicy{FirewallID: fw.ID, Name: "fork", NextPolicyID: &tail.ID})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	lone := policy(t, s, fw.ID, "lone", nil)
	assert.ErrorIs(t, s.SetNextFilteringPolicy(ctx, lone.ID, &tail.ID), domain.ErrAlreadyExists)

	require.NoError(t, s.SetNextFilteringPolicy(ctx, head.ID, nil))
	require.NoError(t, s.SetNextFilteringPolicy(ctx, lone.ID, &tail.ID))

	got, err := s.GetFilteringPolicy(ctx, lone.ID)
	require.NoError(t, err)
	require.NotNil(t, got.NextPolicyID)
	assert.Equal(t, tail.ID, *got.NextPolicyID)

	assert.ErrorIs(t, s.SetNextFilteringPolicy(ctx, 404, nil), domain.ErrNotFound)
}

func testRuleFields(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	fw := firewall(t, s, "edge", "192.168.1.1", 8080)
	p := policy(t, s, fw.ID, "inbound", nil)

	named := &domain.Rule{
		FilteringPolicyID: p.ID,
		Name:              ptr("ssh"),
		SourceIP:          "10.0.0.1",
		DestinationIP:     "10.0.0.2",
		DestinationPort:   22,
		Protocol:          domain.ProtocolTCP,
		Action:            domain.ActionDeny,
	}
	require.NoError(t, s.CreateRule(ctx, named))
	unnamed := rule(t, s, p.ID, 443, &named.ID)

	got, err := s.GetRule(ctx, named.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Name)
	assert.Equal(t, "ssh", *got.Name)
	assert.Equal(t, 22, got.DestinationPort)
	assert.Equal(t, domain.ProtocolTCP, got.Protocol)
	assert.Equal(t, domain.ActionDeny, got.Action)
	assert.Nil(t, got.NextRuleID)

	got, err = s.GetRule(ctx, unnamed.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Name)
	require.NotNil(t, got.NextRuleID)
	assert.Equal(t, named.ID, *got.NextRuleID)

	rules, err := s.ListRules(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, rules, 2)

	rules, err = s.ListRules(ctx, 404)
	require.NoError(t, err)
	assert.Empty(t, rules)
}

func testRuleUniqueMatch(t *testing.T, s storage.Storage) {
	fw := firewall(t, s, "edge", "192.168.1.1", 8080)
	p := policy(t, s, fw.ID, "inbound", nil)
	rule(t, s, p.ID, 22, nil)

	dup := &domain.Rule{
		FilteringPolicyID: p.ID,
		SourceIP:          "10.0.0.1",
		DestinationIP:     "10.0.0.2",
		DestinationPort:   22,
		Protocol:          domain.ProtocolTCP,
		Action:            domain.ActionDeny,
	}
	assert.ErrorIs(t, s.CreateRule(context.Background(), dup), domain.ErrAlreadyExists)
}

func testDeleteClearsSuccessor(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	fw := firewall(t, s, "edge", "192.168.1.1", 8080)
	tail := policy(t, s, fw.ID, "tail", nil)
	head := policy(t, s, fw.ID, "head", &tail.ID)

	require.NoError(t, s.DeleteFilteringPolicy(ctx, tail.ID))

	got, err := s.GetFilteringPolicy(ctx, head.ID)
	require.NoError(t, err)
	assert.Nil(t, got.NextPolicyID)

	assert.ErrorIs(t, s.DeleteFilteringPolicy(ctx, tail.ID), domain.ErrNotFound)
}

func testDeleteFirewallCascades(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	fw := firewall(t, s, "edge", "192.168.1.1", 8080)
	kept := firewall(t, s, "core", "192.168.1.2", 8080)
	p := policy(t, s, fw.ID, "inbound", nil)
	keptPolicy := policy(t, s, kept.ID, "inbound", nil)
	r := rule(t, s, p.ID, 22, nil)

	require.NoError(t, s.DeleteFirewall(ctx, fw.ID))

	_, err := s.GetFilteringPolicy(ctx, p.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = s.GetRule(ctx, r.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = s.GetFilteringPolicy(ctx, keptPolicy.ID)
	assert.NoError(t, err)
}

func testRollback(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	errBoom := errors.New("boom")

	var created int64
	err := storage.WithTx(ctx, s, func(tx storage.Storage) error {
		fw := &domain.Firewall{Name: "edge", IPAddress: "192.168.1.1", Port: 8080}
		if err := tx.CreateFirewall(ctx, fw); err != nil {
			return err
		}
		created = fw.ID
		got, err := tx.GetFirewall(ctx, fw.ID)
		if err != nil {
			return err
		}
		assert.Equal(t, "edge", got.Name)
		return errBoom
	})
	require.ErrorIs(t, err, errBoom)

	_, err = s.GetFirewall(ctx, created)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	fws, err := s.ListFirewalls(ctx)
	require.NoError(t, err)
	assert.Empty(t, fws)
}

func testCommit(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	fw := firewall(t, s, "edge", "192.168.1.1", 8080)

	err := storage.WithTx(ctx, s, func(tx storage.Storage) error {
		a := &domain.FilteringPolicy{FirewallID: fw.ID, Name: "a"}
		if err := tx.CreateFilteringPolicy(ctx, a); err != nil {
			return err
		}
		b := &domain.FilteringPolicy{FirewallID: fw.ID, Name: "b"}
		if err := tx.CreateFilteringPolicy(ctx, b); err != nil {
			return err
		}
		return tx.SetNextFilteringPolicy(ctx, a.ID, &b.ID)
	})
	require.NoError(t, err)

	ps, err := s.ListFilteringPolicies(ctx, fw.ID)
	require.NoError(t, err)
	require.Len(t, ps, 2)
	require.NotNil(t, ps[0].NextPolicyID)
	assert.Equal(t, ps[1].ID, *ps[0].NextPolicyID)
}

func names(order *chain.Order[*domain.FilteringPolicy]) []string {
	out := make([]string, 0, order.Len())
	for _, p := range order.Members() {
		out = append(out, p.Name)
	}
	return out
}

func testPolicyChain(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	fw := firewall(t, s, "edge", "192.168.1.1", 8080)
	c := chain.New[*domain.FilteringPolicy, domain.PolicyAttrs]("filtering_policy",
		storage.NewPolicyChain(s), chain.WithLogger(logging.Discard()))

	a, err := c.InsertFirst(ctx, fw.ID, domain.PolicyAttrs{Name: "a"})
	require.NoError(t, err)
	b, err := c.InsertAfter(ctx, a.ID, domain.PolicyAttrs{Name: "b"})
	require.NoError(t, err)
	_, err = c.InsertAfter(ctx, a.ID, domain.PolicyAttrs{Name: "c"})
	require.NoError(t, err)
	_, err = c.InsertFirst(ctx, fw.ID, domain.PolicyAttrs{Name: "z"})
	require.NoError(t, err)

	order, err := c.Materialize(ctx, fw.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"z", "a", "c", "b"}, names(order))

	_, err = c.InsertAfter(ctx, a.ID, domain.PolicyAttrs{Name: "b"})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
	order, err = c.Materialize(ctx, fw.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"z", "a", "c", "b"}, names(order))

	ok, err := c.Delete(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = c.Delete(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = c.Delete(ctx, b.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	order, err = c.Materialize(ctx, fw.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"z", "c"}, names(order))

	existing, created, err := c.Insert(ctx, fw.ID, chain.After(memberIDs(order)[0]), domain.PolicyAttrs{Name: "c"}, domain.PolicyAttrs{Name: "c"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, memberIDs(order)[1], existing.ID)

	_, _, err = c.Insert(ctx, fw.ID, chain.Head(), domain.PolicyAttrs{Name: "c"}, domain.PolicyAttrs{Name: "c"})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func testRuleChain(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	fw := firewall(t, s, "edge", "192.168.1.1", 8080)
	p := policy(t, s, fw.ID, "inbound", nil)
	c := chain.New[*domain.Rule, domain.RuleAttrs]("rule",
		storage.NewRuleChain(s), chain.WithLogger(logging.Discard()))

	attrs := func(port int, action domain.Action) domain.RuleAttrs {
		return domain.RuleAttrs{
			SourceIP:        "10.0.0.1",
			DestinationIP:   "10.0.0.2",
			DestinationPort: port,
			Protocol:        domain.ProtocolTCP,
			Action:          action,
		}
	}

	first, created, err := c.Insert(ctx, p.ID, chain.Head(), attrs(22, domain.ActionAllow), attrs(22, domain.ActionAllow))
	require.NoError(t, err)
	assert.True(t, created)
	second, created, err := c.Insert(ctx, p.ID, chain.After(first.ID), attrs(80, domain.ActionAllow), attrs(80, domain.ActionAllow))
	require.NoError(t, err)
	assert.True(t, created)

	_, _, err = c.Insert(ctx, p.ID, chain.After(first.ID), attrs(80, domain.ActionDeny), attrs(80, domain.ActionDeny))
	assert.ErrorIs(t, err, domain.ErrConflict)

	_, _, err = c.Insert(ctx, p.ID, chain.After(404), attrs(443, domain.ActionAllow), attrs(443, domain.ActionAllow))
	assert.ErrorIs(t, err, domain.ErrNotFound)

	order, err := c.Materialize(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{first.ID, second.ID}, memberIDs(order))

	require.NoError(t, s.DeleteFilteringPolicy(ctx, p.ID))
	order, err = c.Materialize(ctx, p.ID)
	require.NoError(t, err)
	assert.Zero(t, order.Len())
}

func testAPIKeys(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	n, err := s.CountAPIKeys(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	older := &domain.APIKey{ID: "k1", Name: "ci", KeyHash: "hash-1", KeyPrefix: "fwm_00000001", CreatedAt: created}
	newer := &domain.APIKey{ID: "k2", Name: "ops", KeyHash: "hash-2", KeyPrefix: "fwm_00000002", CreatedAt: created.Add(time.Hour)}
	require.NoError(t, s.CreateAPIKey(ctx, older))
	require.NoError(t, s.CreateAPIKey(ctx, newer))

	n, err = s.CountAPIKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := s.GetAPIKeyByHash(ctx, "hash-1")
	require.NoError(t, err)
	assert.Equal(t, "k1", got.ID)
	assert.Equal(t, "ci", got.Name)
	assert.True(t, created.Equal(got.CreatedAt), "created_at = %v", got.CreatedAt)
	assert.Nil(t, got.LastUsedAt)

	_, err = s.GetAPIKeyByHash(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	used := created.Add(2 * time.Hour)
	require.NoError(t, s.UpdateAPIKeyLastUsed(ctx, "k1", used))
	got, err = s.GetAPIKeyByHash(ctx, "hash-1")
	require.NoError(t, err)
	require.NotNil(t, got.LastUsedAt)
	assert.True(t, used.Equal(*got.LastUsedAt), "last_used_at = %v", got.LastUsedAt)

	keys, err := s.ListAPIKeys(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Equal(t, "k2", keys[0].ID, "newest first")
	assert.Equal(t, "k1", keys[1].ID)

	require.NoError(t, s.DeleteAPIKey(ctx, "k1"))
	assert.ErrorIs(t, s.DeleteAPIKey(ctx, "k1"), domain.ErrNotFound)
	assert.ErrorIs(t, s.UpdateAPIKeyLastUsed(ctx, "k1", used), domain.ErrNotFound)

	n, err = s.CountAPIKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func testAPIKeyUniqueHash(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, s.CreateAPIKey(ctx, &domain.APIKey{ID: "a", Name: "a", KeyHash: "same", KeyPrefix: "fwm_a", CreatedAt: now}))
	err := s.CreateAPIKey(ctx, &domain.APIKey{ID: "b", Name: "b", KeyHash: "same", KeyPrefix: "fwm_b", CreatedAt: now})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
}
