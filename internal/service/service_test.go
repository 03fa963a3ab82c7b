package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/bcnelson/firewall-policy-manager/internal/domain"
	"github.com/bcnelson/firewall-policy-manager/internal/logging"
	"github.com/bcnelson/firewall-policy-manager/internal/metrics"
	"github.com/bcnelson/firewall-policy-manager/internal/service"
	"github.com/bcnelson/firewall-policy-manager/internal/storage/memory"
	"github.com/bcnelson/firewall-policy-manager/internal/validation"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServices(t *testing.T) (*service.Services, *metrics.Registry) {
	t.Helper()
	reg := metrics.New()
	return service.New(memory.New(), service.WithLogger(logging.Discard()), service.WithMetrics(reg)), reg
}

func id(v int64) *int64 { return &v }

func createFirewall(t *testing.T, svc *service.Services) *domain.Firewall {
	t.Helper()
	fw, created, err := svc.Firewalls.Create(context.Background(), &domain.CreateFirewallRequest{
		Name: "edge", IPAddress: "192.168.1.1", Port: 8080,
	})
	require.NoError(t, err)
	require.True(t, created)
	return fw
}

func createPolicy(t *testing.T, svc *service.Services, firewallID int64, name string, after *int64) *domain.FilteringPolicy {
	t.Helper()
	p, created, err := svc.Policies.Create(context.Background(), firewallID, &domain.CreateFilteringPolicyRequest{
		Name: name, PreviousFilteringPolicyID: after,
	})
	require.NoError(t, err)
	require.True(t, created)
	return p
}

func policyNames(t *testing.T, svc *service.Services, firewallID int64) []string {
	t.Helper()
	ps, err := svc.Policies.List(context.Background(), firewallID)
	require.NoError(t, err)
	names := make([]string, 0, len(ps))
	for _, p := range ps {
		names = append(names, p.Name)
	}
	return names
}

func TestFirewallCreateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, _ := newServices(t)
	fw := createFirewall(t, svc)

	again, created, err := svc.Firewalls.Create(ctx, &domain.CreateFirewallRequest{Name: "edge", IPAddress: "192.168.1.1", Port: 8080})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, fw.ID, again.ID)

	_, _, err = svc.Firewalls.Create(ctx, &domain.CreateFirewallRequest{Name: "other", IPAddress: "192.168.1.1", Port: 8080})
	assert.ErrorIs(t, err, domain.ErrConflict)

	fws, err := svc.Firewalls.List(ctx)
	require.NoError(t, err)
	assert.Len(t, fws, 1)
}

func TestFirewallCreateValidates(t *testing.T) {
	svc, _ := newServices(t)
	_, _, err := svc.Firewalls.Create(context.Background(), &domain.CreateFirewallRequest{Name: "edge", IPAddress: "300.1.1.1", Port: 1})
	var verrs validation.ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Equal(t, "ip_address", verrs[0].Field)
}

func TestFirewallDeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, _ := newServices(t)
	fw := createFirewall(t, svc)
	p := createPolicy(t, svc, fw.ID, "inbound", nil)

	require.NoError(t, svc.Firewalls.Delete(ctx, fw.ID))
	require.NoError(t, svc.Firewalls.Delete(ctx, fw.ID))

	_, err := svc.Firewalls.Get(ctx, fw.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = svc.Policies.Get(ctx, p.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPolicyScenario(t *testing.T) {
	ctx := context.Background()
	svc, _ := newServices(t)
	fw := createFirewall(t, svc)

	a := createPolicy(t, svc, fw.ID, "A", nil)
	assert.Equal(t, []string{"A"}, policyNames(t, svc, fw.ID))

	b := createPolicy(t, svc, fw.ID, "B", nil)
	assert.Equal(t, []string{"B", "A"}, policyNames(t, svc, fw.ID))

	c := createPolicy(t, svc, fw.ID, "C", &b.ID)
	assert.Equal(t, []string{"B", "C", "A"}, policyNames(t, svc, fw.ID))

	require.NoError(t, svc.Policies.Delete(ctx, c.ID))
	assert.Equal(t, []string{"B", "A"}, policyNames(t, svc, fw.ID))

	require.NoError(t, svc.Policies.Delete(ctx, b.ID))
	assert.Equal(t, []string{"A"}, policyNames(t, svc, fw.ID))

	withPolicies, err := svc.Firewalls.GetWithPolicies(ctx, fw.ID)
	require.NoError(t, err)
	require.Len(t, withPolicies.FilteringPolicies, 1)
	assert.Equal(t, a.ID, withPolicies.FilteringPolicies[0].ID)

	require.NoError(t, svc.Policies.Delete(ctx, b.ID))
}

func TestPolicyIdempotentAndConflict(t *testing.T) {
	ctx := context.Background()
	svc, reg := newServices(t)
	fw := createFirewall(t, svc)
	a := createPolicy(t, svc, fw.ID, "A", nil)
	b := createPolicy(t, svc, fw.ID, "B", &a.ID)

	again, created, err := svc.Policies.Create(ctx, fw.ID, &domain.CreateFilteringPolicyRequest{Name: "B", PreviousFilteringPolicyID: &a.ID})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, b.ID, again.ID)

	_, _, err = svc.Policies.Create(ctx, fw.ID, &domain.CreateFilteringPolicyRequest{Name: "B"})
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, []string{"A", "B"}, policyNames(t, svc, fw.ID))

	assert.Equal(t, 1.0, testutil.ToFloat64(reg.GuardOutcomes.WithLabelValues(service.KindFilteringPolicy, "existing")))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.GuardOutcomes.WithLabelValues(service.KindFilteringPolicy, "conflict")))
}

func TestPolicyOwnerAndPredecessorChecks(t *testing.T) {
	ctx := context.Background()
	svc, _ := newServices(t)
	fw := createFirewall(t, svc)
	other, _, err := svc.Firewalls.Create(ctx, &domain.CreateFirewallRequest{Name: "core", IPAddress: "192.168.1.2", Port: 8080})
	require.NoError(t, err)
	foreign := createPolicy(t, svc, other.ID, "X", nil)

	_, _, err = svc.Policies.Create(ctx, 404, &domain.CreateFilteringPolicyRequest{Name: "A"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, _, err = svc.Policies.Create(ctx, fw.ID, &domain.CreateFilteringPolicyRequest{Name: "A", PreviousFilteringPolicyID: id(404)})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, _, err = svc.Policies.Create(ctx, fw.ID, &domain.CreateFilteringPolicyRequest{Name: "A", PreviousFilteringPolicyID: &foreign.ID})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.Policies.List(ctx, 404)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Empty(t, policyNames(t, svc, fw.ID))
}

func TestRuleConflictOnAction(t *testing.T) {
	ctx := context.Background()
	svc, _ := newServices(t)
	fw := createFirewall(t, svc)
	p := createPolicy(t, svc, fw.ID, "inbound", nil)

	req := domain.CreateRuleRequest{
		SourceIP:        "10.0.0.1",
		DestinationIP:   "10.0.0.2",
		DestinationPort: 443,
		Protocol:        domain.ProtocolTCP,
		Action:          domain.ActionAllow,
	}
	first, created, err := svc.Rules.Create(ctx, p.ID, &req)
	require.NoError(t, err)
	assert.True(t, created)

	same, created, err := svc.Rules.Create(ctx, p.ID, &req)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, same.ID)

	deny := req
	deny.Action = domain.ActionDeny
	_, _, err = svc.Rules.Create(ctx, p.ID, &deny)
	assert.ErrorIs(t, err, domain.ErrConflict)

	rules, err := svc.Rules.List(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, domain.ActionAllow, rules[0].Action)
}

func TestRuleOrdering(t *testing.T) {
	ctx := context.Background()
	svc, _ := newServices(t)
	fw := createFirewall(t, svc)
	p := createPolicy(t, svc, fw.ID, "inbound", nil)

	rule := func(port int, after *int64) *domain.Rule {
		r, _, err := svc.Rules.Create(ctx, p.ID, &domain.CreateRuleRequest{
			PreviousRuleID:  after,
			SourceIP:        "10.0.0.1",
			DestinationIP:   "10.0.0.2",
			DestinationPort: port,
			Protocol:        domain.ProtocolUDP,
			Action:          domain.ActionDeny,
		})
		require.NoError(t, err)
		return r
	}

	r1 := rule(1, nil)
	r2 := rule(2, &r1.ID)
	r3 := rule(3, &r1.ID)
	r0 := rule(0, nil)

	withRules, err := svc.Policies.GetWithRules(ctx, p.ID)
	require.NoError(t, err)
	got := make([]int64, 0, len(withRules.Rules))
	for _, r := range withRules.Rules {
		got = append(got, r.ID)
	}
	assert.Equal(t, []int64{r0.ID, r1.ID, r3.ID, r2.ID}, got)

	require.NoError(t, svc.Rules.Delete(ctx, r0.ID))
	require.NoError(t, svc.Rules.Delete(ctx, r0.ID))
	rules, err := svc.Rules.List(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, rules, 3)
	assert.Equal(t, r1.ID, rules[0].ID)

	_, _, err = svc.Rules.Create(ctx, 404, &domain.CreateRuleRequest{
		SourceIP: "10.0.0.1", DestinationIP: "10.0.0.2", Protocol: domain.ProtocolAny, Action: domain.ActionAllow,
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPolicyDeleteRemovesRules(t *testing.T) {
	ctx := context.Background()
	svc, _ := newServices(t)
	fw := createFirewall(t, svc)
	p := createPolicy(t, svc, fw.ID, "inbound", nil)
	r, _, err := svc.Rules.Create(ctx, p.ID, &domain.CreateRuleRequest{
		SourceIP: "10.0.0.1", DestinationIP: "10.0.0.2", DestinationPort: 22, Protocol: domain.ProtocolTCP, Action: domain.ActionAllow,
	})
	require.NoError(t, err)

	require.NoError(t, svc.Policies.Delete(ctx, p.ID))
	_, err = svc.Rules.Get(ctx, r.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
