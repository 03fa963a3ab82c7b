package storage

import (
	"context"
	"errors"

	"github.com/bcnelson/firewall-policy-manager/internal/chain"
	"github.com/bcnelson/firewall-policy-manager/internal/domain"
)

// PolicyChain exposes the filtering policies of a Storage as a chain
// backend, one transaction per Atomically call.
type PolicyChain struct {
	store Storage
}

// NewPolicyChain creates a PolicyChain.
func NewPolicyChain(store Storage) *PolicyChain {
	return &PolicyChain{store: store}
}

// Atomically implements chain.Backend.
func (b *PolicyChain) Atomically(ctx context.Context, fn func(chain.Store[*domain.FilteringPolicy, domain.PolicyAttrs]) error) error {
	return WithTx(ctx, b.store, func(tx Storage) error {
		return fn(policyStore{tx})
	})
}

type policyStore struct {
	s Storage
}

func (p policyStore) Create(ctx context.Context, firewallID int64, attrs domain.PolicyAttrs, next *int64) (*domain.FilteringPolicy, error) {
	policy := &domain.FilteringPolicy{
		FirewallID:   firewallID,
		Name:         attrs.Name,
		NextPolicyID: next,
	}
	if err := p.s.CreateFilteringPolicy(ctx, policy); err != nil {
		return nil, err
	}
	return policy, nil
}

func (p policyStore) Get(ctx context.Context, id int64) (*domain.FilteringPolicy, error) {
	return p.s.GetFilteringPolicy(ctx, id)
}

func (p policyStore) ListByOwner(ctx context.Context, firewallID int64) ([]*domain.FilteringPolicy, error) {
	return p.s.ListFilteringPolicies(ctx, firewallID)
}

func (p policyStore) SetNext(ctx context.Context, id int64, next *int64) error {
	return p.s.SetNextFilteringPolicy(ctx, id, next)
}

func (p policyStore) Delete(ctx context.Context, id int64) (bool, error) {
	return deleted(p.s.DeleteFilteringPolicy(ctx, id))
}

// RuleChain exposes the rules of a Storage as a chain backend.
type RuleChain struct {
	store Storage
}

// NewRuleChain creates a RuleChain.
func NewRuleChain(store Storage) *RuleChain {
	return &RuleChain{store: store}
}

// Atomically implements chain.Backend.
func (b *RuleChain) Atomically(ctx context.Context, fn func(chain.Store[*domain.Rule, domain.RuleAttrs]) error) error {
	return WithTx(ctx, b.store, func(tx Storage) error {
		return fn(ruleStore{tx})
	})
}

type ruleStore struct {
	s Storage
}

func (r ruleStore) Create(ctx context.Context, policyID int64, attrs domain.RuleAttrs, next *int64) (*domain.Rule, error) {
	rule := &domain.Rule{
		FilteringPolicyID: policyID,
		Name:              attrs.Name,
		SourceIP:          attrs.SourceIP,
		DestinationIP:     attrs.DestinationIP,
		DestinationPort:   attrs.DestinationPort,
		Protocol:          attrs.Protocol,
		Action:            attrs.Action,
		NextRuleID:        next,
	}
	if err := r.s.CreateRule(ctx, rule); err != nil {
		return nil, err
	}
	return rule, nil
}

func (r ruleStore) Get(ctx context.Context, id int64) (*domain.Rule, error) {
	return r.s.GetRule(ctx, id)
}

func (r ruleStore) ListByOwner(ctx context.Context, policyID int64) ([]*domain.Rule, error) {
	return r.s.ListRules(ctx, policyID)
}

func (r ruleStore) SetNext(ctx context.Context, id int64, next *int64) error {
	return r.s.SetNextRule(ctx, id, next)
}

func (r ruleStore) Delete(ctx context.Context, id int64) (bool, error) {
	return deleted(r.s.DeleteRule(ctx, id))
}

func deleted(err error) (bool, error) {
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
