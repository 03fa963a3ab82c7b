package service

import (
	"context"
	"fmt"

	"github.com/bcnelson/firewall-policy-manager/internal/chain"
	"github.com/bcnelson/firewall-policy-manager/internal/domain"
	"github.com/bcnelson/firewall-policy-manager/internal/logging"
	"github.com/bcnelson/firewall-policy-manager/internal/storage"
	"github.com/bcnelson/firewall-policy-manager/internal/validation"
)

// RuleService manages the ordered rules of a filtering policy. Rules are
// evaluated first match wins, so position is part of their meaning.
type RuleService struct {
	store  storage.Storage
	rules  *ruleChain
	logger *logging.Logger
}

// Create inserts a rule at the head of the policy, or directly after
// PreviousRuleID. A rule filtering the same traffic (source, destination,
// port and protocol) is returned with created false only if it is identical
// and already at that place; otherwise the request is a conflict.
func (s *RuleService) Create(ctx context.Context, policyID int64, req *domain.CreateRuleRequest) (*domain.Rule, bool, error) {
	if err := validation.ValidateRuleRequest(req); err != nil {
		return nil, false, err
	}
	if _, err := s.store.GetFilteringPolicy(ctx, policyID); err != nil {
		return nil, false, fmt.Errorf("filtering policy %d: %w", policyID, err)
	}

	attrs := req.Attrs()
	at := chain.AfterPtr(req.PreviousRuleID)
	rule, created, err := s.rules.Insert(ctx, policyID, at, attrs, attrs)
	if err != nil {
		return nil, false, err
	}
	if created {
		s.logger.Info("rule created", "id", rule.ID, "filtering_policy_id", policyID, "placement", at.String())
	}
	return rule, created, nil
}

// Get returns a rule.
func (s *RuleService) Get(ctx context.Context, id int64) (*domain.Rule, error) {
	return s.store.GetRule(ctx, id)
}

// GetWithPolicy returns a rule with its filtering policy embedded. The
// policy's own rules are not loaded.
func (s *RuleService) GetWithPolicy(ctx context.Context, id int64) (*domain.Rule, error) {
	rule, err := s.store.GetRule(ctx, id)
	if err != nil {
		return nil, err
	}
	policy, err := s.store.GetFilteringPolicy(ctx, rule.FilteringPolicyID)
	if err != nil {
		return nil, fmt.Errorf("filtering policy %d: %w", rule.FilteringPolicyID, err)
	}
	rule.FilteringPolicy = policy
	return rule, nil
}

// List returns the policy's rules in evaluation order.
func (s *RuleService) List(ctx context.Context, policyID int64) ([]*domain.Rule, error) {
	if _, err := s.store.GetFilteringPolicy(ctx, policyID); err != nil {
		return nil, fmt.Errorf("filtering policy %d: %w", policyID, err)
	}
	order, err := s.rules.Materialize(ctx, policyID)
	if err != nil {
		return nil, err
	}
	return order.Members(), nil
}

// Delete unlinks and removes a rule. Deleting an unknown rule is not an
// error.
func (s *RuleService) Delete(ctx context.Context, id int64) error {
	deleted, err := s.rules.Delete(ctx, id)
	if err != nil {
		return err
	}
	if deleted {
		s.logger.Info("rule deleted", "id", id)
	}
	return nil
}
