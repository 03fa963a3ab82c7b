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

// PolicyService manages the ordered filtering policies of a firewall.
type PolicyService struct {
	store    storage.Storage
	policies *policyChain
	rules    *ruleChain
	logger   *logging.Logger
}

// Create inserts a filtering policy at the head of the firewall's chain, or
// directly after PreviousFilteringPolicyID. If a policy with the same name
// already sits at exactly that place it is returned with created false; a
// policy with the same name anywhere else is a conflict.
func (s *PolicyService) Create(ctx context.Context, firewallID int64, req *domain.CreateFilteringPolicyRequest) (*domain.FilteringPolicy, bool, error) {
	if err := validation.ValidateFilteringPolicyRequest(req); err != nil {
		return nil, false, err
	}
	if _, err := s.store.GetFirewall(ctx, firewallID); err != nil {
		return nil, false, fmt.Errorf("firewall %d: %w", firewallID, err)
	}

	attrs := domain.PolicyAttrs{Name: req.Name}
	at := chain.AfterPtr(req.PreviousFilteringPolicyID)
	policy, created, err := s.policies.Insert(ctx, firewallID, at, attrs, attrs)
	if err != nil {
		return nil, false, err
	}
	if created {
		s.logger.Info("filtering policy created", "id", policy.ID, "firewall_id", firewallID, "placement", at.String())
	}
	return policy, created, nil
}

// Get returns a filtering policy without its rules.
func (s *PolicyService) Get(ctx context.Context, id int64) (*domain.FilteringPolicy, error) {
	return s.store.GetFilteringPolicy(ctx, id)
}

// GetWithRules returns a filtering policy with its rules in evaluation
// order.
func (s *PolicyService) GetWithRules(ctx context.Context, id int64) (*domain.FilteringPolicy, error) {
	policy, err := s.store.GetFilteringPolicy(ctx, id)
	if err != nil {
		return nil, err
	}
	order, err := s.rules.Materialize(ctx, id)
	if err != nil {
		return nil, err
	}
	policy.Rules = order.Members()
	return policy, nil
}

// List returns the firewall's filtering policies in chain order.
func (s *PolicyService) List(ctx context.Context, firewallID int64) ([]*domain.FilteringPolicy, error) {
	if _, err := s.store.GetFirewall(ctx, firewallID); err != nil {
		return nil, fmt.Errorf("firewall %d: %w", firewallID, err)
	}
	order, err := s.policies.Materialize(ctx, firewallID)
	if err != nil {
		return nil, err
	}
	return order.Members(), nil
}

// Delete unlinks and removes a filtering policy and its rules. Deleting an
// unknown policy is not an error.
func (s *PolicyService) Delete(ctx context.Context, id int64) error {
	deleted, err := s.policies.Delete(ctx, id)
	if err != nil {
		return err
	}
	if deleted {
		s.logger.Info("filtering policy deleted", "id", id)
	}
	return nil
}
