package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bcnelson/firewall-policy-manager/internal/domain"
	"github.com/bcnelson/firewall-policy-manager/internal/logging"
	"github.com/bcnelson/firewall-policy-manager/internal/storage"
	"github.com/bcnelson/firewall-policy-manager/internal/validation"
)

// FirewallService manages firewalls. A firewall is identified by its
// address and port.
type FirewallService struct {
	store    storage.Storage
	policies *policyChain
	logger   *logging.Logger
}

// Create registers a firewall. Re-submitting a firewall that already exists
// with the same name returns it with created false; the same address and
// port under another name is a conflict.
func (s *FirewallService) Create(ctx context.Context, req *domain.CreateFirewallRequest) (*domain.Firewall, bool, error) {
	if err := validation.ValidateFirewallRequest(req); err != nil {
		return nil, false, err
	}

	fw := &domain.Firewall{Name: req.Name, IPAddress: req.IPAddress, Port: req.Port}
	for attempt := 0; attempt < 2; attempt++ {
		existing, err := s.store.GetFirewallByAddress(ctx, req.IPAddress, req.Port)
		if err == nil {
			if !existing.Similar(fw) {
				return nil, false, fmt.Errorf("%w: a firewall with address %s:%d already exists", domain.ErrConflict, req.IPAddress, req.Port)
			}
			return existing, false, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, false, err
		}

		err = s.store.CreateFirewall(ctx, fw)
		if errors.Is(err, domain.ErrAlreadyExists) {
			// Lost a race with a concurrent create; compare against the winner.
			continue
		}
		if err != nil {
			return nil, false, fmt.Errorf("creating firewall: %w", err)
		}
		s.logger.Info("firewall created", "id", fw.ID, "address", req.IPAddress, "port", req.Port)
		return fw, true, nil
	}
	return nil, false, fmt.Errorf("%w: a firewall with address %s:%d already exists", domain.ErrConflict, req.IPAddress, req.Port)
}

// Get returns a firewall without its policies.
func (s *FirewallService) Get(ctx context.Context, id int64) (*domain.Firewall, error) {
	return s.store.GetFirewall(ctx, id)
}

// GetWithPolicies returns a firewall with its filtering policies in chain
// order.
func (s *FirewallService) GetWithPolicies(ctx context.Context, id int64) (*domain.Firewall, error) {
	fw, err := s.store.GetFirewall(ctx, id)
	if err != nil {
		return nil, err
	}
	order, err := s.policies.Materialize(ctx, id)
	if err != nil {
		return nil, err
	}
	fw.FilteringPolicies = order.Members()
	return fw, nil
}

// List returns every firewall.
func (s *FirewallService) List(ctx context.Context) ([]*domain.Firewall, error) {
	return s.store.ListFirewalls(ctx)
}

// Delete removes a firewall with all of its policies and rules. Deleting an
// unknown firewall is not an error.
func (s *FirewallService) Delete(ctx context.Context, id int64) error {
	err := s.store.DeleteFirewall(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("deleting firewall %d: %w", id, err)
	}
	s.logger.Info("firewall deleted", "id", id)
	return nil
}
