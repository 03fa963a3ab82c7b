package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/bcnelson/firewall-policy-manager/internal/domain"
)

// Storage defines the interface for the storage layer.
// Implementations must be safe for concurrent use.
//
// Create methods assign the generated identity to the passed entity. Lookups
// of unknown identities and deletes that affect nothing return
// domain.ErrNotFound; unique constraint violations return
// domain.ErrAlreadyExists.
type Storage interface {
	// Close closes the storage connection.
	Close() error

	// Firewalls
	CreateFirewall(ctx context.Context, fw *domain.Firewall) error
	GetFirewall(ctx context.Context, id int64) (*domain.Firewall, error)
	GetFirewallByAddress(ctx context.Context, ipAddress string, port int) (*domain.Firewall, error)
	ListFirewalls(ctx context.Context) ([]*domain.Firewall, error)
	DeleteFirewall(ctx context.Context, id int64) error

	// Filtering policies. Lists are unordered; order is materialized by the
	// chain package from NextPolicyID.
	CreateFilteringPolicy(ctx context.Context, policy *domain.FilteringPolicy) error
	GetFilteringPolicy(ctx context.Context, id int64) (*domain.FilteringPolicy, error)
	ListFilteringPolicies(ctx context.Context, firewallID int64) ([]*domain.FilteringPolicy, error)
	SetNextFilteringPolicy(ctx context.Context, id int64, next *int64) error
	DeleteFilteringPolicy(ctx context.Context, id int64) error

	// Rules
	CreateRule(ctx context.Context, rule *domain.Rule) error
	GetRule(ctx context.Context, id int64) (*domain.Rule, error)
	ListRules(ctx context.Context, policyID int64) ([]*domain.Rule, error)
	SetNextRule(ctx context.Context, id int64, next *int64) error
	DeleteRule(ctx context.Context, id int64) error

	// API keys. Keys are looked up by the hex SHA-256 hash of their value.
	CreateAPIKey(ctx context.Context, key *domain.APIKey) error
	GetAPIKeyByHash(ctx context.Context, keyHash string) (*domain.APIKey, error)
	ListAPIKeys(ctx context.Context) ([]*domain.APIKey, error)
	DeleteAPIKey(ctx context.Context, id string) error
	UpdateAPIKeyLastUsed(ctx context.Context, id string, at time.Time) error
	CountAPIKeys(ctx context.Context) (int, error)

	// Transaction support
	BeginTx(ctx context.Context) (Transaction, error)
}

// Transaction represents a database transaction.
type Transaction interface {
	Storage
	Commit() error
	Rollback() error
}

// WithTx runs fn inside a transaction, committing if it returns nil and
// rolling back otherwise.
func WithTx(ctx context.Context, s Storage, fn func(tx Storage) error) (err error) {
	tx, err := s.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
