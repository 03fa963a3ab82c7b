package memory

import (
	"context"
	"errors"
	"time"

	"github.com/bcnelson/firewall-policy-manager/internal/domain"
	"github.com/bcnelson/firewall-policy-manager/internal/storage"
)

// Tx is a transaction over a private copy of the store state. It holds the
// store's writer lock until Commit or Rollback.
type Tx struct {
	store *Store
	st    *state
	done  bool
}

func (t *Tx) Commit() error {
	if t.done {
		return errTxDone
	}
	t.done = true

	t.store.mu.Lock()
	t.store.st = t.st
	t.store.mu.Unlock()

	t.store.txMu.Unlock()
	return nil
}

func (t *Tx) Rollback() error {
	if t.done {
		return errTxDone
	}
	t.done = true
	t.store.txMu.Unlock()
	return nil
}

func (t *Tx) Close() error { return nil }

func (t *Tx) BeginTx(ctx context.Context) (storage.Transaction, error) {
	return nil, errors.New("nested transactions not supported")
}

// active returns the transaction state, or errTxDone once finished.
func (t *Tx) active() (*state, error) {
	if t.done {
		return nil, errTxDone
	}
	return t.st, nil
}

func (t *Tx) CreateFirewall(ctx context.Context, fw *domain.Firewall) error {
	st, err := t.active()
	if err != nil {
		return err
	}
	return st.createFirewall(fw)
}

func (t *Tx) GetFirewall(ctx context.Context, id int64) (*domain.Firewall, error) {
	st, err := t.active()
	if err != nil {
		return nil, err
	}
	return st.getFirewall(id)
}

func (t *Tx) GetFirewallByAddress(ctx context.Context, ipAddress string, port int) (*domain.Firewall, error) {
	st, err := t.active()
	if err != nil {
		return nil, err
	}
	return st.getFirewallByAddress(ipAddress, port)
}

func (t *Tx) ListFirewalls(ctx context.Context) ([]*domain.Firewall, error) {
	st, err := t.active()
	if err != nil {
		return nil, err
	}
	return st.listFirewalls(), nil
}

func (t *Tx) DeleteFirewall(ctx context.Context, id int64) error {
	st, err := t.active()
	if err != nil {
		return err
	}
	return st.deleteFirewall(id)
}

func (t *Tx) CreateFilteringPolicy(ctx context.Context, policy *domain.FilteringPolicy) error {
	st, err := t.active()
	if err != nil {
		return err
	}
	return st.createPolicy(policy)
}

func (t *Tx) GetFilteringPolicy(ctx context.Context, id int64) (*domain.FilteringPolicy, error) {
	st, err := t.active()
	if err != nil {
		return nil, err
	}
	return st.getPolicy(id)
}

func (t *Tx) ListFilteringPolicies(ctx context.Context, firewallID int64) ([]*domain.FilteringPolicy, error) {
	st, err := t.active()
	if err != nil {
		return nil, err
	}
	return st.listPolicies(firewallID), nil
}

func (t *Tx) SetNextFilteringPolicy(ctx context.Context, id int64, next *int64) error {
	st, err := t.active()
	if err != nil {
		return err
	}
	return st.setNextPolicy(id, next)
}

func (t *Tx) DeleteFilteringPolicy(ctx context.Context, id int64) error {
	st, err := t.active()
	if err != nil {
		return err
	}
	return st.deletePolicy(id)
}

func (t *Tx) CreateRule(ctx context.Context, rule *domain.Rule) error {
	st, err := t.active()
	if err != nil {
		return err
	}
	return st.createRule(rule)
}

func (t *Tx) GetRule(ctx context.Context, id int64) (*domain.Rule, error) {
	st, err := t.active()
	if err != nil {
		return nil, err
	}
	return st.getRule(id)
}

func (t *Tx) ListRules(ctx context.Context, policyID int64) ([]*domain.Rule, error) {
	st, err := t.active()
	if err != nil {
		return nil, err
	}
	return st.listRules(policyID), nil
}

func (t *Tx) SetNextRule(ctx context.Context, id int64, next *int64) error {
	st, err := t.active()
	if err != nil {
		return err
	}
	return st.setNextRule(id, next)
}

func (t *Tx) DeleteRule(ctx context.Context, id int64) error {
	st, err := t.active()
	if err != nil {
		return err
	}
	return st.deleteRule(id)
}

func (t *Tx) CreateAPIKey(ctx context.Context, key *domain.APIKey) error {
	st, err := t.active()
	if err != nil {
		return err
	}
	return st.createAPIKey(key)
}

func (t *Tx) GetAPIKeyByHash(ctx context.Context, keyHash string) (*domain.APIKey, error) {
	st, err := t.active()
	if err != nil {
		return nil, err
	}
	return st.getAPIKeyByHash(keyHash)
}

func (t *Tx) ListAPIKeys(ctx context.Context) ([]*domain.APIKey, error) {
	st, err := t.active()
	if err != nil {
		return nil, err
	}
	return st.listAPIKeys(), nil
}

func (t *Tx) DeleteAPIKey(ctx context.Context, id string) error {
	st, err := t.active()
	if err != nil {
		return err
	}
	return st.deleteAPIKey(id)
}

func (t *Tx) UpdateAPIKeyLastUsed(ctx context.Context, id string, at time.Time) error {
	st, err := t.active()
	if err != nil {
		return err
	}
	return st.touchAPIKey(id, at)
}

func (t *Tx) CountAPIKeys(ctx context.Context) (int, error) {
	st, err := t.active()
	if err != nil {
		return 0, err
	}
	return len(st.apiKeys), nil
}
