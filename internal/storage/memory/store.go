package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bcnelson/firewall-policy-manager/internal/domain"
	"github.com/bcnelson/firewall-policy-manager/internal/storage"
)

var errTxDone = errors.New("transaction has already been committed or rolled back")

// Store is an in-memory implementation of the storage interface for testing.
//
// Transactions work on a private copy of the state taken at BeginTx and
// replace the shared state on Commit. Writers, transactional or not, are
// serialized by txMu so a commit never discards a concurrent write.
type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	st   *state
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{st: newState()}
}

func (s *Store) Close() error { return nil }

func (s *Store) read(fn func(st *state) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.st)
}

// update applies fn to a copy of the state and publishes it only on success,
// so a failing cascade never leaves partial writes behind.
func (s *Store) update(fn func(st *state) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	next := s.st.clone()
	s.mu.RUnlock()

	if err := fn(next); err != nil {
		return err
	}

	s.mu.Lock()
	s.st = next
	s.mu.Unlock()
	return nil
}

func (s *Store) BeginTx(ctx context.Context) (storage.Transaction, error) {
	s.txMu.Lock()

	s.mu.RLock()
	st := s.st.clone()
	s.mu.RUnlock()

	return &Tx{store: s, st: st}, nil
}

// ============================================
// Firewalls
// ============================================

func (s *Store) CreateFirewall(ctx context.Context, fw *domain.Firewall) error {
	return s.update(func(st *state) error { return st.createFirewall(fw) })
}

func (s *Store) GetFirewall(ctx context.Context, id int64) (fw *domain.Firewall, err error) {
	err = s.read(func(st *state) error {
		fw, err = st.getFirewall(id)
		return err
	})
	return fw, err
}

func (s *Store) GetFirewallByAddress(ctx context.Context, ipAddress string, port int) (fw *domain.Firewall, err error) {
	err = s.read(func(st *state) error {
		fw, err = st.getFirewallByAddress(ipAddress, port)
		return err
	})
	return fw, err
}

func (s *Store) ListFirewalls(ctx context.Context) (fws []*domain.Firewall, err error) {
	err = s.read(func(st *state) error {
		fws = st.listFirewalls()
		return nil
	})
	return fws, err
}

func (s *Store) DeleteFirewall(ctx context.Context, id int64) error {
	return s.update(func(st *state) error { return st.deleteFirewall(id) })
}

// ============================================
// Filtering Policies
// ============================================

func (s *Store) CreateFilteringPolicy(ctx context.Context, policy *domain.FilteringPolicy) error {
	return s.update(func(st *state) error { return st.createPolicy(policy) })
}

func (s *Store) GetFilteringPolicy(ctx context.Context, id int64) (p *domain.FilteringPolicy, err error) {
	err = s.read(func(st *state) error {
		p, err = st.getPolicy(id)
		return err
	})
	return p, err
}

func (s *Store) ListFilteringPolicies(ctx context.Context, firewallID int64) (ps []*domain.FilteringPolicy, err error) {
	err = s.read(func(st *state) error {
		ps = st.listPolicies(firewallID)
		return nil
	})
	return ps, err
}

func (s *Store) SetNextFilteringPolicy(ctx context.Context, id int64, next *int64) error {
	return s.update(func(st *state) error { return st.setNextPolicy(id, next) })
}

func (s *Store) DeleteFilteringPolicy(ctx context.Context, id int64) error {
	return s.update(func(st *state) error { return st.deletePolicy(id) })
}

// ============================================
// Rules
// ============================================

func (s *Store) CreateRule(ctx context.Context, rule *domain.Rule) error {
	return s.update(func(st *state) error { return st.createRule(rule) })
}

func (s *Store) GetRule(ctx context.Context, id int64) (r *domain.Rule, err error) {
	err = s.read(func(st *state) error {
		r, err = st.getRule(id)
		return err
	})
	return r, err
}

func (s *Store) ListRules(ctx context.Context, policyID int64) (rs []*domain.Rule, err error) {
	err = s.read(func(st *state) error {
		rs = st.listRules(policyID)
		return nil
	})
	return rs, err
}

func (s *Store) SetNextRule(ctx context.Context, id int64, next *int64) error {
	return s.update(func(st *state) error { return st.setNextRule(id, next) })
}

func (s *Store) DeleteRule(ctx context.Context, id int64) error {
	return s.update(func(st *state) error { return st.deleteRule(id) })
}

// ============================================
// API Keys
// ============================================

func (s *Store) CreateAPIKey(ctx context.Context, key *domain.APIKey) error {
	return s.update(func(st *state) error { return st.createAPIKey(key) })
}

func (s *Store) GetAPIKeyByHash(ctx context.Context, keyHash string) (k *domain.APIKey, err error) {
	err = s.read(func(st *state) error {
		k, err = st.getAPIKeyByHash(keyHash)
		return err
	})
	return k, err
}

func (s *Store) ListAPIKeys(ctx context.Context) (keys []*domain.APIKey, err error) {
	err = s.read(func(st *state) error {
		keys = st.listAPIKeys()
		return nil
	})
	return keys, err
}

func (s *Store) DeleteAPIKey(ctx context.Context, id string) error {
	return s.update(func(st *state) error { return st.deleteAPIKey(id) })
}

func (s *Store) UpdateAPIKeyLastUsed(ctx context.Context, id string, at time.Time) error {
	return s.update(func(st *state) error { return st.touchAPIKey(id, at) })
}

func (s *Store) CountAPIKeys(ctx context.Context) (n int, err error) {
	err = s.read(func(st *state) error {
		n = len(st.apiKeys)
		return nil
	})
	return n, err
}
