package memory

import (
	"fmt"
	"sort"
	"time"

	"github.com/bcnelson/firewall-policy-manager/internal/domain"
)

// state holds rows by value; every read hands out copies. It mirrors the SQL
// schema's constraints: unique keys, owner foreign keys with cascading
// deletes, and unique nullable successor references that are cleared when
// the referenced row goes away.
type state struct {
	firewalls map[int64]domain.Firewall
	policies  map[int64]domain.FilteringPolicy
	rules     map[int64]domain.Rule
	apiKeys   map[string]domain.APIKey

	lastFirewallID int64
	lastPolicyID   int64
	lastRuleID     int64
}

func newState() *state {
	return &state{
		firewalls: make(map[int64]domain.Firewall),
		policies:  make(map[int64]domain.FilteringPolicy),
		rules:     make(map[int64]domain.Rule),
		apiKeys:   make(map[string]domain.APIKey),
	}
}

func (st *state) clone() *state {
	c := &state{
		firewalls:      make(map[int64]domain.Firewall, len(st.firewalls)),
		policies:       make(map[int64]domain.FilteringPolicy, len(st.policies)),
		rules:          make(map[int64]domain.Rule, len(st.rules)),
		apiKeys:        make(map[string]domain.APIKey, len(st.apiKeys)),
		lastFirewallID: st.lastFirewallID,
		lastPolicyID:   st.lastPolicyID,
		lastRuleID:     st.lastRuleID,
	}
	for id, fw := range st.firewalls {
		c.firewalls[id] = fw
	}
	for id, p := range st.policies {
		c.policies[id] = p
	}
	for id, r := range st.rules {
		c.rules[id] = r
	}
	for id, k := range st.apiKeys {
		c.apiKeys[id] = k
	}
	return c
}

func copyID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func copyName(name *string) *string {
	if name == nil {
		return nil
	}
	v := *name
	return &v
}

// ============================================
// Firewalls
// ============================================

func (st *state) createFirewall(fw *domain.Firewall) error {
	for _, existing := range st.firewalls {
		if existing.IPAddress == fw.IPAddress && existing.Port == fw.Port {
			return domain.ErrAlreadyExists
		}
	}
	st.lastFirewallID++
	fw.ID = st.lastFirewallID
	st.firewalls[fw.ID] = domain.Firewall{ID: fw.ID, Name: fw.Name, IPAddress: fw.IPAddress, Port: fw.Port}
	return nil
}

func (st *state) getFirewall(id int64) (*domain.Firewall, error) {
	fw, ok := st.firewalls[id]
	if !ok {
		return nil, fmt.Errorf("firewall %d: %w", id, domain.ErrNotFound)
	}
	return &fw, nil
}

func (st *state) getFirewallByAddress(ipAddress string, port int) (*domain.Firewall, error) {
	for _, fw := range st.firewalls {
		if fw.IPAddress == ipAddress && fw.Port == port {
			return &fw, nil
		}
	}
	return nil, fmt.Errorf("firewall %s:%d: %w", ipAddress, port, domain.ErrNotFound)
}

func (st *state) listFirewalls() []*domain.Firewall {
	fws := make([]*domain.Firewall, 0, len(st.firewalls))
	for _, fw := range st.firewalls {
		fw := fw
		fws = append(fws, &fw)
	}
	sort.Slice(fws, func(i, j int) bool { return fws[i].ID < fws[j].ID })
	return fws
}

func (st *state) deleteFirewall(id int64) error {
	if _, ok := st.firewalls[id]; !ok {
		return domain.ErrNotFound
	}
	for pid, p := range st.policies {
		if p.FirewallID == id {
			st.dropPolicy(pid)
		}
	}
	delete(st.firewalls, id)
	return nil
}

// ============================================
// Filtering Policies
// ============================================

func (st *state) createPolicy(p *domain.FilteringPolicy) error {
	if _, ok := st.firewalls[p.FirewallID]; !ok {
		return fmt.Errorf("firewall %d: %w", p.FirewallID, domain.ErrNotFound)
	}
	for _, existing := range st.policies {
		if existing.FirewallID == p.FirewallID && existing.Name == p.Name {
			return domain.ErrAlreadyExists
		}
	}
	if err := st.checkNextPolicy(0, p.NextPolicyID); err != nil {
		return err
	}
	st.lastPolicyID++
	p.ID = st.lastPolicyID
	st.policies[p.ID] = domain.FilteringPolicy{
		ID:           p.ID,
		FirewallID:   p.FirewallID,
		Name:         p.Name,
		NextPolicyID: copyID(p.NextPolicyID),
	}
	return nil
}

func (st *state) checkNextPolicy(self int64, next *int64) error {
	if next == nil {
		return nil
	}
	if _, ok := st.policies[*next]; !ok {
		return fmt.Errorf("filtering policy %d: %w", *next, domain.ErrNotFound)
	}
	for id, p := range st.policies {
		if id != self && p.NextPolicyID != nil && *p.NextPolicyID == *next {
			return domain.ErrAlreadyExists
		}
	}
	return nil
}

func (st *state) getPolicy(id int64) (*domain.FilteringPolicy, error) {
	p, ok := st.policies[id]
	if !ok {
		return nil, fmt.Errorf("filtering policy %d: %w", id, domain.ErrNotFound)
	}
	p.NextPolicyID = copyID(p.NextPolicyID)
	return &p, nil
}

func (st *state) listPolicies(firewallID int64) []*domain.FilteringPolicy {
	ps := make([]*domain.FilteringPolicy, 0)
	for _, p := range st.policies {
		if p.FirewallID == firewallID {
			p := p
			p.NextPolicyID = copyID(p.NextPolicyID)
			ps = append(ps, &p)
		}
	}
	sort.Slice(ps, func(i, j int) bool { return ps[i].ID < ps[j].ID })
	return ps
}

func (st *state) setNextPolicy(id int64, next *int64) error {
	p, ok := st.policies[id]
	if !ok {
		return fmt.Errorf("filtering policy %d: %w", id, domain.ErrNotFound)
	}
	if err := st.checkNextPolicy(id, next); err != nil {
		return err
	}
	p.NextPolicyID = copyID(next)
	st.policies[id] = p
	return nil
}

func (st *state) deletePolicy(id int64) error {
	if _, ok := st.policies[id]; !ok {
		return domain.ErrNotFound
	}
	st.dropPolicy(id)
	return nil
}

func (st *state) dropPolicy(id int64) {
	for rid, r := range st.rules {
		if r.FilteringPolicyID == id {
			st.dropRule(rid)
		}
	}
	for pid, p := range st.policies {
		if p.NextPolicyID != nil && *p.NextPolicyID == id {
			p.NextPolicyID = nil
			st.policies[pid] = p
		}
	}
	delete(st.policies, id)
}

// ============================================
// Rules
// ============================================

func (st *state) createRule(r *domain.Rule) error {
	if _, ok := st.policies[r.FilteringPolicyID]; !ok {
		return fmt.Errorf("filtering policy %d: %w", r.FilteringPolicyID, domain.ErrNotFound)
	}
	for _, existing := range st.rules {
		if existing.FilteringPolicyID == r.FilteringPolicyID &&
			existing.SourceIP == r.SourceIP &&
			existing.DestinationIP == r.DestinationIP &&
			existing.DestinationPort == r.DestinationPort &&
			existing.Protocol == r.Protocol {
			return domain.ErrAlreadyExists
		}
	}
	if err := st.checkNextRule(0, r.NextRuleID); err != nil {
		return err
	}
	st.lastRuleID++
	r.ID = st.lastRuleID
	row := *r
	row.Name = copyName(r.Name)
	row.NextRuleID = copyID(r.NextRuleID)
	row.FilteringPolicy = nil
	st.rules[r.ID] = row
	return nil
}

func (st *state) checkNextRule(self int64, next *int64) error {
	if next == nil {
		return nil
	}
	if _, ok := st.rules[*next]; !ok {
		return fmt.Errorf("rule %d: %w", *next, domain.ErrNotFound)
	}
	for id, r := range st.rules {
		if id != self && r.NextRuleID != nil && *r.NextRuleID == *next {
			return domain.ErrAlreadyExists
		}
	}
	return nil
}

func (st *state) getRule(id int64) (*domain.Rule, error) {
	r, ok := st.rules[id]
	if !ok {
		return nil, fmt.Errorf("rule %d: %w", id, domain.ErrNotFound)
	}
	r.Name = copyName(r.Name)
	r.NextRuleID = copyID(r.NextRuleID)
	return &r, nil
}

func (st *state) listRules(policyID int64) []*domain.Rule {
	rs := make([]*domain.Rule, 0)
	for _, r := range st.rules {
		if r.FilteringPolicyID == policyID {
			r := r
			r.Name = copyName(r.Name)
			r.NextRuleID = copyID(r.NextRuleID)
			rs = append(rs, &r)
		}
	}
	sort.Slice(rs, func(i, j int) bool { return rs[i].ID < rs[j].ID })
	return rs
}

func (st *state) setNextRule(id int64, next *int64) error {
	r, ok := st.rules[id]
	if !ok {
		return fmt.Errorf("rule %d: %w", id, domain.ErrNotFound)
	}
	if err := st.checkNextRule(id, next); err != nil {
		return err
	}
	r.NextRuleID = copyID(next)
	st.rules[id] = r
	return nil
}

func (st *state) deleteRule(id int64) error {
	if _, ok := st.rules[id]; !ok {
		return domain.ErrNotFound
	}
	st.dropRule(id)
	return nil
}

func (st *state) dropRule(id int64) {
	for rid, r := range st.rules {
		if r.NextRuleID != nil && *r.NextRuleID == id {
			r.NextRuleID = nil
			st.rules[rid] = r
		}
	}
	delete(st.rules, id)
}

// ============================================
// API Keys
// ============================================

func (st *state) createAPIKey(key *domain.APIKey) error {
	if _, ok := st.apiKeys[key.ID]; ok {
		return fmt.Errorf("api key %s: %w", key.ID, domain.ErrAlreadyExists)
	}
	for _, existing := range st.apiKeys {
		if existing.KeyHash == key.KeyHash {
			return fmt.Errorf("api key hash: %w", domain.ErrAlreadyExists)
		}
	}
	stored := *key
	stored.LastUsedAt = copyTime(key.LastUsedAt)
	st.apiKeys[key.ID] = stored
	return nil
}

func (st *state) getAPIKeyByHash(keyHash string) (*domain.APIKey, error) {
	for _, k := range st.apiKeys {
		if k.KeyHash == keyHash {
			k.LastUsedAt = copyTime(k.LastUsedAt)
			return &k, nil
		}
	}
	return nil, fmt.Errorf("api key: %w", domain.ErrNotFound)
}

func (st *state) listAPIKeys() []*domain.APIKey {
	keys := make([]*domain.APIKey, 0, len(st.apiKeys))
	for _, k := range st.apiKeys {
		k := k
		k.LastUsedAt = copyTime(k.LastUsedAt)
		keys = append(keys, &k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if !keys[i].CreatedAt.Equal(keys[j].CreatedAt) {
			return keys[i].CreatedAt.After(keys[j].CreatedAt)
		}
		return keys[i].ID < keys[j].ID
	})
	return keys
}

func (st *state) deleteAPIKey(id string) error {
	if _, ok := st.apiKeys[id]; !ok {
		return fmt.Errorf("api key %s: %w", id, domain.ErrNotFound)
	}
	delete(st.apiKeys, id)
	return nil
}

func (st *state) touchAPIKey(id string, at time.Time) error {
	k, ok := st.apiKeys[id]
	if !ok {
		return fmt.Errorf("api key %s: %w", id, domain.ErrNotFound)
	}
	k.LastUsedAt = &at
	st.apiKeys[id] = k
	return nil
}
