package domain

// FilteringPolicy is a member of a firewall's policy chain and the owner of a
// rule chain. NextPolicyID is the sole carrier of its position.
type FilteringPolicy struct {
	ID           int64  `json:"id" db:"id"`
	FirewallID   int64  `json:"firewall_id" db:"firewall_id"`
	Name         string `json:"name" db:"name"`
	NextPolicyID *int64 `json:"-" db:"next_policy_id"`

	Rules []*Rule `json:"rules,omitempty" db:"-"`
}

// ChainID implements chain.Member.
func (p *FilteringPolicy) ChainID() int64 { return p.ID }

// ChainOwner implements chain.Member.
func (p *FilteringPolicy) ChainOwner() int64 { return p.FirewallID }

// ChainNext implements chain.Member.
func (p *FilteringPolicy) ChainNext() *int64 { return p.NextPolicyID }

// PolicyAttrs are the kind-specific attributes of a new filtering policy.
type PolicyAttrs struct {
	Name string
}

// Matches reports whether p is logically equivalent to a policy with attrs:
// a policy is identified by its name within a firewall.
func (a PolicyAttrs) Matches(p *FilteringPolicy) bool {
	return p.Name == a.Name
}

// Identical is the same as Matches; a policy has no other defining field.
func (a PolicyAttrs) Identical(p *FilteringPolicy) bool {
	return a.Matches(p)
}

// CreateFilteringPolicyRequest is the request body for creating a filtering
// policy. A nil PreviousFilteringPolicyID inserts the policy at the head.
type CreateFilteringPolicyRequest struct {
	Name                      string `json:"name" yaml:"name"`
	PreviousFilteringPolicyID *int64 `json:"previous_filtering_policy_id,omitempty" yaml:"-"`
}
