package domain

// Protocol is the transport protocol a rule applies to.
type Protocol string

const (
	ProtocolAny  Protocol = "ANY"
	ProtocolTCP  Protocol = "TCP"
	ProtocolUDP  Protocol = "UDP"
	ProtocolICMP Protocol = "ICMP"
)

// Valid reports whether p is a known protocol.
func (p Protocol) Valid() bool {
	switch p {
	case ProtocolAny, ProtocolTCP, ProtocolUDP, ProtocolICMP:
		return true
	}
	return false
}

// Action is the verdict of a rule.
type Action string

const (
	ActionAllow Action = "ALLOW"
	ActionDeny  Action = "DENY"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	return a == ActionAllow || a == ActionDeny
}

// Rule is a member of a filtering policy's rule chain. Order among rules is
// first-match-wins precedence and is carried only by NextRuleID.
type Rule struct {
	ID                int64    `json:"id" db:"id"`
	FilteringPolicyID int64    `json:"filtering_policy_id" db:"filtering_policy_id"`
	Name              *string  `json:"name,omitempty" db:"name"`
	SourceIP          string   `json:"source_ip" db:"source_ip"`
	DestinationIP     string   `json:"destination_ip" db:"destination_ip"`
	DestinationPort   int      `json:"destination_port" db:"destination_port"`
	Protocol          Protocol `json:"protocol" db:"protocol"`
	Action            Action   `json:"action" db:"action"`
	NextRuleID        *int64   `json:"-" db:"next_rule_id"`

	FilteringPolicy *FilteringPolicy `json:"filtering_policy,omitempty" db:"-"`
}

// ChainID implements chain.Member.
func (r *Rule) ChainID() int64 { return r.ID }

// ChainOwner implements chain.Member.
func (r *Rule) ChainOwner() int64 { return r.FilteringPolicyID }

// ChainNext implements chain.Member.
func (r *Rule) ChainNext() *int64 { return r.NextRuleID }

// RuleAttrs are the kind-specific attributes of a new rule.
type RuleAttrs struct {
	Name            *string
	SourceIP        string
	DestinationIP   string
	DestinationPort int
	Protocol        Protocol
	Action          Action
}

// Matches reports whether r filters the same traffic as attrs.
func (a RuleAttrs) Matches(r *Rule) bool {
	return r.SourceIP == a.SourceIP &&
		r.DestinationIP == a.DestinationIP &&
		r.DestinationPort == a.DestinationPort &&
		r.Protocol == a.Protocol
}

// Identical reports whether r matches attrs and also agrees on every other
// field. A rule that matches but differs here is a conflict, never an
// overwrite.
func (a RuleAttrs) Identical(r *Rule) bool {
	return a.Matches(r) && r.Action == a.Action && equalName(r.Name, a.Name)
}

func equalName(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// CreateRuleRequest is the request body for creating a rule. A nil
// PreviousRuleID inserts the rule at the head.
type CreateRuleRequest struct {
	PreviousRuleID  *int64   `json:"previous_rule_id,omitempty" yaml:"-"`
	Name            *string  `json:"name,omitempty" yaml:"name,omitempty"`
	SourceIP        string   `json:"source_ip" yaml:"source_ip"`
	DestinationIP   string   `json:"destination_ip" yaml:"destination_ip"`
	DestinationPort int      `json:"destination_port" yaml:"destination_port"`
	Protocol        Protocol `json:"protocol" yaml:"protocol"`
	Action          Action   `json:"action" yaml:"action"`
}

// Attrs returns the rule attributes carried by the request.
func (r *CreateRuleRequest) Attrs() RuleAttrs {
	return RuleAttrs{
		Name:            r.Name,
		SourceIP:        r.SourceIP,
		DestinationIP:   r.DestinationIP,
		DestinationPort: r.DestinationPort,
		Protocol:        r.Protocol,
		Action:          r.Action,
	}
}
