package domain

// Firewall is the aggregate root owning an ordered chain of filtering policies.
type Firewall struct {
	ID        int64  `json:"id" db:"id"`
	Name      string `json:"name" db:"name"`
	IPAddress string `json:"ip_address" db:"ip_address"`
	Port      int    `json:"port" db:"port"`

	// FilteringPolicies is only populated when the caller asked for the
	// materialized order.
	FilteringPolicies []*FilteringPolicy `json:"filtering_policies,omitempty" db:"-"`
}

// Similar reports whether two firewalls are equal ignoring the generated ID
// and relations.
func (f *Firewall) Similar(other *Firewall) bool {
	return f.Name == other.Name && f.IPAddress == other.IPAddress && f.Port == other.Port
}

// CreateFirewallRequest is the request body for creating a firewall.
type CreateFirewallRequest struct {
	Name      string `json:"name" yaml:"name"`
	IPAddress string `json:"ip_address" yaml:"ip_address"`
	Port      int    `json:"port" yaml:"port"`
}
