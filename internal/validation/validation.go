// Package validation checks API requests before they reach the services.
// Each Validate*Request function collects every field problem into
// ValidationErrors rather than stopping at the first one.
package validation

import (
	"fmt"
	"net/netip"
	"unicode/utf8"

	"github.com/bcnelson/firewall-policy-manager/internal/domain"
)

const (
	// MaxNameLength is the longest accepted firewall, policy or rule name.
	MaxNameLength = 50
	// MaxPort is the highest accepted port number.
	MaxPort = 65535
)

// ValidateName checks a required entity name.
func ValidateName(name string) error {
	n := utf8.RuneCountInString(name)
	if n == 0 {
		return fmt.Errorf("name is required")
	}
	if n > MaxNameLength {
		return fmt.Errorf("name must be at most %d characters", MaxNameLength)
	}
	return nil
}

// ValidateOptionalName checks a name that may be absent or empty.
func ValidateOptionalName(name *string) error {
	if name == nil {
		return nil
	}
	if utf8.RuneCountInString(*name) > MaxNameLength {
		return fmt.Errorf("name must be at most %d characters", MaxNameLength)
	}
	return nil
}

// ValidateIPv4 checks that addr is a dotted-quad IPv4 address. Leading
// zeros, IPv6 and IPv4-mapped IPv6 forms are rejected.
func ValidateIPv4(addr string) error {
	ip, err := netip.ParseAddr(addr)
	if err != nil || !ip.Is4() {
		return fmt.Errorf("%q is not a valid IPv4 address", addr)
	}
	return nil
}

// ValidatePort checks a TCP/UDP port number. Zero is accepted.
func ValidatePort(port int) error {
	if port < 0 || port > MaxPort {
		return fmt.Errorf("port must be between 0 and %d", MaxPort)
	}
	return nil
}

// ValidateProtocol checks a rule protocol.
func ValidateProtocol(p domain.Protocol) error {
	if !p.Valid() {
		return fmt.Errorf("protocol must be one of ANY, TCP, UDP, ICMP")
	}
	return nil
}

// ValidateAction checks a rule action.
func ValidateAction(a domain.Action) error {
	if !a.Valid() {
		return fmt.Errorf("action must be one of ALLOW, DENY")
	}
	return nil
}

// ValidateID checks a referenced identity.
func ValidateID(id *int64) error {
	if id != nil && *id <= 0 {
		return fmt.Errorf("id must be a positive integer")
	}
	return nil
}

func idValue(id *int64) string {
	if id == nil {
		return ""
	}
	return fmt.Sprint(*id)
}

// ValidateFirewallRequest validates a firewall creation request.
func ValidateFirewallRequest(req *domain.CreateFirewallRequest) error {
	var errs ValidationErrors
	errs.Check("name", req.Name, ValidateName(req.Name))
	errs.Check("ip_address", req.IPAddress, ValidateIPv4(req.IPAddress))
	errs.Check("port", fmt.Sprint(req.Port), ValidatePort(req.Port))
	return errs.Err()
}

// ValidateFilteringPolicyRequest validates a filtering policy creation request.
func ValidateFilteringPolicyRequest(req *domain.CreateFilteringPolicyRequest) error {
	var errs ValidationErrors
	errs.Check("name", req.Name, ValidateName(req.Name))
	errs.Check("previous_filtering_policy_id", idValue(req.PreviousFilteringPolicyID), ValidateID(req.PreviousFilteringPolicyID))
	return errs.Err()
}

// ValidateRuleRequest validates a rule creation request.
func ValidateRuleRequest(req *domain.CreateRuleRequest) error {
	var errs ValidationErrors
	errs.Check("previous_rule_id", idValue(req.PreviousRuleID), ValidateID(req.PreviousRuleID))
	if req.Name != nil {
		errs.Check("name", *req.Name, ValidateOptionalName(req.Name))
	}
	errs.Check("source_ip", req.SourceIP, ValidateIPv4(req.SourceIP))
	errs.Check("destination_ip", req.DestinationIP, ValidateIPv4(req.DestinationIP))
	errs.Check("destination_port", fmt.Sprint(req.DestinationPort), ValidatePort(req.DestinationPort))
	errs.Check("protocol", string(req.Protocol), ValidateProtocol(req.Protocol))
	errs.Check("action", string(req.Action), ValidateAction(req.Action))
	return errs.Err()
}

// ValidateAPIKeyRequest validates an API key creation request.
func ValidateAPIKeyRequest(req *domain.CreateAPIKeyRequest) error {
	var errs ValidationErrors
	errs.Check("name", req.Name, ValidateName(req.Name))
	return errs.Err()
}
