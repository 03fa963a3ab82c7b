package validation

import (
	"errors"
	"strings"
	"testing"

	"github.com/bcnelson/firewall-policy-manager/internal/domain"
)

func strPtr(s string) *string { return &s }

func int64Ptr(v int64) *int64 { return &v }

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{"simple", "edge", false},
		{"single character", "a", false},
		{"max length", strings.Repeat("a", 50), false},
		{"max length multibyte", strings.Repeat("é", 50), false},
		{"empty", "", true},
		{"too long", strings.Repeat("a", 51), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.value)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateName(%q) error = %v, wantErr %v", tt.value, err, tt.wantErr)
			}
		})
	}
}

func TestValidateOptionalName(t *testing.T) {
	tests := []struct {
		name    string
		value   *string
		wantErr bool
	}{
		{"absent", nil, false},
		{"empty", strPtr(""), false},
		{"set", strPtr("ssh"), false},
		{"too long", strPtr(strings.Repeat("x", 51)), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateOptionalName(tt.value)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateOptionalName() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateIPv4(t *testing.T) {
	tests := []struct {
		name    string
		addr    string
		wantErr bool
	}{
		{"private", "192.168.1.1", false},
		{"zero", "0.0.0.0", false},
		{"broadcast", "255.255.255.255", false},
		{"empty", "", true},
		{"hostname", "example.com", true},
		{"octet overflow", "256.0.0.1", true},
		{"leading zero", "010.0.0.1", true},
		{"too few octets", "10.0.1", true},
		{"cidr", "10.0.0.0/8", true},
		{"ipv6", "::1", true},
		{"ipv4 mapped", "::ffff:10.0.0.1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIPv4(tt.addr)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateIPv4(%q) error = %v, wantErr %v", tt.addr, err, tt.wantErr)
			}
		})
	}
}

func TestValidatePort(t *testing.T) {
	tests := []struct {
		port    int
		wantErr bool
	}{
		{0, false},
		{22, false},
		{65535, false},
		{-1, true},
		{65536, true},
	}

	for _, tt := range tests {
		err := ValidatePort(tt.port)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidatePort(%d) error = %v, wantErr %v", tt.port, err, tt.wantErr)
		}
	}
}

func TestValidateEnums(t *testing.T) {
	for _, p := range []domain.Protocol{"ANY", "TCP", "UDP", "ICMP"} {
		if err := ValidateProtocol(p); err != nil {
			t.Errorf("ValidateProtocol(%q) unexpected error: %v", p, err)
		}
	}
	for _, p := range []domain.Protocol{"", "tcp", "SCTP"} {
		if err := ValidateProtocol(p); err == nil {
			t.Errorf("ValidateProtocol(%q) expected error", p)
		}
	}
	for _, a := range []domain.Action{"ALLOW", "DENY"} {
		if err := ValidateAction(a); err != nil {
			t.Errorf("ValidateAction(%q) unexpected error: %v", a, err)
		}
	}
	for _, a := range []domain.Action{"", "allow", "DROP"} {
		if err := ValidateAction(a); err == nil {
			t.Errorf("ValidateAction(%q) expected error", a)
		}
	}
}

func TestValidateFirewallRequest(t *testing.T) {
	valid := &domain.CreateFirewallRequest{Name: "edge", IPAddress: "192.168.1.1", Port: 8080}
	if err := ValidateFirewallRequest(valid); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := ValidateFirewallRequest(&domain.CreateFirewallRequest{Name: "", IPAddress: "nope", Port: 70000})
	var errs ValidationErrors
	if !errors.As(err, &errs) {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}
	if len(errs) != 3 {
		t.Fatalf("expected 3 errors, got %d: %v", len(errs), errs)
	}
	fields := []string{errs[0].Field, errs[1].Field, errs[2].Field}
	want := []string{"name", "ip_address", "port"}
	for i := range want {
		if fields[i] != want[i] {
			t.Errorf("field %d = %q, want %q", i, fields[i], want[i])
		}
	}
}

func TestValidateFilteringPolicyRequest(t *testing.T) {
	tests := []struct {
		name    string
		req     domain.CreateFilteringPolicyRequest
		wantErr bool
	}{
		{"head", domain.CreateFilteringPolicyRequest{Name: "inbound"}, false},
		{"after", domain.CreateFilteringPolicyRequest{Name: "inbound", PreviousFilteringPolicyID: int64Ptr(3)}, false},
		{"missing name", domain.CreateFilteringPolicyRequest{}, true},
		{"zero predecessor", domain.CreateFilteringPolicyRequest{Name: "inbound", PreviousFilteringPolicyID: int64Ptr(0)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFilteringPolicyRequest(&tt.req)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateFilteringPolicyRequest() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateRuleRequest(t *testing.T) {
	base := func() domain.CreateRuleRequest {
		return domain.CreateRuleRequest{
			SourceIP:        "10.0.0.1",
			DestinationIP:   "10.0.0.2",
			DestinationPort: 443,
			Protocol:        domain.ProtocolTCP,
			Action:          domain.ActionAllow,
		}
	}

	tests := []struct {
		name      string
		mutate    func(r *domain.CreateRuleRequest)
		wantField string
	}{
		{"valid", func(r *domain.CreateRuleRequest) {}, ""},
		{"valid with empty name", func(r *domain.CreateRuleRequest) { r.Name = strPtr("") }, ""},
		{"long name", func(r *domain.CreateRuleRequest) { r.Name = strPtr(strings.Repeat("n", 51)) }, "name"},
		{"bad source", func(r *domain.CreateRuleRequest) { r.SourceIP = "10.0.0" }, "source_ip"},
		{"bad destination", func(r *domain.CreateRuleRequest) { r.DestinationIP = "" }, "destination_ip"},
		{"bad port", func(r *domain.CreateRuleRequest) { r.DestinationPort = -5 }, "destination_port"},
		{"bad protocol", func(r *domain.CreateRuleRequest) { r.Protocol = "GRE" }, "protocol"},
		{"bad action", func(r *domain.CreateRuleRequest) { r.Action = "REJECT" }, "action"},
		{"bad predecessor", func(r *domain.CreateRuleRequest) { r.PreviousRuleID = int64Ptr(-1) }, "previous_rule_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := base()
			tt.mutate(&req)
			err := ValidateRuleRequest(&req)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var errs ValidationErrors
			if !errors.As(err, &errs) {
				t.Fatalf("expected ValidationErrors, got %v", err)
			}
			if len(errs) != 1 || errs[0].Field != tt.wantField {
				t.Errorf("expected single error on %q, got %v", tt.wantField, errs)
			}
		})
	}
}

func TestValidationErrorsCollectsAllFields(t *testing.T) {
	err := ValidateFirewallRequest(&domain.CreateFirewallRequest{Name: "", IPAddress: "nope", Port: 70000})

	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	var errs ValidationErrors
	if !errors.As(err, &errs) {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}
	if got := strings.Join(errs.Fields(), ","); got != "name,ip_address,port" {
		t.Errorf("fields = %q", got)
	}
	if !strings.HasSuffix(err.Error(), "(and 2 more errors)") {
		t.Errorf("message = %q", err.Error())
	}
}

func TestValidationErrorsEmpty(t *testing.T) {
	var errs ValidationErrors
	errs.Check("name", "x", nil)
	if err := errs.Err(); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}

func TestValidateAPIKeyRequest(t *testing.T) {
	if err := ValidateAPIKeyRequest(&domain.CreateAPIKeyRequest{Name: "ci"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	err := ValidateAPIKeyRequest(&domain.CreateAPIKeyRequest{})
	var errs ValidationErrors
	if !errors.As(err, &errs) || errs[0].Field != "name" {
		t.Errorf("expected error on name, got %v", err)
	}
}
