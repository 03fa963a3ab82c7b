// Package seed applies a declarative YAML description of firewalls, their
// filtering policies and rules through the services. Policies and rules are
// listed in evaluation order; applying the same file twice changes nothing.
package seed

import (
	"context"
	"fmt"
	"os"

	"github.com/bcnelson/firewall-policy-manager/internal/domain"
	"github.com/bcnelson/firewall-policy-manager/internal/service"
	"gopkg.in/yaml.v2"
)

// Document is the root of a seed file.
type Document struct {
	Firewalls []Firewall `yaml:"firewalls"`
}

// Firewall describes one firewall and its ordered policies.
type Firewall struct {
	domain.CreateFirewallRequest `yaml:",inline"`
	FilteringPolicies            []FilteringPolicy `yaml:"filtering_policies"`
}

// FilteringPolicy describes one policy and its ordered rules.
type FilteringPolicy struct {
	Name  string                     `yaml:"name"`
	Rules []domain.CreateRuleRequest `yaml:"rules"`
}

// Report counts what Apply created and what already existed.
type Report struct {
	Created  Counts
	Existing Counts
}

// Counts holds per-kind totals.
type Counts struct {
	Firewalls         int
	FilteringPolicies int
	Rules             int
}

// Parse decodes a seed document. Unknown keys are rejected.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.UnmarshalStrict(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &doc, nil
}

// LoadFile reads and parses the seed file at path.
func LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return Parse(data)
}

// Apply creates everything in doc that does not exist yet. The first policy
// of a firewall and the first rule of a policy go to the head; every other
// item goes directly after the one listed before it. Apply stops at the
// first error; what was applied before it stays.
func Apply(ctx context.Context, svc *service.Services, doc *Document) (*Report, error) {
	report := &Report{}

	for i := range doc.Firewalls {
		f := &doc.Firewalls[i]
		fw, created, err := svc.Firewalls.Create(ctx, &f.CreateFirewallRequest)
		if err != nil {
			return report, fmt.Errorf("firewall %q: %w", f.Name, err)
		}
		report.count(created, &report.Created.Firewalls, &report.Existing.Firewalls)

		var prevPolicy *int64
		for j := range f.FilteringPolicies {
			p := &f.FilteringPolicies[j]
			policy, created, err := svc.Policies.Create(ctx, fw.ID, &domain.CreateFilteringPolicyRequest{
				Name:                      p.Name,
				PreviousFilteringPolicyID: prevPolicy,
			})
			if err != nil {
				return report, fmt.Errorf("firewall %q: filtering policy %q: %w", f.Name, p.Name, err)
			}
			report.count(created, &report.Created.FilteringPolicies, &report.Existing.FilteringPolicies)
			prevPolicy = &policy.ID

			var prevRule *int64
			for k := range p.Rules {
				req := p.Rules[k]
				req.PreviousRuleID = prevRule
				rule, created, err := svc.Rules.Create(ctx, policy.ID, &req)
				if err != nil {
					return report, fmt.Errorf("firewall %q: filtering policy %q: rule %d: %w", f.Name, p.Name, k+1, err)
				}
				report.count(created, &report.Created.Rules, &report.Existing.Rules)
				prevRule = &rule.ID
			}
		}
	}

	return report, nil
}

func (r *Report) count(created bool, createdCount, existingCount *int) {
	if created {
		*createdCount++
	} else {
		*existingCount++
	}
}
