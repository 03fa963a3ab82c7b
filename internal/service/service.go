// Package service orchestrates requests against the storage layer: it
// validates input, checks that owners and predecessors exist, and drives
// the policy and rule chains.
package service

import (
	"time"

	"github.com/bcnelson/firewall-policy-manager/internal/chain"
	"github.com/bcnelson/firewall-policy-manager/internal/domain"
	"github.com/bcnelson/firewall-policy-manager/internal/logging"
	"github.com/bcnelson/firewall-policy-manager/internal/metrics"
	"github.com/bcnelson/firewall-policy-manager/internal/storage"
)

// Chain kinds, used as log and metric labels.
const (
	KindFilteringPolicy = "filtering_policy"
	KindRule            = "rule"
)

type (
	policyChain = chain.Chain[*domain.FilteringPolicy, domain.PolicyAttrs]
	ruleChain   = chain.Chain[*domain.Rule, domain.RuleAttrs]
)

// Services bundles the firewall, filtering policy and rule services over
// one store.
type Services struct {
	Firewalls *FirewallService
	Policies  *PolicyService
	Rules     *RuleService
	APIKeys   *APIKeyService
}

// Option configures New.
type Option func(*options)

type options struct {
	logger       *logging.Logger
	metrics      *metrics.Registry
	bootstrapKey string
	now          func() time.Time
}

// WithLogger sets the logger. Defaults to the package default logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics records chain metrics in r.
func WithMetrics(r *metrics.Registry) Option {
	return func(o *options) { o.metrics = r }
}

// WithBootstrapKey sets the key accepted while no API key is stored.
func WithBootstrapKey(key string) Option {
	return func(o *options) { o.bootstrapKey = key }
}

// WithClock replaces time.Now for API key timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New wires the services to store.
func New(store storage.Storage, opts ...Option) *Services {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logging.Default()
	}
	if o.now == nil {
		o.now = time.Now
	}

	chainOpts := []chain.Option{chain.WithLogger(o.logger)}
	if o.metrics != nil {
		chainOpts = append(chainOpts, chain.WithMetrics(o.metrics))
	}
	policies := chain.New[*domain.FilteringPolicy, domain.PolicyAttrs](KindFilteringPolicy, storage.NewPolicyChain(store), chainOpts...)
	rules := chain.New[*domain.Rule, domain.RuleAttrs](KindRule, storage.NewRuleChain(store), chainOpts...)

	logger := o.logger.WithComponent("service")
	return &Services{
		Firewalls: &FirewallService{store: store, policies: policies, logger: logger},
		Policies:  &PolicyService{store: store, policies: policies, rules: rules, logger: logger},
		Rules:     &RuleService{store: store, rules: rules, logger: logger},
		APIKeys:   &APIKeyService{store: store, bootstrapKey: o.bootstrapKey, logger: logger, now: o.now},
	}
}
