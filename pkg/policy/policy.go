package policy

import (
	"errors"
	"fmt"
	"maps"
)

// Rule describes how a single feature is rolled out.
type Rule struct {
	// DefaultValue is returned for identities outside the rollout bucket.
	DefaultValue bool `json:"default_value" yaml:"default_value"`

	// RolloutPercent is the target fraction of identities included, in [0,100].
	RolloutPercent int `json:"rollout_percent" yaml:"rollout_percent"`

	// Overrides pins specific identities to a fixed decision, bypassing the
	// percentage bucket. Kill switch still wins over overrides.
	Overrides map[string]bool `json:"overrides,omitempty" yaml:"overrides,omitempty"`

	// KillSwitch forces the feature off for everyone regardless of any other
	// field. Used for emergency rollback.
	KillSwitch bool `json:"kill_switch" yaml:"kill_switch"`
}

// Validate checks the rule invariants.
func (r Rule) Validate() error {
	if r.RolloutPercent < 0 || r.RolloutPercent > 100 {
		return errors.Join(ErrInvalidPolicy,
			fmt.Errorf("rollout percent %d out of range [0,100]", r.RolloutPercent))
	}
	return nil
}

// Policy is a versioned snapshot of all feature rules. A published policy is
// immutable; updates clone it, mutate the clone, and publish under a higher
// version.
type Policy struct {
	Version  int64           `json:"version" yaml:"version"`
	Features map[string]Rule `json:"features" yaml:"features"`
}

// Rule returns the rule for the given feature key.
func (p *Policy) Rule(key string) (Rule, bool) {
	if p == nil {
		return Rule{}, false
	}
	r, ok := p.Features[key]
	return r, ok
}

// Clone returns a deep copy safe to mutate before publishing. Override maps
// are copied as well so a clone never aliases a published policy.
func (p *Policy) Clone() *Policy {
	if p == nil {
		return &Policy{Features: make(map[string]Rule)}
	}
	features := make(map[string]Rule, len(p.Features))
	for key, rule := range p.Features {
		if rule.Overrides != nil {
			rule.Overrides = maps.Clone(rule.Overrides)
		}
		features[key] = rule
	}
	return &Policy{Version: p.Version, Features: features}
}

// Validate checks all rules in the policy.
func (p *Policy) Validate() error {
	if p == nil {
		return errors.Join(ErrInvalidPolicy, errors.New("policy cannot be nil"))
	}
	if p.Version < 0 {
		return errors.Join(ErrInvalidPolicy,
			fmt.Errorf("version %d cannot be negative", p.Version))
	}
	for key, rule := range p.Features {
		if key == "" {
			return errors.Join(ErrInvalidPolicy, errors.New("feature key cannot be empty"))
		}
		if err := rule.Validate(); err != nil {
			return fmt.Errorf("feature %q: %w", key, err)
		}
	}
	return nil
}
