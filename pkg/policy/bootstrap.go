package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadBootstrapFile reads a seed policy from a YAML file. The bootstrap policy
// covers the window between process start and the first successful fetch, so
// freshly started instances evaluate against known defaults instead of an
// empty policy.
//
// Example file:
//
//	version: 1
//	features:
//	  new-checkout:
//	    default_value: false
//	    rollout_percent: 10
//	  dark-mode:
//	    default_value: true
//	    rollout_percent: 100
func LoadBootstrapFile(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bootstrap policy: %w", err)
	}

	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode bootstrap policy: %w", err)
	}
	if p.Features == nil {
		p.Features = make(map[string]Rule)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}
