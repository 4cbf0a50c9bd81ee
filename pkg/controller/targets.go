package controller

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type targetsFile struct {
	Targets []struct {
		FeatureKey      string        `yaml:"feature_key"`
		DesiredPercent  int           `yaml:"desired_percent"`
		StepSize        int           `yaml:"step_size"`
		MetricThreshold float64       `yaml:"metric_threshold"`
		MetricWindow    time.Duration `yaml:"metric_window"`
		AutoStart       bool          `yaml:"auto_start"`
	} `yaml:"targets"`
}

// LoadTargetsFile registers rollout targets from a YAML file. Targets with
// auto_start move straight into Ramping.
//
// Example file:
//
//	targets:
//	  - feature_key: new-checkout
//	    desired_percent: 50
//	    step_size: 10
//	    metric_threshold: 0.05
//	    metric_window: 5m
//	    auto_start: true
func (c *Controller) LoadTargetsFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read targets file: %w", err)
	}

	var f targetsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("decode targets file: %w", err)
	}

	for _, t := range f.Targets {
		target := Target{
			FeatureKey:      t.FeatureKey,
			DesiredPercent:  t.DesiredPercent,
			StepSize:        t.StepSize,
			MetricThreshold: t.MetricThreshold,
			MetricWindow:    t.MetricWindow,
		}
		if err := c.AddTarget(target); err != nil {
			return fmt.Errorf("target %q: %w", t.FeatureKey, err)
		}
		if t.AutoStart {
			if err := c.Resume(t.FeatureKey); err != nil {
				return fmt.Errorf("target %q: %w", t.FeatureKey, err)
			}
		}
	}
	return nil
}
