package controller

import (
	"errors"
	"fmt"
)

// Predefined errors for the controller package.
var (
	// ErrInvalidTarget indicates the rollout target fails validation.
	ErrInvalidTarget = errors.New("invalid rollout target")

	// ErrUnknownFeature indicates no target is registered for the feature key.
	ErrUnknownFeature = errors.New("unknown feature")

	// ErrTargetExists indicates a target is already registered for the key.
	ErrTargetExists = errors.New("rollout target already registered")

	// ErrMetricUnavailable is returned by metric feeds that cannot answer.
	// The controller treats it as "no breach detected" (fail-open) so a flaky
	// monitoring stack never stalls a rollout.
	ErrMetricUnavailable = errors.New("metric unavailable")

	// ErrAlreadyStarted indicates Start was called on a running controller.
	ErrAlreadyStarted = errors.New("controller already started")

	// ErrNotStarted indicates Stop was called on a controller that is not running.
	ErrNotStarted = errors.New("controller not started")
)

// ErrInvalidTransition indicates a state change outside the transition table.
type ErrInvalidTransition struct {
	FeatureKey string
	From       State
	To         State
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("feature %q cannot transition from %s to %s", e.FeatureKey, e.From, e.To)
}
