package assign

import (
	"hash/fnv"

	"github.com/dmitrymomot/rolloutkit/pkg/policy"
)

// Reason identifies which resolution tier produced a decision.
type Reason string

const (
	// ReasonKillSwitch means the rule's kill switch forced the feature off.
	ReasonKillSwitch Reason = "kill-switch"
	// ReasonOverride means an explicit per-identity override decided.
	ReasonOverride Reason = "override"
	// ReasonRollout means the identity fell inside the rollout bucket.
	ReasonRollout Reason = "rollout"
	// ReasonDefault means the identity fell outside the rollout bucket and
	// got the rule's default value.
	ReasonDefault Reason = "rule-default"
)

// Bucket maps an identity and feature key to a stable bucket in [0,100).
// Hashing identity together with the feature key decorrelates bucketing
// across features, so the same identities are not always the first to receive
// every new rollout.
func Bucket(identity, featureKey string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(identity))
	h.Write([]byte{':'})
	h.Write([]byte(featureKey))
	return h.Sum32() % 100
}

// Included reports whether the identity falls inside the rollout percentage
// for the feature. Deterministic: no randomness, no wall clock. For a fixed
// identity and key, growing the percent never excludes an identity that was
// already included.
func Included(identity, featureKey string, percent int) bool {
	if percent <= 0 {
		return false
	}
	if percent >= 100 {
		return true
	}
	return int(Bucket(identity, featureKey)) < percent
}

// Evaluate resolves a rule for an identity. Precedence: kill switch, then
// explicit overrides, then the percentage bucket, then the rule default.
// Pure and side-effect free; never errors.
func Evaluate(identity, featureKey string, rule policy.Rule) (bool, Reason) {
	if rule.KillSwitch {
		return false, ReasonKillSwitch
	}
	if v, ok := rule.Overrides[identity]; ok {
		return v, ReasonOverride
	}
	if Included(identity, featureKey, rule.RolloutPercent) {
		return true, ReasonRollout
	}
	return rule.DefaultValue, ReasonDefault
}
