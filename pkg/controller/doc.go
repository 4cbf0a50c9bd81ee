// Package controller implements the periodic control loop that advances and
// retracts rollout percentages against a health metric.
//
// Each registered feature moves through a small state machine:
//
//	Paused → Ramping → Complete
//	         Ramping → RolledBack → (operator re-arm) → Paused
//
// On every tick, each Ramping feature's metric is queried. A breach of the
// target threshold flips the feature's kill switch, publishes the policy, and
// transitions to RolledBack, which is terminal until an operator explicitly
// re-arms. Otherwise the rollout percent is raised by the target's step size,
// capped at the desired percent; reaching it transitions to Complete.
//
// An unavailable metric feed is treated as "no breach detected". This is a
// deliberate fail-open choice: monitoring flakiness pauses nothing, and the
// kill switch plus ForceRollback remain the safety net. The tradeoff is
// covered by tests.
//
// All mutations, tick-driven and operator-driven (ForceRollback, ReArm,
// SetDesiredPercent), go through the store's publish discipline: clone the
// current policy, bump the version, publish. A publish that loses a version
// race to the fetcher is dropped and retried on the next tick against the
// freshly read policy.
package controller
