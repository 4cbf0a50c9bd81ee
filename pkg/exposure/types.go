package exposure

import (
	"time"

	"github.com/google/uuid"
)

// Record captures one evaluation decision. Records are append-only audit
// events: they are created by the evaluator, handed to a sink, and never
// mutated afterwards. Identity is the caller-supplied opaque string; no PII
// is derived or stored here.
type Record struct {
	ID            uuid.UUID `json:"id"`
	Identity      string    `json:"identity"`
	FeatureKey    string    `json:"feature_key"`
	Decision      bool      `json:"decision"`
	Reason        string    `json:"reason"`
	PolicyVersion int64     `json:"policy_version"`
	CreatedAt     time.Time `json:"created_at"`
}

// ReasonPolicyMiss marks decisions resolved from the caller's local default
// because the feature key was absent from the current policy. The other
// reason values come from the assign package.
const ReasonPolicyMiss = "policy-miss"

// Sink receives exposure records. Implementations must never block the
// caller: evaluation latency cannot depend on telemetry throughput, so slow
// sinks drop records instead of applying backpressure.
type Sink interface {
	Emit(rec Record)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(rec Record)

func (f SinkFunc) Emit(rec Record) { f(rec) }

// Discard is a sink that drops every record. Useful when exposure tracking
// is not wired up.
var Discard Sink = SinkFunc(func(Record) {})
