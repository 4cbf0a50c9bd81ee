package evaluator

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/rolloutkit/pkg/assign"
	"github.com/dmitrymomot/rolloutkit/pkg/exposure"
	"github.com/dmitrymomot/rolloutkit/pkg/policy"
)

// Evaluator answers "is this feature on for this identity" against the
// current policy. It is the only evaluation entry point applications call.
//
// The read path is lock-free and local: one atomic snapshot of the current
// policy per call, a hash, and a non-blocking exposure emit. It never waits
// on fetcher or controller activity and never returns an error; when the
// policy has nothing to say the caller's local default (or false) wins.
type Evaluator struct {
	store *policy.Store
	sink  exposure.Sink
	now   func() time.Time
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithSink sets the exposure sink. Default is exposure.Discard.
func WithSink(sink exposure.Sink) Option {
	return func(e *Evaluator) {
		if sink != nil {
			e.sink = sink
		}
	}
}

// WithClock overrides the timestamp source for exposure records.
// Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) {
		if now != nil {
			e.now = now
		}
	}
}

// New creates an evaluator reading from the given policy store.
func New(store *policy.Store, opts ...Option) *Evaluator {
	if store == nil {
		panic("evaluator: policy store cannot be nil")
	}
	e := &Evaluator{
		store: store,
		sink:  exposure.Discard,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// IsEnabled reports whether the feature is enabled for the identity,
// falling back to false when the feature is absent from the current policy.
func (e *Evaluator) IsEnabled(ctx context.Context, identity, featureKey string) bool {
	return e.IsEnabledWithDefault(ctx, identity, featureKey, false)
}

// IsEnabledWithDefault is IsEnabled with a caller-supplied fallback used when
// the feature key is absent from the current policy. The fallback decision is
// still recorded, marked as a policy miss, so rollout analysis can tell
// policy-driven decisions from local defaults.
func (e *Evaluator) IsEnabledWithDefault(ctx context.Context, identity, featureKey string, localDefault bool) bool {
	// One snapshot per call: a concurrent publish swaps the whole policy
	// pointer, so this evaluation sees either the old or the new policy in
	// full, never a mix.
	snap := e.store.Current()

	decision := localDefault
	reason := exposure.ReasonPolicyMiss
	if rule, ok := snap.Rule(featureKey); ok {
		var r assign.Reason
		decision, r = assign.Evaluate(identity, featureKey, rule)
		reason = string(r)
	}

	e.sink.Emit(exposure.Record{
		ID:            uuid.New(),
		Identity:      identity,
		FeatureKey:    featureKey,
		Decision:      decision,
		Reason:        reason,
		PolicyVersion: snap.Version,
		CreatedAt:     e.now(),
	})

	return decision
}
