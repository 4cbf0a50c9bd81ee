// Package policy defines the versioned rollout policy model and the store
// that owns the current policy for a process.
//
// A Policy maps feature keys to rules (default value, rollout percent,
// explicit overrides, kill switch). Policies are immutable once published:
// updates clone the current policy, mutate the clone, and publish it under a
// strictly higher version. The Store swaps an atomic pointer on publish, so
// readers always see a complete policy without taking a lock while writers
// serialize through a mutex.
//
// # Usage
//
//	store := policy.NewStore(policy.WithSnapshotter(snap))
//	if err := store.LoadSnapshot(ctx); err != nil {
//	    // snapshot unreadable, continue with empty policy
//	}
//
//	next := store.Current().Clone()
//	next.Version++
//	next.Features["new-checkout"] = policy.Rule{RolloutPercent: 25}
//	if err := store.Publish(ctx, next); err != nil {
//	    switch {
//	    case errors.Is(err, policy.ErrStalePolicy):
//	        // another writer got there first, re-read and retry
//	    case errors.Is(err, policy.ErrSnapshot):
//	        // published in memory, persistence failed; warning only
//	    }
//	}
//
// # Persistence
//
// Persistence is best-effort through the Snapshotter interface. Two
// implementations are provided: FileSnapshotter (atomic JSON file, survives
// restarts) and RedisSnapshotter (single Redis key, survives host
// replacement). A failed Save never fails a publish; the in-memory policy
// remains authoritative for the process lifetime and the error comes back
// wrapped in ErrSnapshot for warning-level logging.
//
// # Rollback
//
// The store retains exactly one previous policy. RevertToPrevious republishes
// its rules under a bumped version so the version sequence stays monotonic
// even across rollbacks. Deeper history is out of scope here and belongs to
// whatever audit system consumes published policies.
package policy
