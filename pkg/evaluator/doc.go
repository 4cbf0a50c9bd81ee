// Package evaluator merges policy store state, assignment results, and
// caller-supplied local defaults into a single boolean decision per query.
//
// Resolution order per call:
//
//  1. Snapshot the current policy once (atomic pointer read, no lock).
//  2. Feature present in the policy: delegate to the assign package
//     (kill switch > overrides > rollout bucket > rule default).
//  3. Feature absent: return the caller's local default, or false.
//
// Every call emits exactly one exposure record carrying the decision, the
// resolution tier, and the policy version. Repeated identical calls are
// separate events.
//
// IsEnabled never errors and never touches the network: with the fetcher
// down, evaluation keeps serving the last good policy indefinitely.
package evaluator
