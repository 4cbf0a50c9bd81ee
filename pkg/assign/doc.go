// Package assign maps stable identities to rollout inclusion decisions.
//
// Assignment is a pure function of (identity, feature key, rule): an FNV-1a
// hash over identity and key buckets each identity into [0,100), and the
// identity is included while its bucket stays below the rollout percent. The
// same identity therefore sees the same decision on every evaluation within a
// policy version, and ramping the percent up only ever adds identities.
//
// The caller supplies the identity as an opaque string (device ID, account
// ID, whatever granularity the application rolls out by); this package never
// interprets it.
package assign
