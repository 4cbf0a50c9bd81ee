package policy

import "errors"

// Predefined errors for the policy package.
var (
	// ErrInvalidPolicy indicates the policy or one of its rules fails validation.
	ErrInvalidPolicy = errors.New("invalid policy")

	// ErrStalePolicy indicates a publish attempt with a version at or below the
	// current one. The current policy is left untouched.
	ErrStalePolicy = errors.New("stale policy version")

	// ErrSnapshot indicates a best-effort persistence failure. The in-memory
	// policy remains authoritative; callers treat this as a warning.
	ErrSnapshot = errors.New("policy snapshot failed")

	// ErrNoSnapshot indicates no persisted snapshot exists yet.
	ErrNoSnapshot = errors.New("no policy snapshot found")

	// ErrNoPrevious indicates there is no previous policy to revert to.
	ErrNoPrevious = errors.New("no previous policy to revert to")
)
