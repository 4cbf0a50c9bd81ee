package fetcher

import "errors"

// Predefined errors for the fetcher package.
var (
	// ErrTimeout indicates a fetch attempt exceeded its deadline. Transient,
	// retried with backoff.
	ErrTimeout = errors.New("policy fetch timed out")

	// ErrUnreachable indicates the policy authority could not be reached.
	// Transient, retried with backoff.
	ErrUnreachable = errors.New("policy authority unreachable")

	// ErrMalformedPayload indicates the fetched payload failed structural
	// validation. Rejected immediately without retries; the current policy
	// stays active and degraded mode is NOT entered.
	ErrMalformedPayload = errors.New("malformed policy payload")

	// ErrRetriesExhausted indicates all retry attempts of a fetch cycle
	// failed. The fetcher enters degraded mode and keeps serving the last
	// good policy.
	ErrRetriesExhausted = errors.New("policy fetch retries exhausted")

	// ErrAlreadyStarted indicates Start was called on a running fetcher.
	ErrAlreadyStarted = errors.New("fetcher already started")

	// ErrNotStarted indicates Stop was called on a fetcher that is not running.
	ErrNotStarted = errors.New("fetcher not started")
)
