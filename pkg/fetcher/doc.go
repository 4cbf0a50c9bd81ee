// Package fetcher pulls rollout policies from an external authority and
// publishes them to the policy store.
//
// The fetcher is the only component that talks to the policy-serving
// endpoint. It validates payloads structurally before publishing (version
// present, no duplicate keys, percents in range) so a malformed payload is
// never partially applied, and it classifies failures:
//
//   - ErrTimeout / ErrUnreachable: transient, retried with exponential
//     backoff and jitter up to a per-cycle attempt budget.
//   - ErrMalformedPayload: rejected immediately, no retries, no degradation.
//   - ErrRetriesExhausted: the cycle gave up; the fetcher flips into degraded
//     mode, notifies the registered handler once, and evaluation keeps
//     serving the last good policy.
//
// # Usage
//
//	src, err := fetcher.NewHTTPSource("https://flags.internal/policy")
//	if err != nil {
//	    return err
//	}
//	f, err := fetcher.New(store, src,
//	    fetcher.WithPollInterval(cfg.PollInterval),
//	    fetcher.WithDegradedHandler(alertOps),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := f.Start(ctx); err != nil {
//	    return err
//	}
//	defer f.Stop()
//
// Polling is a background ticker with a single-flight guard: a tick that
// fires while a fetch is still running is dropped rather than queued.
package fetcher
