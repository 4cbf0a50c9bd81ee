package fetcher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrymomot/rolloutkit/pkg/policy"
)

// Config holds the fetcher settings. Fields can be populated from environment
// variables via github.com/caarlos0/env.
type Config struct {
	PollInterval    time.Duration `env:"ROLLOUT_POLL_INTERVAL" envDefault:"30s"`
	MaxRetries      int           `env:"ROLLOUT_FETCH_MAX_RETRIES" envDefault:"3"`
	ShutdownTimeout time.Duration `env:"ROLLOUT_FETCH_SHUTDOWN_TIMEOUT" envDefault:"5s"`
}

// Fetcher pulls policies from a Source and publishes them to the store.
// It owns retry/backoff and never blocks evaluation: readers keep serving the
// last good policy while fetches fail.
type Fetcher struct {
	store  *policy.Store
	source Source

	backoff         BackoffStrategy
	maxRetries      int
	interval        time.Duration
	shutdownTimeout time.Duration
	logger          *slog.Logger
	onDegraded      func(err error)

	degraded atomic.Bool
	inFlight atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithBackoff sets the retry backoff strategy.
func WithBackoff(b BackoffStrategy) Option {
	return func(f *Fetcher) {
		if b != nil {
			f.backoff = b
		}
	}
}

// WithMaxRetries bounds retry attempts per fetch cycle (not counting the
// initial attempt).
func WithMaxRetries(n int) Option {
	return func(f *Fetcher) {
		if n >= 0 {
			f.maxRetries = n
		}
	}
}

// WithPollInterval sets the polling period for Start.
func WithPollInterval(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.interval = d
		}
	}
}

// WithShutdownTimeout bounds how long Stop waits for an in-flight fetch.
func WithShutdownTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.shutdownTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithDegradedHandler registers a hook invoked once per transition into
// degraded mode, for alerting an operational observer.
func WithDegradedHandler(fn func(err error)) Option {
	return func(f *Fetcher) {
		if fn != nil {
			f.onDegraded = fn
		}
	}
}

// New creates a fetcher publishing into the given store.
func New(store *policy.Store, source Source, opts ...Option) (*Fetcher, error) {
	if store == nil {
		return nil, errors.New("policy store cannot be nil")
	}
	if source == nil {
		return nil, errors.New("policy source cannot be nil")
	}

	f := &Fetcher{
		store:           store,
		source:          source,
		backoff:         DefaultBackoff(),
		maxRetries:      3,
		interval:        30 * time.Second,
		shutdownTimeout: 5 * time.Second,
		logger:          slog.Default(),
		onDegraded:      func(error) {},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Degraded reports whether the last fetch cycle exhausted its retries.
// Evaluation continues against the last good policy while degraded.
func (f *Fetcher) Degraded() bool {
	return f.degraded.Load()
}

// FetchOnce runs one fetch cycle: fetch with retries, validate, publish.
//
// Transient failures (timeout, unreachable) are retried with backoff up to
// the configured attempt budget; exhaustion returns ErrRetriesExhausted and
// flips the fetcher into degraded mode. A malformed payload is rejected
// immediately without retries and without entering degraded mode: the
// authority answered, it just answered garbage. A stale version is dropped
// quietly since a newer policy is already current.
func (f *Fetcher) FetchOnce(ctx context.Context) (*policy.Policy, error) {
	var lastErr error
	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		if attempt > 0 {
			delay := f.backoff.NextInterval(attempt)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		p, err := f.source.FetchPolicy(ctx)
		if err == nil {
			return f.publish(ctx, p)
		}

		if errors.Is(err, ErrMalformedPayload) {
			f.logger.ErrorContext(ctx, "malformed policy payload rejected",
				slog.String("error", err.Error()))
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		lastErr = err
		f.logger.WarnContext(ctx, "policy fetch attempt failed",
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()))
	}

	err := errors.Join(ErrRetriesExhausted, lastErr)
	if f.degraded.CompareAndSwap(false, true) {
		f.logger.ErrorContext(ctx, "entering degraded mode, serving last good policy",
			slog.Int64("policy_version", f.store.Current().Version),
			slog.String("error", err.Error()))
		f.onDegraded(err)
	}
	return nil, err
}

func (f *Fetcher) publish(ctx context.Context, p *policy.Policy) (*policy.Policy, error) {
	err := f.store.Publish(ctx, p)
	switch {
	case err == nil:
	case errors.Is(err, policy.ErrStalePolicy):
		// Out-of-order fetch: a newer policy won the race. Keep it.
		f.logger.InfoContext(ctx, "stale fetched policy ignored",
			slog.Int64("fetched_version", p.Version),
			slog.Int64("current_version", f.store.Current().Version))
		p = f.store.Current()
	case errors.Is(err, policy.ErrSnapshot):
		// Published in memory, persistence failed. Warning only.
		f.logger.WarnContext(ctx, "policy published without snapshot",
			slog.Int64("version", p.Version))
	default:
		return nil, errors.Join(ErrMalformedPayload, err)
	}

	if f.degraded.CompareAndSwap(true, false) {
		f.logger.InfoContext(ctx, "recovered from degraded mode",
			slog.Int64("policy_version", p.Version))
	}
	return p, nil
}

// Start begins background polling. The first fetch runs immediately, then one
// cycle per interval. A tick that arrives while a cycle is still in flight is
// a no-op, so fetches are never duplicated.
func (f *Fetcher) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancel != nil {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	f.cancel = cancel

	f.wg.Add(1)
	go f.run(ctx)

	f.logger.InfoContext(ctx, "policy polling started",
		slog.Duration("interval", f.interval))
	return nil
}

// Stop halts polling, allowing an in-flight fetch to finish within the
// shutdown timeout. An abandoned fetch never publishes: publish goes through
// the store only from inside the cycle, which is cancelled with the context.
func (f *Fetcher) Stop() error {
	f.mu.Lock()
	cancel := f.cancel
	f.cancel = nil
	f.mu.Unlock()

	if cancel == nil {
		return ErrNotStarted
	}
	cancel()

	finished := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-time.After(f.shutdownTimeout):
		return errors.New("fetcher shutdown timed out")
	}
}

func (f *Fetcher) run(ctx context.Context) {
	defer f.wg.Done()

	f.cycle(ctx)

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			f.logger.Info("policy polling stopped")
			return
		case <-ticker.C:
			f.cycle(ctx)
		}
	}
}

// cycle runs one fetch guarded against overlap. Errors are already handled
// and logged inside FetchOnce; polling carries on regardless.
func (f *Fetcher) cycle(ctx context.Context) {
	if !f.inFlight.CompareAndSwap(false, true) {
		f.logger.Debug("fetch already in flight, skipping tick")
		return
	}

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		defer f.inFlight.Store(false)
		_, _ = f.FetchOnce(ctx)
	}()
}
