package policy

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Snapshotter persists the current policy so it survives process restarts.
// Persistence is best-effort: a failing Save never blocks a publish.
type Snapshotter interface {
	// Save persists the given policy, replacing any earlier snapshot.
	Save(ctx context.Context, p *Policy) error

	// Load returns the last persisted policy, or ErrNoSnapshot if none exists.
	Load(ctx context.Context) (*Policy, error)
}

// Store holds the current rollout policy. Readers take an immutable snapshot
// through Current without locking; writers serialize through Publish. At most
// one previous policy is retained for immediate rollback, deeper history
// belongs to an external audit collaborator.
type Store struct {
	current  atomic.Pointer[Policy]
	mu       sync.Mutex // serializes publishers, never held by readers
	previous *Policy

	snapshotter Snapshotter
	logger      *slog.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithSnapshotter enables best-effort persistence of published policies.
func WithSnapshotter(s Snapshotter) StoreOption {
	return func(st *Store) {
		if s != nil {
			st.snapshotter = s
		}
	}
}

// WithStoreLogger sets the logger used for persistence warnings.
func WithStoreLogger(logger *slog.Logger) StoreOption {
	return func(st *Store) {
		if logger != nil {
			st.logger = logger
		}
	}
}

// NewStore creates a policy store seeded with an empty version-0 policy, so
// evaluation is possible before the first fetch completes.
func NewStore(opts ...StoreOption) *Store {
	st := &Store{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(st)
	}
	st.current.Store(&Policy{Features: make(map[string]Rule)})
	return st
}

// Current returns the current policy snapshot. The returned policy must be
// treated as read-only; it is shared with concurrent readers.
func (s *Store) Current() *Policy {
	return s.current.Load()
}

// Publish atomically replaces the current policy. Policies with a version at
// or below the current one are rejected with ErrStalePolicy to prevent
// regressive overwrites from out-of-order fetches.
//
// A snapshotter failure does not fail the publish: the new policy is already
// authoritative in memory and the error is returned wrapped in ErrSnapshot so
// callers can log it as a warning.
func (s *Store) Publish(ctx context.Context, p *Policy) error {
	if err := p.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	cur := s.current.Load()
	if p.Version <= cur.Version {
		s.mu.Unlock()
		return ErrStalePolicy
	}

	// Store a clone so the caller cannot mutate a published policy.
	published := p.Clone()
	s.previous = cur
	s.current.Store(published)
	s.mu.Unlock()

	return s.snapshot(ctx, published)
}

// RevertToPrevious republishes the previous policy's rules under a bumped
// version, keeping the version sequence monotonic. Returns the policy that
// became current.
func (s *Store) RevertToPrevious(ctx context.Context) (*Policy, error) {
	s.mu.Lock()
	if s.previous == nil {
		s.mu.Unlock()
		return nil, ErrNoPrevious
	}

	cur := s.current.Load()
	reverted := s.previous.Clone()
	reverted.Version = cur.Version + 1
	s.previous = cur
	s.current.Store(reverted)
	s.mu.Unlock()

	if err := s.snapshot(ctx, reverted); err != nil {
		return reverted, err
	}
	return reverted, nil
}

// LoadSnapshot restores the last persisted policy if it is newer than the
// current one. A missing snapshot is not an error.
func (s *Store) LoadSnapshot(ctx context.Context) error {
	if s.snapshotter == nil {
		return nil
	}

	p, err := s.snapshotter.Load(ctx)
	if err != nil {
		if errors.Is(err, ErrNoSnapshot) {
			return nil
		}
		return errors.Join(ErrSnapshot, err)
	}
	if err := p.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if p.Version <= s.current.Load().Version {
		return nil
	}
	s.current.Store(p.Clone())
	return nil
}

func (s *Store) snapshot(ctx context.Context, p *Policy) error {
	if s.snapshotter == nil {
		return nil
	}
	if err := s.snapshotter.Save(ctx, p); err != nil {
		s.logger.WarnContext(ctx, "policy snapshot failed",
			slog.Int64("version", p.Version),
			slog.String("error", err.Error()))
		return errors.Join(ErrSnapshot, err)
	}
	return nil
}
