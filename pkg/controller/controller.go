package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/rolloutkit/pkg/policy"
)

// Config holds the controller settings. Fields can be populated from
// environment variables via github.com/caarlos0/env.
type Config struct {
	TickInterval time.Duration `env:"ROLLOUT_TICK_INTERVAL" envDefault:"1m"`
	MetricWindow time.Duration `env:"ROLLOUT_METRIC_WINDOW" envDefault:"5m"`
}

// Target describes how far and how fast a feature should roll out, and the
// metric threshold that triggers rollback. Targets are owned by the
// controller and mutated only through it.
type Target struct {
	FeatureKey      string
	DesiredPercent  int
	StepSize        int
	MetricThreshold float64
	MetricWindow    time.Duration // 0 means the controller default
}

// Validate checks the target invariants.
func (t Target) Validate() error {
	if t.FeatureKey == "" {
		return errors.Join(ErrInvalidTarget, errors.New("feature key cannot be empty"))
	}
	if t.DesiredPercent < 0 || t.DesiredPercent > 100 {
		return errors.Join(ErrInvalidTarget,
			fmt.Errorf("desired percent %d out of range [0,100]", t.DesiredPercent))
	}
	if t.StepSize <= 0 {
		return errors.Join(ErrInvalidTarget,
			fmt.Errorf("step size %d must be positive", t.StepSize))
	}
	return nil
}

// AlertFunc is invoked when a metric breach rolls a feature back.
type AlertFunc func(featureKey string, metricValue float64)

type featureRollout struct {
	target Target
	state  State
}

// Controller is the periodic control loop that advances and retracts rollout
// percentages. All policy mutations, from ticks and from operator calls, go
// through the store's publish discipline with a version bump.
type Controller struct {
	store   *policy.Store
	metrics MetricFeed

	interval     time.Duration
	metricWindow time.Duration
	logger       *slog.Logger
	alert        AlertFunc

	mu       sync.Mutex // guards features; per-feature steps and operator calls serialize here
	features map[string]*featureRollout

	runMu  sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Controller.
type Option func(*Controller)

// WithTickInterval sets the control-loop period.
func WithTickInterval(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithMetricWindow sets the default metric query window for targets that do
// not specify one.
func WithMetricWindow(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.metricWindow = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithAlertHandler registers a hook invoked on every breach-triggered
// rollback.
func WithAlertHandler(fn AlertFunc) Option {
	return func(c *Controller) {
		if fn != nil {
			c.alert = fn
		}
	}
}

// New creates a controller publishing into the given store. A nil metric feed
// means no breach is ever detected; ramps then only stop at their target or
// by operator action.
func New(store *policy.Store, metrics MetricFeed, opts ...Option) (*Controller, error) {
	if store == nil {
		return nil, errors.New("policy store cannot be nil")
	}
	if metrics == nil {
		metrics = MetricFeedFunc(func(context.Context, string, time.Duration) (float64, error) {
			return 0, ErrMetricUnavailable
		})
	}

	c := &Controller{
		store:        store,
		metrics:      metrics,
		interval:     time.Minute,
		metricWindow: 5 * time.Minute,
		logger:       slog.Default(),
		alert:        func(string, float64) {},
		features:     make(map[string]*featureRollout),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// AddTarget registers a rollout target in the Paused state.
func (c *Controller) AddTarget(t Target) error {
	if err := t.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.features[t.FeatureKey]; exists {
		return ErrTargetExists
	}
	c.features[t.FeatureKey] = &featureRollout{target: t, state: StatePaused}

	c.logger.Info("rollout target registered",
		slog.String("feature_key", t.FeatureKey),
		slog.Int("desired_percent", t.DesiredPercent),
		slog.Int("step_size", t.StepSize))
	return nil
}

// StateOf returns the rollout state of a feature.
func (c *Controller) StateOf(featureKey string) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fr, ok := c.features[featureKey]
	if !ok {
		return "", ErrUnknownFeature
	}
	return fr.state, nil
}

// Targets returns a snapshot of all registered targets.
func (c *Controller) Targets() []Target {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Target, 0, len(c.features))
	for _, fr := range c.features {
		out = append(out, fr.target)
	}
	return out
}

// Resume moves a Paused (or Complete) feature into Ramping. Rolled-back
// features must be re-armed first.
func (c *Controller) Resume(featureKey string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	fr, ok := c.features[featureKey]
	if !ok {
		return ErrUnknownFeature
	}
	if err := c.transition(featureKey, fr, StateRamping); err != nil {
		return err
	}
	return nil
}

// ForceRollback kills the feature immediately: kill switch on, version bump,
// state RolledBack. Idempotent for features already rolled back.
func (c *Controller) ForceRollback(ctx context.Context, featureKey string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	fr, ok := c.features[featureKey]
	if !ok {
		return ErrUnknownFeature
	}
	if fr.state == StateRolledBack {
		return nil
	}

	if err := c.publishRule(ctx, featureKey, func(r *policy.Rule) {
		r.KillSwitch = true
	}); err != nil {
		return err
	}
	if err := c.transition(featureKey, fr, StateRolledBack); err != nil {
		return err
	}
	c.logger.Warn("feature force-rolled back", slog.String("feature_key", featureKey))
	return nil
}

// ReArm clears the kill switch of a rolled-back feature and parks it in
// Paused. Ramping does not resume until an explicit Resume.
func (c *Controller) ReArm(ctx context.Context, featureKey string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	fr, ok := c.features[featureKey]
	if !ok {
		return ErrUnknownFeature
	}
	if fr.state != StateRolledBack {
		return &ErrInvalidTransition{FeatureKey: featureKey, From: fr.state, To: StatePaused}
	}

	if err := c.publishRule(ctx, featureKey, func(r *policy.Rule) {
		r.KillSwitch = false
	}); err != nil {
		return err
	}
	if err := c.transition(featureKey, fr, StatePaused); err != nil {
		return err
	}
	c.logger.Info("feature re-armed", slog.String("feature_key", featureKey))
	return nil
}

// SetDesiredPercent retargets the rollout. Raising the target on a Complete
// feature puts it back into Ramping; lowering it below the current percent
// publishes the reduction immediately rather than waiting for a tick.
func (c *Controller) SetDesiredPercent(ctx context.Context, featureKey string, percent int) error {
	if percent < 0 || percent > 100 {
		return errors.Join(ErrInvalidTarget,
			fmt.Errorf("desired percent %d out of range [0,100]", percent))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	fr, ok := c.features[featureKey]
	if !ok {
		return ErrUnknownFeature
	}
	fr.target.DesiredPercent = percent

	rule, _ := c.store.Current().Rule(featureKey)
	if rule.RolloutPercent > percent {
		if err := c.publishRule(ctx, featureKey, func(r *policy.Rule) {
			r.RolloutPercent = percent
		}); err != nil {
			return err
		}
	}
	if fr.state == StateComplete && rule.RolloutPercent != percent {
		return c.transition(featureKey, fr, StateRamping)
	}
	return nil
}

// Tick runs one control-loop pass over all Ramping features. Stale publishes
// are not errors: the next tick re-reads the current policy and retries from
// there.
func (c *Controller) Tick(ctx context.Context) error {
	c.mu.Lock()
	keys := make([]string, 0, len(c.features))
	for key, fr := range c.features {
		if fr.state == StateRamping {
			keys = append(keys, key)
		}
	}
	c.mu.Unlock()

	var errs []error
	for _, key := range keys {
		if err := c.step(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("feature %q: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

// step advances one Ramping feature by one increment, or rolls it back on a
// metric breach.
func (c *Controller) step(ctx context.Context, featureKey string) error {
	c.mu.Lock()
	fr, ok := c.features[featureKey]
	if !ok || fr.state != StateRamping {
		c.mu.Unlock()
		return nil
	}
	target := fr.target
	c.mu.Unlock()

	window := target.MetricWindow
	if window == 0 {
		window = c.metricWindow
	}

	// Metric query runs outside the lock; operator calls may land meanwhile,
	// so the state is re-checked before anything is applied.
	value, err := c.metrics.Query(ctx, featureKey, window)
	breach := false
	if err != nil {
		// Fail open: an unreachable metric feed must not stall the rollout.
		c.logger.Warn("metric feed unavailable, assuming no breach",
			slog.String("feature_key", featureKey),
			slog.String("error", err.Error()))
	} else {
		breach = value > target.MetricThreshold
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if fr.state != StateRamping {
		return nil
	}

	if breach {
		return c.rollback(ctx, featureKey, fr, value)
	}
	return c.advance(ctx, featureKey, fr)
}

func (c *Controller) rollback(ctx context.Context, featureKey string, fr *featureRollout, value float64) error {
	err := c.publishRule(ctx, featureKey, func(r *policy.Rule) {
		r.KillSwitch = true
	})
	if errors.Is(err, policy.ErrStalePolicy) {
		c.logger.Debug("rollback publish lost a version race, retrying next tick",
			slog.String("feature_key", featureKey))
		return nil
	}
	if err != nil {
		return err
	}

	if err := c.transition(featureKey, fr, StateRolledBack); err != nil {
		return err
	}
	c.logger.Error("metric breach, feature rolled back",
		slog.String("feature_key", featureKey),
		slog.Float64("metric_value", value),
		slog.Float64("threshold", fr.target.MetricThreshold))
	c.alert(featureKey, value)
	return nil
}

func (c *Controller) advance(ctx context.Context, featureKey string, fr *featureRollout) error {
	rule, _ := c.store.Current().Rule(featureKey)
	desired := min(fr.target.DesiredPercent, 100)

	if rule.RolloutPercent >= desired {
		return c.transition(featureKey, fr, StateComplete)
	}

	next := min(rule.RolloutPercent+fr.target.StepSize, desired)
	err := c.publishRule(ctx, featureKey, func(r *policy.Rule) {
		r.RolloutPercent = next
	})
	if errors.Is(err, policy.ErrStalePolicy) {
		c.logger.Debug("ramp publish lost a version race, retrying next tick",
			slog.String("feature_key", featureKey))
		return nil
	}
	if err != nil {
		return err
	}

	c.logger.Info("rollout advanced",
		slog.String("feature_key", featureKey),
		slog.Int("rollout_percent", next),
		slog.Int("desired_percent", desired))

	if next >= desired {
		return c.transition(featureKey, fr, StateComplete)
	}
	return nil
}

// publishRule clones the current policy, applies the mutation to one rule,
// and publishes under a bumped version. A snapshot failure is warning-class
// and already logged by the store; the publish itself succeeded.
func (c *Controller) publishRule(ctx context.Context, featureKey string, mutate func(r *policy.Rule)) error {
	next := c.store.Current().Clone()
	next.Version++
	rule := next.Features[featureKey]
	mutate(&rule)
	next.Features[featureKey] = rule

	err := c.store.Publish(ctx, next)
	if errors.Is(err, policy.ErrSnapshot) {
		return nil
	}
	return err
}

func (c *Controller) transition(featureKey string, fr *featureRollout, to State) error {
	if !fr.state.canTransition(to) {
		return &ErrInvalidTransition{FeatureKey: featureKey, From: fr.state, To: to}
	}
	c.logger.Debug("rollout state changed",
		slog.String("feature_key", featureKey),
		slog.String("from", string(fr.state)),
		slog.String("to", string(to)))
	fr.state = to
	return nil
}

// Start launches the background control loop. Ticks run sequentially on a
// single goroutine, so control passes never overlap.
func (c *Controller) Start(ctx context.Context) error {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if c.cancel != nil {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go c.run(ctx)

	c.logger.InfoContext(ctx, "rollout control loop started",
		slog.Duration("interval", c.interval))
	return nil
}

// Stop halts the control loop and waits for an in-flight tick to finish.
func (c *Controller) Stop() error {
	c.runMu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.runMu.Unlock()

	if cancel == nil {
		return ErrNotStarted
	}
	cancel()
	c.wg.Wait()
	return nil
}

func (c *Controller) run(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("rollout control loop stopped")
			return
		case <-ticker.C:
			if err := c.Tick(ctx); err != nil {
				c.logger.Error("control tick failed", slog.String("error", err.Error()))
			}
		}
	}
}
