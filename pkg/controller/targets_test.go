package controller_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/rolloutkit/pkg/controller"
)

func writeTargetsFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "targets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadTargetsFile(t *testing.T) {
	t.Parallel()

	t.Run("RegistersTargets", func(t *testing.T) {
		t.Parallel()
		store := newStoreWithFeature(t, "new-checkout", 0)
		ctrl, err := controller.New(store, healthyFeed())
		require.NoError(t, err)

		path := writeTargetsFile(t, `
targets:
  - feature_key: new-checkout
    desired_percent: 50
    step_size: 10
    metric_threshold: 0.05
    metric_window: 5m
    auto_start: true
  - feature_key: dark-mode
    desired_percent: 100
    step_size: 25
`)
		require.NoError(t, ctrl.LoadTargetsFile(path))

		state, err := ctrl.StateOf("new-checkout")
		require.NoError(t, err)
		assert.Equal(t, controller.StateRamping, state)

		state, err = ctrl.StateOf("dark-mode")
		require.NoError(t, err)
		assert.Equal(t, controller.StatePaused, state)

		targets := ctrl.Targets()
		require.Len(t, targets, 2)
		for _, target := range targets {
			if target.FeatureKey == "new-checkout" {
				assert.Equal(t, 50, target.DesiredPercent)
				assert.Equal(t, 10, target.StepSize)
				assert.InDelta(t, 0.05, target.MetricThreshold, 1e-9)
				assert.Equal(t, 5*time.Minute, target.MetricWindow)
			}
		}
	})

	t.Run("InvalidTargetFails", func(t *testing.T) {
		t.Parallel()
		store := newStoreWithFeature(t, "beta", 0)
		ctrl, err := controller.New(store, healthyFeed())
		require.NoError(t, err)

		path := writeTargetsFile(t, `
targets:
  - feature_key: beta
    desired_percent: 150
    step_size: 10
`)
		assert.ErrorIs(t, ctrl.LoadTargetsFile(path), controller.ErrInvalidTarget)
	})

	t.Run("MalformedYAMLFails", func(t *testing.T) {
		t.Parallel()
		store := newStoreWithFeature(t, "beta", 0)
		ctrl, err := controller.New(store, healthyFeed())
		require.NoError(t, err)

		path := writeTargetsFile(t, "targets: [not, a, mapping")
		assert.Error(t, ctrl.LoadTargetsFile(path))
	})

	t.Run("MissingFileFails", func(t *testing.T) {
		t.Parallel()
		store := newStoreWithFeature(t, "beta", 0)
		ctrl, err := controller.New(store, healthyFeed())
		require.NoError(t, err)

		assert.Error(t, ctrl.LoadTargetsFile(filepath.Join(t.TempDir(), "nope.yaml")))
	})
}
