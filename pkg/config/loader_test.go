package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/rolloutkit/pkg/config"
)

type testConfig struct {
	PolicyURL    string        `env:"TEST_ROLLOUT_POLICY_URL,required"`
	PollInterval time.Duration `env:"TEST_ROLLOUT_POLL_INTERVAL" envDefault:"30s"`
	MaxRetries   int           `env:"TEST_ROLLOUT_MAX_RETRIES" envDefault:"3"`
}

func TestLoad(t *testing.T) {
	t.Run("ParsesEnvironment", func(t *testing.T) {
		t.Setenv("TEST_ROLLOUT_POLICY_URL", "https://policy.example.com/v1")
		t.Setenv("TEST_ROLLOUT_POLL_INTERVAL", "10s")

		var cfg testConfig
		require.NoError(t, config.Load(&cfg))
		assert.Equal(t, "https://policy.example.com/v1", cfg.PolicyURL)
		assert.Equal(t, 10*time.Second, cfg.PollInterval)
		assert.Equal(t, 3, cfg.MaxRetries)
	})

	t.Run("MissingRequiredFails", func(t *testing.T) {
		var cfg testConfig
		assert.ErrorIs(t, config.Load(&cfg), config.ErrParsingConfig)
	})

	t.Run("NilPointerFails", func(t *testing.T) {
		assert.ErrorIs(t, config.Load[testConfig](nil), config.ErrNilPointer)
	})
}

func TestLoadFromFiles(t *testing.T) {
	t.Run("ReadsDotenvFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ".env")
		require.NoError(t, os.WriteFile(path, []byte(
			"TEST_FILE_POLICY_URL=https://policy.example.com/from-file\n"), 0o600))

		var cfg struct {
			PolicyURL string `env:"TEST_FILE_POLICY_URL,required"`
		}
		require.NoError(t, config.LoadFromFiles(&cfg, path))
		assert.Equal(t, "https://policy.example.com/from-file", cfg.PolicyURL)
		t.Cleanup(func() { os.Unsetenv("TEST_FILE_POLICY_URL") })
	})

	t.Run("EnvironmentWinsOverFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ".env")
		require.NoError(t, os.WriteFile(path, []byte(
			"TEST_PRIORITY_URL=https://from-file.example.com\n"), 0o600))
		t.Setenv("TEST_PRIORITY_URL", "https://from-env.example.com")

		var cfg struct {
			URL string `env:"TEST_PRIORITY_URL"`
		}
		require.NoError(t, config.LoadFromFiles(&cfg, path))
		assert.Equal(t, "https://from-env.example.com", cfg.URL)
	})

	t.Run("MissingFileFails", func(t *testing.T) {
		var cfg testConfig
		err := config.LoadFromFiles(&cfg, filepath.Join(t.TempDir(), "nope.env"))
		assert.ErrorIs(t, err, config.ErrLoadingEnvFiles)
	})
}

func TestMustLoad(t *testing.T) {
	t.Run("PanicsOnMissingRequired", func(t *testing.T) {
		assert.Panics(t, func() {
			var cfg testConfig
			config.MustLoad(&cfg)
		})
	})
}
