package fetcher_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/rolloutkit/pkg/fetcher"
)

func TestParsePayload(t *testing.T) {
	t.Parallel()

	t.Run("Valid", func(t *testing.T) {
		t.Parallel()
		p, err := fetcher.ParsePayload([]byte(`{
			"version": 3,
			"features": [
				{"key": "beta", "default_value": false, "rollout_percent": 25,
				 "overrides": {"qa-device": true}, "kill_switch": false},
				{"key": "dark-mode", "rollout_percent": 100}
			]
		}`))
		require.NoError(t, err)
		assert.Equal(t, int64(3), p.Version)
		assert.Len(t, p.Features, 2)
		assert.Equal(t, 25, p.Features["beta"].RolloutPercent)
		assert.True(t, p.Features["beta"].Overrides["qa-device"])
	})

	t.Run("MissingVersion", func(t *testing.T) {
		t.Parallel()
		_, err := fetcher.ParsePayload([]byte(`{"features": []}`))
		assert.ErrorIs(t, err, fetcher.ErrMalformedPayload)
	})

	t.Run("DuplicateFeatureKey", func(t *testing.T) {
		t.Parallel()
		_, err := fetcher.ParsePayload([]byte(`{
			"version": 1,
			"features": [
				{"key": "beta", "rollout_percent": 10},
				{"key": "beta", "rollout_percent": 20}
			]
		}`))
		assert.ErrorIs(t, err, fetcher.ErrMalformedPayload)
	})

	t.Run("EmptyFeatureKey", func(t *testing.T) {
		t.Parallel()
		_, err := fetcher.ParsePayload([]byte(`{
			"version": 1,
			"features": [{"key": "", "rollout_percent": 10}]
		}`))
		assert.ErrorIs(t, err, fetcher.ErrMalformedPayload)
	})

	t.Run("PercentOutOfRange", func(t *testing.T) {
		t.Parallel()
		_, err := fetcher.ParsePayload([]byte(`{
			"version": 1,
			"features": [{"key": "beta", "rollout_percent": 150}]
		}`))
		assert.ErrorIs(t, err, fetcher.ErrMalformedPayload)
	})

	t.Run("NotJSON", func(t *testing.T) {
		t.Parallel()
		_, err := fetcher.ParsePayload([]byte(`<html>oops</html>`))
		assert.ErrorIs(t, err, fetcher.ErrMalformedPayload)
	})
}

func TestHTTPSource(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("FetchesAndParses", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodGet, r.Method)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version": 2, "features": [{"key": "beta", "rollout_percent": 50}]}`))
		}))
		defer srv.Close()

		src, err := fetcher.NewHTTPSource(srv.URL)
		require.NoError(t, err)

		p, err := src.FetchPolicy(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), p.Version)
		assert.Equal(t, 50, p.Features["beta"].RolloutPercent)
	})

	t.Run("ServerErrorIsUnreachable", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		src, err := fetcher.NewHTTPSource(srv.URL)
		require.NoError(t, err)

		_, err = src.FetchPolicy(ctx)
		assert.ErrorIs(t, err, fetcher.ErrUnreachable)
	})

	t.Run("ConnectionRefusedIsUnreachable", func(t *testing.T) {
		t.Parallel()
		src, err := fetcher.NewHTTPSource("http://127.0.0.1:1")
		require.NoError(t, err)

		_, err = src.FetchPolicy(ctx)
		assert.ErrorIs(t, err, fetcher.ErrUnreachable)
	})

	t.Run("SlowServerIsTimeout", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(time.Second):
			}
		}))
		defer srv.Close()

		src, err := fetcher.NewHTTPSource(srv.URL,
			fetcher.WithHTTPClient(&http.Client{Timeout: 20 * time.Millisecond}))
		require.NoError(t, err)

		_, err = src.FetchPolicy(ctx)
		assert.ErrorIs(t, err, fetcher.ErrTimeout)
	})

	t.Run("EmptyEndpoint", func(t *testing.T) {
		t.Parallel()
		_, err := fetcher.NewHTTPSource("")
		assert.Error(t, err)
	})
}
