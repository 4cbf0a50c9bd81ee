package httpapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/rolloutkit/pkg/controller"
	"github.com/dmitrymomot/rolloutkit/pkg/evaluator"
	"github.com/dmitrymomot/rolloutkit/pkg/exposure"
	"github.com/dmitrymomot/rolloutkit/pkg/httpapi"
	"github.com/dmitrymomot/rolloutkit/pkg/policy"
)

type fixture struct {
	store  *policy.Store
	ctrl   *controller.Controller
	sink   *exposure.BufferedSink
	server *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := policy.NewStore()
	require.NoError(t, store.Publish(context.Background(), &policy.Policy{
		Version: 1,
		Features: map[string]policy.Rule{
			"beta": {RolloutPercent: 40},
		},
	}))

	feed := controller.MetricFeedFunc(func(context.Context, string, time.Duration) (float64, error) {
		return 0, nil
	})
	ctrl, err := controller.New(store, feed)
	require.NoError(t, err)

	sink := exposure.NewBufferedSink(64)
	eval := evaluator.New(store, evaluator.WithSink(sink))

	srv := httptest.NewServer(httpapi.Router(httpapi.RouterOptions{
		Store:      store,
		Controller: ctrl,
		Evaluator:  eval,
	}))
	t.Cleanup(srv.Close)

	return &fixture{store: store, ctrl: ctrl, sink: sink, server: srv}
}

func (f *fixture) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("{}")
	} else {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, f.server.URL+path, reader)
	require.NoError(t, err)
	resp, err := f.server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, into any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(into))
}

func TestPolicyEndpoint(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/policy", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var p policy.Policy
	decodeBody(t, resp, &p)
	assert.Equal(t, int64(1), p.Version)
	assert.Equal(t, 40, p.Features["beta"].RolloutPercent)
}

func TestTargetLifecycle(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/features/beta/target",
		`{"desired_percent": 100, "step_size": 10, "metric_threshold": 0.05}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/features/beta/state", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var state struct {
		FeatureKey     string `json:"feature_key"`
		State          string `json:"state"`
		RolloutPercent int    `json:"rollout_percent"`
		KillSwitch     bool   `json:"kill_switch"`
		InPolicy       bool   `json:"in_policy"`
	}
	decodeBody(t, resp, &state)
	assert.Equal(t, "paused", state.State)
	assert.Equal(t, 40, state.RolloutPercent)
	assert.True(t, state.InPolicy)

	resp = f.do(t, http.MethodPost, "/features/beta/resume", "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	got, err := f.ctrl.StateOf("beta")
	require.NoError(t, err)
	assert.Equal(t, controller.StateRamping, got)

	resp = f.do(t, http.MethodPost, "/features/beta/rollback", "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	rule, _ := f.store.Current().Rule("beta")
	assert.True(t, rule.KillSwitch)

	resp = f.do(t, http.MethodPost, "/features/beta/rearm", "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	rule, _ = f.store.Current().Rule("beta")
	assert.False(t, rule.KillSwitch)
}

func TestSetDesiredPercent(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/features/beta/target",
		`{"desired_percent": 100, "step_size": 10}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// Lowering below the live percent publishes immediately.
	resp = f.do(t, http.MethodPut, "/features/beta/percent", `{"desired_percent": 10}`)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	rule, _ := f.store.Current().Rule("beta")
	assert.Equal(t, 10, rule.RolloutPercent)

	resp = f.do(t, http.MethodPut, "/features/beta/percent", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.do(t, http.MethodPut, "/features/beta/percent", `{"desired_percent": 200}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDecisionEndpoint(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/features/beta/decision?identity=device-1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var decision struct {
		FeatureKey    string `json:"feature_key"`
		Identity      string `json:"identity"`
		Enabled       bool   `json:"enabled"`
		PolicyVersion int64  `json:"policy_version"`
	}
	decodeBody(t, resp, &decision)
	assert.Equal(t, "beta", decision.FeatureKey)
	assert.Equal(t, "device-1", decision.Identity)
	assert.Equal(t, int64(1), decision.PolicyVersion)

	// The preview emits a real exposure record.
	recs := f.sink.Drain()
	require.Len(t, recs, 1)
	assert.Equal(t, "device-1", recs[0].Identity)
	assert.Equal(t, decision.Enabled, recs[0].Decision)

	// Unknown feature falls back to the caller default.
	resp = f.do(t, http.MethodGet, "/features/ghost/decision?identity=device-1&default=true", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &decision)
	assert.True(t, decision.Enabled)

	resp = f.do(t, http.MethodGet, "/features/beta/decision", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/features/beta/decision?identity=device-1&default=maybe", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestErrorMapping(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	// Unknown feature -> 404.
	resp := f.do(t, http.MethodGet, "/features/ghost/state", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Invalid target -> 400.
	resp = f.do(t, http.MethodPost, "/features/beta/target",
		`{"desired_percent": 150, "step_size": 10}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Duplicate target -> 409.
	resp = f.do(t, http.MethodPost, "/features/beta/target",
		`{"desired_percent": 50, "step_size": 10}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp = f.do(t, http.MethodPost, "/features/beta/target",
		`{"desired_percent": 50, "step_size": 10}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Invalid transition (re-arm a feature that is not rolled back) -> 409.
	resp = f.do(t, http.MethodPost, "/features/beta/rearm", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Malformed body -> 400.
	resp = f.do(t, http.MethodPost, "/features/beta/target", `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
