package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// MetricFeed supplies the health metric the controller ramps against, e.g. an
// error rate or crash rate scoped to the feature. Feeds that cannot answer
// return ErrMetricUnavailable; the controller fails open and keeps ramping.
type MetricFeed interface {
	Query(ctx context.Context, featureKey string, window time.Duration) (float64, error)
}

// MetricFeedFunc adapts a function to the MetricFeed interface.
type MetricFeedFunc func(ctx context.Context, featureKey string, window time.Duration) (float64, error)

func (f MetricFeedFunc) Query(ctx context.Context, featureKey string, window time.Duration) (float64, error) {
	return f(ctx, featureKey, window)
}

// HTTPMetricFeed queries a metric endpoint over HTTP:
// GET <endpoint>?feature_key=<key>&window=<seconds> returning {"value": <n>}.
type HTTPMetricFeed struct {
	endpoint string
	client   *http.Client
}

// NewHTTPMetricFeed creates a feed reading from the given URL.
func NewHTTPMetricFeed(endpoint string, client *http.Client) (*HTTPMetricFeed, error) {
	if endpoint == "" {
		return nil, errors.New("metric endpoint cannot be empty")
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPMetricFeed{endpoint: endpoint, client: client}, nil
}

// Query fetches the metric value. Transport and decoding failures map to
// ErrMetricUnavailable so the controller's fail-open rule applies.
func (h *HTTPMetricFeed) Query(ctx context.Context, featureKey string, window time.Duration) (float64, error) {
	u, err := url.Parse(h.endpoint)
	if err != nil {
		return 0, errors.Join(ErrMetricUnavailable, err)
	}
	q := u.Query()
	q.Set("feature_key", featureKey)
	q.Set("window", fmt.Sprintf("%d", int(window.Seconds())))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return 0, errors.Join(ErrMetricUnavailable, err)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return 0, errors.Join(ErrMetricUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, errors.Join(ErrMetricUnavailable,
			fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var payload struct {
		Value *float64 `json:"value"`
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, errors.Join(ErrMetricUnavailable, err)
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.Value == nil {
		return 0, errors.Join(ErrMetricUnavailable, errors.New("malformed metric payload"))
	}
	return *payload.Value, nil
}
