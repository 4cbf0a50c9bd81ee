package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/dmitrymomot/rolloutkit/pkg/policy"
)

// Source pulls the latest policy from an external authority. The transport
// behind it is opaque to the rest of the system; implementations classify
// their failures into ErrTimeout, ErrUnreachable, or ErrMalformedPayload.
type Source interface {
	FetchPolicy(ctx context.Context) (*policy.Policy, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context) (*policy.Policy, error)

func (f SourceFunc) FetchPolicy(ctx context.Context) (*policy.Policy, error) {
	return f(ctx)
}

// wirePayload is the structural shape of the policy-serving endpoint:
// {version, features: [{key, default_value, rollout_percent, overrides, kill_switch}]}.
// Features arrive as a list so duplicate keys are detectable before they
// silently collapse into a map.
type wirePayload struct {
	Version  *int64        `json:"version"`
	Features []wireFeature `json:"features"`
}

type wireFeature struct {
	Key            string          `json:"key"`
	DefaultValue   bool            `json:"default_value"`
	RolloutPercent int             `json:"rollout_percent"`
	Overrides      map[string]bool `json:"overrides,omitempty"`
	KillSwitch     bool            `json:"kill_switch"`
}

// ParsePayload decodes and validates a raw policy payload. Any structural
// defect (missing version, duplicate or empty keys, percent out of range)
// yields ErrMalformedPayload; a payload is never partially applied.
func ParsePayload(data []byte) (*policy.Policy, error) {
	var w wirePayload
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, errors.Join(ErrMalformedPayload, err)
	}
	if w.Version == nil {
		return nil, errors.Join(ErrMalformedPayload, errors.New("missing version"))
	}

	p := &policy.Policy{
		Version:  *w.Version,
		Features: make(map[string]policy.Rule, len(w.Features)),
	}
	for _, f := range w.Features {
		if f.Key == "" {
			return nil, errors.Join(ErrMalformedPayload, errors.New("feature key cannot be empty"))
		}
		if _, dup := p.Features[f.Key]; dup {
			return nil, errors.Join(ErrMalformedPayload,
				fmt.Errorf("duplicate feature key %q", f.Key))
		}
		p.Features[f.Key] = policy.Rule{
			DefaultValue:   f.DefaultValue,
			RolloutPercent: f.RolloutPercent,
			Overrides:      f.Overrides,
			KillSwitch:     f.KillSwitch,
		}
	}

	if err := p.Validate(); err != nil {
		return nil, errors.Join(ErrMalformedPayload, err)
	}
	return p, nil
}

// HTTPSource fetches the policy payload with a GET request.
type HTTPSource struct {
	endpoint string
	client   *http.Client
}

// HTTPSourceOption configures an HTTPSource.
type HTTPSourceOption func(*HTTPSource)

// WithHTTPClient overrides the HTTP client, e.g. for custom transports or
// tests.
func WithHTTPClient(client *http.Client) HTTPSourceOption {
	return func(s *HTTPSource) {
		if client != nil {
			s.client = client
		}
	}
}

// NewHTTPSource creates a source reading from the given URL.
func NewHTTPSource(endpoint string, opts ...HTTPSourceOption) (*HTTPSource, error) {
	if endpoint == "" {
		return nil, errors.New("policy endpoint cannot be empty")
	}
	s := &HTTPSource{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// FetchPolicy performs one GET and parses the payload.
func (s *HTTPSource) FetchPolicy(ctx context.Context) (*policy.Policy, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint, nil)
	if err != nil {
		return nil, errors.Join(ErrUnreachable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Join(ErrUnreachable,
			fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, classifyTransportError(err)
	}
	return ParsePayload(body)
}

func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Join(ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errors.Join(ErrTimeout, err)
	}
	return errors.Join(ErrUnreachable, err)
}
