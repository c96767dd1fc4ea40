package geodata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"mobility/m/internal/metrics"
)

const serviceName = "overpass"

// UpstreamError reports a failed Overpass call. Status is set when the
// endpoint answered with a non-200 code; otherwise Err holds the cause.
type UpstreamError struct {
	Status int
	Err    error
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("overpass returned status %d", e.Status)
	}
	return e.Err.Error()
}

func (e *UpstreamError) Unwrap() error { return e.Err }

type Client struct {
	http     *http.Client
	endpoint string
	timeout  time.Duration
	metrics  *metrics.Metrics
}

func NewClient(httpClient *http.Client, endpoint string, timeout time.Duration, m *metrics.Metrics) *Client {
	return &Client{http: httpClient, endpoint: endpoint, timeout: timeout, metrics: m}
}

// Fetch runs the accessibility query for b and returns the upstream JSON unchanged.
func (c *Client) Fetch(ctx context.Context, b BBox) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	body, err := c.do(ctx, BuildQuery(b))
	c.metrics.ObserveUpstream(serviceName, outcome(err), time.Since(start))
	if err != nil {
		logrus.WithError(err).WithField("bbox", b.Overpass()).Warn("overpass request failed")
		return nil, err
	}
	return body, nil
}

func (c *Client) do(ctx context.Context, query string) (json.RawMessage, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, &UpstreamError{Err: fmt.Errorf("invalid overpass url: %w", err)}
	}
	params := u.Query()
	params.Set("data", query)
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &UpstreamError{Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &UpstreamError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &UpstreamError{Status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &UpstreamError{Err: fmt.Errorf("failed to read overpass response: %w", err)}
	}
	if !json.Valid(body) {
		return nil, &UpstreamError{Err: errors.New("overpass returned invalid JSON")}
	}
	return body, nil
}

func outcome(err error) string {
	var upErr *UpstreamError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &upErr) && upErr.Status != 0:
		return "status"
	default:
		return "error"
	}
}
