// Package translate wraps Google's public web translation endpoint, the same
// service used by the googletrans family of clients.
package translate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"mobility/m/internal/metrics"
)

const serviceName = "translate"

var ErrEmptyText = errors.New("no text provided")

// Result is a translated text with the detected source language.
type Result struct {
	Text           string
	SourceLanguage string
}

// Translator turns text into the target language.
type Translator interface {
	Translate(ctx context.Context, text, target string) (*Result, error)
}

type Client struct {
	http     *http.Client
	endpoint string
	metrics  *metrics.Metrics
}

// NewClient builds a Client. The request timeout is the one set on httpClient.
func NewClient(httpClient *http.Client, endpoint string, m *metrics.Metrics) *Client {
	return &Client{http: httpClient, endpoint: endpoint, metrics: m}
}

// Translate detects the language of text and translates it to target.
func (c *Client) Translate(ctx context.Context, text, target string) (*Result, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	start := time.Now()
	res, err := c.do(ctx, text, target)
	result := "ok"
	if err != nil {
		result = "error"
		logrus.WithError(err).Warn("translation request failed")
	}
	c.metrics.ObserveUpstream(serviceName, result, time.Since(start))
	return res, err
}

func (c *Client) do(ctx context.Context, text, target string) (*Result, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid translate url: %w", err)
	}
	params := u.Query()
	params.Set("client", "gtx")
	params.Set("sl", "auto")
	params.Set("tl", target)
	params.Set("dt", "t")
	params.Set("q", text)
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("translate service returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read translate response: %w", err)
	}
	return parse(body)
}

// parse decodes the positional response format:
//
//	[[["Hello","Hola",null,null,10], ...], null, "es", ...]
func parse(body []byte) (*Result, error) {
	var top []json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil {
		return nil, fmt.Errorf("unexpected translate response: %w", err)
	}
	if len(top) < 3 {
		return nil, errors.New("unexpected translate response: too few fields")
	}

	var segments [][]json.RawMessage
	if err := json.Unmarshal(top[0], &segments); err != nil {
		return nil, fmt.Errorf("unexpected translate segments: %w", err)
	}

	var sb strings.Builder
	for _, seg := range segments {
		if len(seg) == 0 {
			continue
		}
		var part string
		if err := json.Unmarshal(seg[0], &part); err != nil {
			continue
		}
		sb.WriteString(part)
	}

	var src string
	if err := json.Unmarshal(top[2], &src); err != nil {
		return nil, fmt.Errorf("unexpected source language: %w", err)
	}
	return &Result{Text: sb.String(), SourceLanguage: src}, nil
}
