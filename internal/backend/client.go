// Package backend is the HTTP client for the remote sales backend: product
// availability, customer lookup, sale submission and employee login.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/pos-terminal/internal/common"
	"github.com/noah-isme/pos-terminal/internal/obs"
	"github.com/noah-isme/pos-terminal/internal/resilience"
)

var (
	// ErrClientNotFound is returned when a customer identifier is unknown to the backend.
	ErrClientNotFound = errors.New("backend: client not found")
	// ErrUnavailable wraps transport failures and an open circuit.
	ErrUnavailable = errors.New("backend: unavailable")
)

const maxErrorBody = 64 << 10

// Config configures a Client.
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	ReadRetries int
	HTTPClient  *http.Client
	Breaker     *resilience.Breaker
}

// Client talks to the backend REST API. Reads are retried through the
// breaker; writes are attempted once.
type Client struct {
	base   *url.URL
	reads  resilience.HTTPClient
	writes resilience.HTTPClient
}

// New validates cfg and builds a Client.
func New(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("backend url must be absolute: %q", cfg.BaseURL)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	breaker := cfg.Breaker
	if breaker == nil {
		breaker = resilience.NewBreaker(10, 0.5, 5*time.Second).WithTarget("backend")
	}
	retries := cfg.ReadRetries
	if retries <= 0 {
		retries = 1
	}
	return &Client{
		base: base,
		reads: resilience.HTTPClient{
			Client:      httpClient,
			Breaker:     breaker,
			MaxAttempts: retries,
			BaseBackoff: 100 * time.Millisecond,
			Jitter:      0.2,
			Timeout:     cfg.Timeout,
		},
		writes: resilience.HTTPClient{
			Client:      httpClient,
			Breaker:     breaker,
			MaxAttempts: 1,
			Timeout:     cfg.Timeout,
		},
	}, nil
}

// APIError is a non-2xx answer from the backend. Message is the backend's
// own text and is shown to the operator unchanged.
type APIError struct {
	Status  int
	Code    string
	Message string
	Body    []byte
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("backend responded %d", e.Status)
}

// StatusOf returns the backend status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

type envelope[T any] struct {
	Data T `json:"data"`
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token, ok := common.AccessToken(ctx); ok {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

// do executes req and decodes a 2xx body into out. Non-2xx answers become *APIError.
func (c *Client) do(ctx context.Context, hc resilience.HTTPClient, operation string, req *http.Request, out any) error {
	start := time.Now()
	resp, err := hc.Do(ctx, req)
	if err != nil {
		obs.ObserveBackend(operation, "error", obs.DurationMillis(time.Since(start)))
		return fmt.Errorf("backend %s: %w: %w", operation, ErrUnavailable, err)
	}
	defer resp.Body.Close()
	obs.ObserveBackend(operation, strconv.Itoa(resp.StatusCode), obs.DurationMillis(time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("backend %s: decode response: %w", operation, err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) *APIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr := &APIError{Status: resp.StatusCode, Body: body}

	var payload struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
		Code    string          `json:"code"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		apiErr.Message = payload.Message
		apiErr.Code = payload.Code
		var nested struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		var plain string
		switch {
		case len(payload.Error) == 0:
		case json.Unmarshal(payload.Error, &nested) == nil:
			if nested.Message != "" {
				apiErr.Message = nested.Message
			}
			if nested.Code != "" {
				apiErr.Code = nested.Code
			}
		case json.Unmarshal(payload.Error, &plain) == nil && apiErr.Message == "":
			apiErr.Message = plain
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

// Ping probes the backend health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/health", nil, nil)
	if err != nil {
		return err
	}
	return c.do(ctx, c.writes, "ping", req, nil)
}
