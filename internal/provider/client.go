package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"vidresolve/internal/logging"
	"vidresolve/internal/metrics"
)

var (
	// ErrNotFound means the provider answered 404 for the id.
	ErrNotFound = errors.New("provider: not found")
	// ErrUnavailable covers every other failure to obtain a snapshot.
	ErrUnavailable = errors.New("provider: unavailable")
)

// StatusError reports a non-200, non-404 reply. It matches ErrUnavailable.
type StatusError struct {
	Endpoint string
	Code     int
	Latency  time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%v: provider %s lookup returned %d (latency=%v)", ErrUnavailable, e.Endpoint, e.Code, e.Latency)
}

func (e *StatusError) Unwrap() error { return ErrUnavailable }

// Unauthorized reports whether the provider rejected the credentials.
func (e *StatusError) Unauthorized() bool {
	return e.Code == http.StatusUnauthorized || e.Code == http.StatusForbidden
}

const (
	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 1 << 20
)

// Client provides access to the provider's asset and upload lookups.
type Client struct {
	baseURL     string
	tokenID     string
	tokenSecret string
	httpClient  *http.Client
	limiter     *rate.Limiter
	logger      *slog.Logger
}

var _ Fetcher = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient = &http.Client{Timeout: timeout}
		}
	}
}

// WithRateLimit gates every request on a token bucket. A non-positive rate
// disables limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithLogger sets the logger used for request diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logging.NewComponentLogger(logger, "provider")
	}
}

// New creates a provider client. Credentials are optional so tests and
// unauthenticated mirrors can be used.
func New(baseURL, tokenID, tokenSecret string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("provider base url required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("parse provider base url: %w", err)
	}
	client := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		tokenID:     strings.TrimSpace(tokenID),
		tokenSecret: strings.TrimSpace(tokenSecret),
		httpClient:  &http.Client{Timeout: defaultTimeout},
		logger:      logging.NewComponentLogger(nil, "provider"),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// FetchAsset looks up an asset by id.
func (c *Client) FetchAsset(ctx context.Context, id string) (*AssetSnapshot, error) {
	var snapshot AssetSnapshot
	if err := c.get(ctx, "asset", id, &snapshot); err != nil {
		return nil, err
	}
	if snapshot.ID == "" {
		snapshot.ID = strings.TrimSpace(id)
	}
	snapshot.Status = strings.ToLower(strings.TrimSpace(snapshot.Status))
	return &snapshot, nil
}

// FetchUpload looks up a direct upload by id.
func (c *Client) FetchUpload(ctx context.Context, id string) (*UploadSnapshot, error) {
	var snapshot UploadSnapshot
	if err := c.get(ctx, "upload", id, &snapshot); err != nil {
		return nil, err
	}
	if snapshot.ID == "" {
		snapshot.ID = strings.TrimSpace(id)
	}
	snapshot.Status = strings.ToLower(strings.TrimSpace(snapshot.Status))
	snapshot.AssetID = strings.TrimSpace(snapshot.AssetID)
	return &snapshot, nil
}

func (c *Client) get(ctx context.Context, endpoint, id string, dest any) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: empty %s id", ErrNotFound, endpoint)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			metrics.ObserveProviderRequest(endpoint, "unavailable", 0)
			return fmt.Errorf("%w: rate limiter: %w", ErrUnavailable, err)
		}
	}

	target := c.baseURL + "/" + endpoint + "/" + url.PathEscape(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("%w: build request: %w", ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.tokenID != "" || c.tokenSecret != "" {
		req.SetBasicAuth(c.tokenID, c.tokenSecret)
	}

	requestStart := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(requestStart)
	if err != nil {
		metrics.ObserveProviderRequest(endpoint, "unavailable", latency)
		return fmt.Errorf("%w: execute request (latency=%v): %w", ErrUnavailable, latency, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		metrics.ObserveProviderRequest(endpoint, "not_found", latency)
		return fmt.Errorf("%w: %s %s (latency=%v)", ErrNotFound, endpoint, id, latency)
	case resp.StatusCode != http.StatusOK:
		metrics.ObserveProviderRequest(endpoint, "unavailable", latency)
		c.logger.Debug("provider returned non-200",
			logging.String("endpoint", endpoint),
			logging.Int("status", resp.StatusCode),
			logging.Duration("latency", latency))
		return &StatusError{Endpoint: endpoint, Code: resp.StatusCode, Latency: latency}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		metrics.ObserveProviderRequest(endpoint, "unavailable", latency)
		return fmt.Errorf("%w: read %s response: %w", ErrUnavailable, endpoint, err)
	}
	if err := decodeEnvelope(body, dest); err != nil {
		metrics.ObserveProviderRequest(endpoint, "unavailable", latency)
		return fmt.Errorf("%w: decode %s response: %w", ErrUnavailable, endpoint, err)
	}
	metrics.ObserveProviderRequest(endpoint, "ok", latency)
	return nil
}

// decodeEnvelope accepts either a bare object or one wrapped as {"data": {...}}.
func decodeEnvelope(body []byte, dest any) error {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return err
	}
	if len(envelope.Data) > 0 && string(envelope.Data) != "null" {
		return json.Unmarshal(envelope.Data, dest)
	}
	return json.Unmarshal(body, dest)
}
