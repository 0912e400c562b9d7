package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/harborline/storefront/pkg/config"
	pkgerrors "github.com/harborline/storefront/pkg/errors"
	"github.com/harborline/storefront/pkg/logger"
	"github.com/harborline/storefront/pkg/metrics"
)

const errorBodyReadLimit int64 = 4096

// TokenSource supplies the session bearer token. The bool result reports
// whether the token is usable; authenticated calls abort before any network
// I/O when it is not.
type TokenSource interface {
	Token() (string, bool)
}

// Client is the authenticated JSON client for the remote commerce API. It
// normalizes error shapes, instruments every call, and retries idempotent
// GETs with bounded backoff. Mutating verbs are never retried.
type Client struct {
	httpClient *http.Client
	baseURL    string
	tokens     TokenSource
	logger     *logger.Logger
	metrics    *metrics.RequestMetrics
	maxRetries uint64
	retryBase  time.Duration
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithMetrics attaches request instrumentation.
func WithMetrics(m *metrics.RequestMetrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithRetry overrides the GET retry policy. Zero retries disables it.
func WithRetry(maxRetries int, base time.Duration) Option {
	return func(c *Client) {
		if maxRetries >= 0 {
			c.maxRetries = uint64(maxRetries)
		}
		if base > 0 {
			c.retryBase = base
		}
	}
}

// NewClient builds the commerce API client from configuration.
func NewClient(cfg config.APIConfig, tokens TokenSource, logg *logger.Logger, opts ...Option) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		return nil, fmt.Errorf("api base url is required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("token source is required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		tokens:     tokens,
		logger:     logg,
		retryBase:  cfg.RetryBase,
	}
	if cfg.MaxRetries > 0 {
		client.maxRetries = uint64(cfg.MaxRetries)
	}
	if client.retryBase <= 0 {
		client.retryBase = 200 * time.Millisecond
	}

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	return client, nil
}

// RequestOption mutates a single outgoing request.
type RequestOption func(*http.Request)

// WithIdempotencyKey attaches a dedupe token to a non-idempotent call, so the
// backend can drop an accidental resubmission of the same order.
func WithIdempotencyKey(key string) RequestOption {
	return func(req *http.Request) {
		if strings.TrimSpace(key) != "" {
			req.Header.Set("Idempotency-Key", key)
		}
	}
}

// Get issues an unauthenticated GET, with bounded retry.
func (c *Client) Get(ctx context.Context, op, path string, out any) error {
	return c.doWithRetry(ctx, op, path, out, false)
}

// AuthGet issues an authenticated GET, with bounded retry.
func (c *Client) AuthGet(ctx context.Context, op, path string, out any) error {
	return c.doWithRetry(ctx, op, path, out, true)
}

// Post issues an unauthenticated POST, for login and other pre-session
// calls. Never retried.
func (c *Client) Post(ctx context.Context, op, path string, body, out any, opts ...RequestOption) error {
	return c.do(ctx, op, http.MethodPost, path, body, out, false, opts...)
}

// AuthPost issues an authenticated POST. Never retried.
func (c *Client) AuthPost(ctx context.Context, op, path string, body, out any, opts ...RequestOption) error {
	return c.do(ctx, op, http.MethodPost, path, body, out, true, opts...)
}

// AuthPut issues an authenticated PUT. Never retried.
func (c *Client) AuthPut(ctx context.Context, op, path string, body, out any, opts ...RequestOption) error {
	return c.do(ctx, op, http.MethodPut, path, body, out, true, opts...)
}

// AuthDelete issues an authenticated DELETE. Never retried.
func (c *Client) AuthDelete(ctx context.Context, op, path string, out any, opts ...RequestOption) error {
	return c.do(ctx, op, http.MethodDelete, path, nil, out, true, opts...)
}

func (c *Client) doWithRetry(ctx context.Context, op, path string, out any, authed bool) error {
	if c.maxRetries == 0 {
		return c.do(ctx, op, http.MethodGet, path, nil, out, authed)
	}

	backoff := retry.WithMaxRetries(c.maxRetries, retry.NewExponential(c.retryBase))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := c.do(ctx, op, http.MethodGet, path, nil, out, authed)
		if err == nil {
			return nil
		}
		if typed := pkgerrors.As(err); typed != nil && pkgerrors.MetadataFor(typed.Code()).Retryable {
			return retry.RetryableError(err)
		}
		return err
	})
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any, authed bool, opts ...RequestOption) error {
	var token string
	if authed {
		var ok bool
		token, ok = c.tokens.Token()
		if !ok {
			return pkgerrors.New(pkgerrors.CodeAuthRequired, "sign in required")
		}
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "encode request body")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.buildURL(path), reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for _, opt := range opts {
		if opt != nil {
			opt(req)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.ObserveDuration(op, time.Since(start))
	if err != nil {
		c.metrics.IncFailure(op)
		c.logger.Error(c.logger.WithOperation(ctx, op), "backend request failed", err)
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.metrics.IncFailure(op)
		remoteErr := c.normalizeError(resp)
		c.logger.Error(c.logger.WithOperation(ctx, op), "backend returned error", remoteErr)
		return remoteErr
	}

	c.metrics.IncSuccess(op)

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeRemote, err, "decode response")
	}
	return nil
}

// normalizeError turns a non-2xx response into a single domain error whose
// message comes from the body's detail/message field when present.
func (c *Client) normalizeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))

	var payload struct {
		Detail  string `json:"detail"`
		Message string `json:"message"`
	}
	message := ""
	if err := json.Unmarshal(raw, &payload); err == nil {
		if strings.TrimSpace(payload.Detail) != "" {
			message = payload.Detail
		} else if strings.TrimSpace(payload.Message) != "" {
			message = payload.Message
		}
	}
	if message == "" {
		message = fmt.Sprintf("request failed (%d)", resp.StatusCode)
	}

	return pkgerrors.New(pkgerrors.CodeForStatus(resp.StatusCode), message)
}

func (c *Client) buildURL(path string) string {
	return c.baseURL + "/" + strings.TrimLeft(path, "/")
}
