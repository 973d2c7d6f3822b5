package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// expiredCredentialsMarker is the body fragment the server sends with a 401
// when the access token has expired and a refresh would help.
const expiredCredentialsMarker = "credentials expired"

// Client is the request engine. It owns the HTTP transport chain, the
// retry and backoff policy, the shared credential store, and the async-job
// polling loop. A Client is safe for concurrent use.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	cfg     Config

	logger    zerolog.Logger
	userAgent string
	headers   map[string]string

	creds     *credentialStore
	refresher *refresher

	metrics *Metrics
}

// New builds a Client for the given base URL.
func New(baseURL string, opts ...Option) (*Client, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL %q: %w", baseURL, err)
	}

	cfg := newInternalConfig(opts...)
	transport := chainTransports(cfg.buildTransport(), cfg)

	c := &Client{
		baseURL:   base,
		http:      &http.Client{Transport: transport},
		cfg:       cfg.config,
		logger:    cfg.logger,
		userAgent: cfg.userAgent,
		headers:   cfg.headers,
		creds:     &credentialStore{},
		metrics:   cfg.metrics,
	}
	if cfg.refresh != nil {
		c.refresher = &refresher{fn: cfg.refresh}
	}
	return c, nil
}

// SetTokens installs a credential pair, replacing any previous one.
func (c *Client) SetTokens(t AuthTokens) {
	c.creds.SetTokens(t)
}

// Tokens returns the stored credential pair.
func (c *Client) Tokens() AuthTokens {
	return c.creds.Tokens()
}

// OnAuthRefresh installs the hook invoked when the server reports expired
// credentials. The returned headers replace the stored auth headers.
func (c *Client) OnAuthRefresh(fn RefreshFunc) {
	c.refresher = &refresher{fn: fn}
}

// Config returns the client's effective configuration.
func (c *Client) Config() Config {
	return c.cfg
}

// Send performs one logical call: build, send with retries, and replay once
// after a credential refresh if the server reports expiry. It does not
// follow the async-job protocol; see Request and Create for that.
func (c *Client) Send(ctx context.Context, method, path string, opts ...CallOption) (*Response, error) {
	d := &Descriptor{Method: method, URL: path, VerifyAuth: true}
	for _, opt := range opts {
		opt(d)
	}
	return c.Do(ctx, d)
}

// Do executes the descriptor. On HTTP error statuses it drains the body,
// extracts the server's message and returns a StatusError; transport errors
// are retried up to the configured budget.
func (c *Client) Do(ctx context.Context, d *Descriptor) (*Response, error) {
	if d.VerifyAuth && !c.creds.Authenticated() {
		return nil, ErrNotAuthenticated
	}

	timeout := d.Timeout
	if timeout == 0 {
		timeout = c.cfg.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)

	resp, err := c.do(ctx, d)
	if err != nil {
		cancel()
		return nil, err
	}
	// The logical deadline stays armed until the caller finishes with the
	// body, so streaming reads are bounded by the same budget.
	prev := resp.cancel
	resp.cancel = func() {
		if prev != nil {
			prev()
		}
		cancel()
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, d *Descriptor) (*Response, error) {
	requestID := uuid.NewString()
	start := time.Now()

	refreshed := false
	for {
		resp, err := c.sendWithRetry(ctx, d, requestID)
		if err != nil {
			return nil, err
		}
		c.metrics.observeRequest(d.Method, resp.StatusCode, time.Since(start))

		if !resp.IsError() {
			return resp, nil
		}

		statusErr := c.statusError(d, resp)

		if resp.StatusCode == http.StatusUnauthorized && !refreshed && c.refresher != nil {
			if body, _ := resp.Bytes(); strings.Contains(string(body), expiredCredentialsMarker) {
				c.logger.Info().Str("url", d.URL).Msg("refreshing expired credentials")
				if rerr := c.refresher.refresh(ctx, c.creds); rerr != nil {
					c.logger.Warn().Err(rerr).Msg("credential refresh failed")
					return nil, statusErr
				}
				c.metrics.incRefreshes()
				refreshed = true
				continue
			}
		}
		return nil, statusErr
	}
}

// sendWithRetry runs the attempt loop for one build of the descriptor.
// Every attempt materializes a fresh http.Request; attempts that fail at
// the transport level back off exponentially until the budget runs out.
func (c *Client) sendWithRetry(ctx context.Context, d *Descriptor, requestID string) (*Response, error) {
	deadline, _ := ctx.Deadline()
	bo := newBackoffState(c.cfg.BackoffCap, deadline)

	attempts := c.cfg.RetryCount
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		resp, err := c.attempt(ctx, d, requestID)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, &TimeoutError{Method: d.Method, URL: d.URL}
			}
			return nil, err
		}
		if !isRetryableTransportError(err) {
			return nil, err
		}

		lastErr = err
		c.metrics.incRetries()

		wait, ok := bo.Next()
		if !ok || attempt == attempts {
			break
		}
		c.logger.Warn().
			Err(err).
			Str("method", d.Method).
			Str("url", d.URL).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Msg("request failed, retrying")

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, &TimeoutError{Method: d.Method, URL: d.URL}
			}
			return nil, ctx.Err()
		}
	}

	if isTimeoutClass(lastErr) {
		return nil, &TimeoutError{Method: d.Method, URL: d.URL}
	}
	return nil, lastErr
}

// attempt sends one HTTP request. Non-streaming attempts run under the
// per-attempt timeout; the returned response carries the cancel func and
// releases it when the body is consumed.
func (c *Client) attempt(ctx context.Context, d *Descriptor, requestID string) (*Response, error) {
	attemptCtx := ctx
	cancel := context.CancelFunc(func() {})
	if !d.Stream && c.cfg.AttemptTimeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, c.cfg.AttemptTimeout)
	}

	req, fullURL, err := c.buildRequest(attemptCtx, d, requestID)
	if err != nil {
		cancel()
		return nil, err
	}

	c.logger.Debug().
		Str("method", d.Method).
		Str("url", fullURL).
		Str("request_id", requestID).
		Msg("sending request")

	httpResp, err := c.http.Do(req)
	if err != nil {
		cancel()
		return nil, err
	}
	return newResponse(d.Method, fullURL, httpResp, cancel), nil
}

// buildRequest materializes the descriptor into an http.Request bound to
// ctx. Called once per attempt so body readers and contexts are fresh.
func (c *Client) buildRequest(ctx context.Context, d *Descriptor, requestID string) (*http.Request, string, error) {
	ref, err := url.Parse(d.URL)
	if err != nil {
		return nil, "", fmt.Errorf("parsing request URL %q: %w", d.URL, err)
	}
	u := c.baseURL.ResolveReference(ref)
	if q := d.encodeQuery(); q != "" {
		u.RawQuery = q
	}
	fullURL := u.String()

	body, mime, err := d.body()
	if err != nil {
		return nil, "", err
	}

	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, d.Method, fullURL, reader)
	if err != nil {
		return nil, "", err
	}

	req.Header.Set("User-Agent", c.userAgent)
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	c.creds.Apply(req.Header)
	for k, v := range d.Headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("X-Request-ID", requestID)
	if mime != "" {
		req.Header.Set("Content-Type", mime)
	}
	return req, fullURL, nil
}

// statusError drains the error body and converts it into a typed error,
// preferring the server's structured message when one is present.
func (c *Client) statusError(d *Descriptor, resp *Response) error {
	raw, _ := resp.Bytes()
	decoded, _ := resp.Decoded()

	if resp.StatusCode == http.StatusUnauthorized {
		if m, ok := decoded.(map[string]any); ok {
			if detail, ok := m["detail"].(string); ok && strings.Contains(detail, "authenticated") {
				return ErrNotAuthenticated
			}
		}
	}

	return &StatusError{
		Method:     d.Method,
		URL:        d.URL,
		StatusCode: resp.StatusCode,
		Message:    extractMessage(decoded, raw),
	}
}
