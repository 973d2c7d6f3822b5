package engine

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// timeoutErr satisfies net.Error the way a dial or read deadline failure
// does.
type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return false }

// fastConfig shrinks every interval so retry and poll loops finish in
// milliseconds.
func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.Timeout = 2 * time.Second
	cfg.AttemptTimeout = 500 * time.Millisecond
	cfg.RetryCount = 3
	cfg.BackoffCap = time.Millisecond
	cfg.PollInterval = time.Millisecond
	cfg.PollInactivityTimeout = 50 * time.Millisecond
	return cfg
}

func newTestClient(t *testing.T, mock *MockTransport, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithTransport(mock), WithConfig(fastConfig())}, opts...)
	c, err := New("http://api.test", opts...)
	require.NoError(t, err)
	c.SetTokens(AuthTokens{Access: "tok-1", Refresh: "ref-1"})
	return c
}

func TestClient_Send(t *testing.T) {
	t.Run("given a successful response, then returns it with standard headers sent", func(t *testing.T) {
		mock := NewMockTransport().Respond(200, `{"ok":true}`, map[string]string{"Content-Type": "application/json"})
		c := newTestClient(t, mock)

		resp, err := c.Send(context.Background(), http.MethodGet, "/health/db")
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)

		req := mock.LastRequest()
		assert.Equal(t, "anonclient-go/"+Version, req.Header.Get("User-Agent"))
		assert.Equal(t, "yes", req.Header.Get("X-Accept-Created"))
		assert.Equal(t, "Bearer tok-1", req.Header.Get("Authorization"))
		assert.NotEmpty(t, req.Header.Get("X-Request-ID"))
	})

	t.Run("given no stored credentials, then fails before sending", func(t *testing.T) {
		mock := NewMockTransport().Respond(200, "", nil)
		c, err := New("http://api.test", WithTransport(mock), WithConfig(fastConfig()))
		require.NoError(t, err)

		_, err = c.Send(context.Background(), http.MethodGet, "/jobs")
		assert.ErrorIs(t, err, ErrNotAuthenticated)
		assert.Zero(t, mock.RequestCount())
	})

	t.Run("given no stored credentials, then Request still goes to the wire", func(t *testing.T) {
		mock := NewMockTransport().Respond(200, `{"status":"ok"}`,
			map[string]string{"Content-Type": "application/json"})
		c, err := New("http://api.test", WithTransport(mock), WithConfig(fastConfig()))
		require.NoError(t, err)

		payload, err := c.Request(context.Background(), http.MethodGet, "/health")
		require.NoError(t, err)
		assert.Equal(t, 1, mock.RequestCount())

		m, ok := payload.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "ok", m["status"])
	})

	t.Run("given no stored credentials and an auth-verify opt-in, then Request fails locally", func(t *testing.T) {
		mock := NewMockTransport().Respond(200, "", nil)
		c, err := New("http://api.test", WithTransport(mock), WithConfig(fastConfig()))
		require.NoError(t, err)

		_, err = c.Request(context.Background(), http.MethodGet, "/jobs", WithAuthVerify())
		assert.ErrorIs(t, err, ErrNotAuthenticated)
		assert.Zero(t, mock.RequestCount())
	})

	t.Run("given transport failures then success, then retries until it works", func(t *testing.T) {
		mock := NewMockTransport().
			EnqueueError(errors.New("connection reset by peer")).
			EnqueueError(timeoutErr{}).
			EnqueueResponse(200, `ok`, map[string]string{"Content-Type": "text/plain"})
		c := newTestClient(t, mock)

		resp, err := c.Send(context.Background(), http.MethodGet, "/jobs/j1")
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
		assert.Equal(t, 3, mock.RequestCount())
	})

	t.Run("given only timeout failures, then reports a typed timeout", func(t *testing.T) {
		mock := NewMockTransport().Fail(timeoutErr{})
		c := newTestClient(t, mock)

		_, err := c.Send(context.Background(), http.MethodGet, "/jobs/j1")

		var te *TimeoutError
		require.ErrorAs(t, err, &te)
		assert.Equal(t, http.MethodGet, te.Method)
		assert.Equal(t, "/jobs/j1", te.URL)
		assert.Equal(t, fastConfig().RetryCount, mock.RequestCount())
	})

	t.Run("given a persistent non-timeout failure, then the last error surfaces unchanged", func(t *testing.T) {
		cause := errors.New("tls: handshake failure")
		mock := NewMockTransport().Fail(cause)
		c := newTestClient(t, mock)

		_, err := c.Send(context.Background(), http.MethodGet, "/jobs")
		assert.ErrorIs(t, err, cause)
		assert.Equal(t, fastConfig().RetryCount, mock.RequestCount())
	})

	t.Run("given a canceled context, then gives up without retrying", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		mock := NewMockTransport().Fail(context.Canceled)
		c := newTestClient(t, mock)

		cancel()
		_, err := c.Send(ctx, http.MethodGet, "/jobs")
		assert.ErrorIs(t, err, context.Canceled)
		assert.LessOrEqual(t, mock.RequestCount(), 1)
	})

	t.Run("given an http error status, then never retries", func(t *testing.T) {
		mock := NewMockTransport().Respond(500, `{"message":"db down"}`,
			map[string]string{"Content-Type": "application/json"})
		c := newTestClient(t, mock)

		_, err := c.Send(context.Background(), http.MethodGet, "/jobs")

		var se *StatusError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, 500, se.StatusCode)
		assert.Equal(t, "db down", se.Message)
		assert.Equal(t, 1, mock.RequestCount())
	})

	t.Run("given a validation error body, then the field is named in the message", func(t *testing.T) {
		body := `{"detail":[{"msg":"value is not a valid integer","loc":["body","k"]}]}`
		mock := NewMockTransport().Respond(422, body,
			map[string]string{"Content-Type": "application/json"})
		c := newTestClient(t, mock)

		_, err := c.Send(context.Background(), http.MethodPost, "/jobs")

		var se *StatusError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, "value is not a valid integer: k", se.Message)
	})

	t.Run("given retries, then the request id stays stable across attempts", func(t *testing.T) {
		mock := NewMockTransport().
			EnqueueError(errors.New("broken pipe")).
			EnqueueResponse(200, "", nil)
		c := newTestClient(t, mock)

		_, err := c.Send(context.Background(), http.MethodPost, "/jobs",
			WithJSONBody(map[string]string{"dataset_id": "d1"}))
		require.NoError(t, err)

		reqs := mock.Requests()
		require.Len(t, reqs, 2)
		assert.Equal(t, reqs[0].Header.Get("X-Request-ID"), reqs[1].Header.Get("X-Request-ID"))
	})

	t.Run("given call options, then query and headers reach the wire", func(t *testing.T) {
		mock := NewMockTransport().Respond(200, "", nil)
		c := newTestClient(t, mock)

		_, err := c.Send(context.Background(), http.MethodGet, "/jobs",
			WithQueryParams(map[string]any{"kind": "anonymize", "page": nil}),
			WithCallHeader("X-Trace", "abc"))
		require.NoError(t, err)

		req := mock.LastRequest()
		assert.Equal(t, "kind=anonymize", req.URL.RawQuery)
		assert.Equal(t, "abc", req.Header.Get("X-Trace"))
	})
}
