package engine

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_AuthRefresh(t *testing.T) {
	expiredBody := `{"message":"credentials expired"}`
	jsonHeaders := map[string]string{"Content-Type": "application/json"}

	t.Run("given expired credentials, then refreshes once and replays the request", func(t *testing.T) {
		mock := NewMockTransport().
			EnqueueResponse(401, expiredBody, jsonHeaders).
			EnqueueResponse(200, `{"id":"j1"}`, jsonHeaders)

		var calls atomic.Int32
		c := newTestClient(t, mock, WithRefreshFunc(func(ctx context.Context) (map[string]string, error) {
			calls.Add(1)
			return map[string]string{"Authorization": "Bearer tok-2"}, nil
		}))

		resp, err := c.Send(context.Background(), http.MethodGet, "/jobs/j1")
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
		assert.Equal(t, int32(1), calls.Load())

		reqs := mock.Requests()
		require.Len(t, reqs, 2)
		assert.Equal(t, "Bearer tok-1", reqs[0].Header.Get("Authorization"))
		assert.Equal(t, "Bearer tok-2", reqs[1].Header.Get("Authorization"))
	})

	t.Run("given expiry persists after a refresh, then fails instead of looping", func(t *testing.T) {
		mock := NewMockTransport().Respond(401, expiredBody, jsonHeaders)

		var calls atomic.Int32
		c := newTestClient(t, mock, WithRefreshFunc(func(ctx context.Context) (map[string]string, error) {
			calls.Add(1)
			return map[string]string{"Authorization": "Bearer tok-2"}, nil
		}))

		_, err := c.Send(context.Background(), http.MethodGet, "/jobs/j1")

		var se *StatusError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, 401, se.StatusCode)
		assert.Equal(t, int32(1), calls.Load())
		assert.Equal(t, 2, mock.RequestCount())
	})

	t.Run("given a failing refresh hook, then the original 401 surfaces", func(t *testing.T) {
		mock := NewMockTransport().Respond(401, expiredBody, jsonHeaders)
		c := newTestClient(t, mock, WithRefreshFunc(func(ctx context.Context) (map[string]string, error) {
			return nil, errors.New("refresh endpoint down")
		}))

		_, err := c.Send(context.Background(), http.MethodGet, "/jobs/j1")

		var se *StatusError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, 401, se.StatusCode)
		assert.Equal(t, 1, mock.RequestCount())
	})

	t.Run("given no refresh hook, then a 401 fails immediately", func(t *testing.T) {
		mock := NewMockTransport().Respond(401, expiredBody, jsonHeaders)
		c := newTestClient(t, mock)

		_, err := c.Send(context.Background(), http.MethodGet, "/jobs/j1")

		var se *StatusError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, 1, mock.RequestCount())
	})

	t.Run("given a 401 without the expiry marker, then no refresh is attempted", func(t *testing.T) {
		mock := NewMockTransport().Respond(401, `{"message":"bad token"}`, jsonHeaders)

		var calls atomic.Int32
		c := newTestClient(t, mock, WithRefreshFunc(func(ctx context.Context) (map[string]string, error) {
			calls.Add(1)
			return map[string]string{"Authorization": "Bearer tok-2"}, nil
		}))

		_, err := c.Send(context.Background(), http.MethodGet, "/jobs/j1")
		require.Error(t, err)
		assert.Zero(t, calls.Load())
	})

	t.Run("given a 401 naming an unauthenticated caller, then the sentinel error surfaces", func(t *testing.T) {
		mock := NewMockTransport().Respond(401, `{"detail":"Not authenticated"}`, jsonHeaders)
		c := newTestClient(t, mock)

		_, err := c.Send(context.Background(), http.MethodGet, "/jobs/j1")
		assert.ErrorIs(t, err, ErrNotAuthenticated)
	})
}

func TestCredentialStore(t *testing.T) {
	t.Run("given a token replacement, then the whole set is swapped", func(t *testing.T) {
		store := &credentialStore{}
		store.SetTokens(AuthTokens{Access: "a1", Refresh: "r1"})
		store.SetTokens(AuthTokens{Access: "a2", Refresh: "r2"})

		h := http.Header{}
		store.Apply(h)
		assert.Equal(t, "Bearer a2", h.Get("Authorization"))
		assert.Equal(t, AuthTokens{Access: "a2", Refresh: "r2"}, store.Tokens())
	})

	t.Run("given merged headers, then they layer over the stored set", func(t *testing.T) {
		store := &credentialStore{}
		store.SetTokens(AuthTokens{Access: "a1"})
		store.Merge(map[string]string{"Authorization": "Bearer a2"})

		h := http.Header{}
		store.Apply(h)
		assert.Equal(t, "Bearer a2", h.Get("Authorization"))
	})

	t.Run("given an empty store, then it reports unauthenticated", func(t *testing.T) {
		store := &credentialStore{}
		assert.False(t, store.Authenticated())

		store.SetTokens(AuthTokens{Access: "a"})
		assert.True(t, store.Authenticated())
	})
}
