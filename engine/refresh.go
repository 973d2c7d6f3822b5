package engine

import (
	"context"
	"net/http"
	"sync"

	"golang.org/x/sync/singleflight"
)

// RefreshFunc exchanges expired credentials for fresh ones. It returns the
// headers that should carry the new credentials on subsequent requests,
// typically an Authorization entry.
type RefreshFunc func(ctx context.Context) (map[string]string, error)

// AuthTokens is the credential pair issued by the authentication endpoints.
type AuthTokens struct {
	Access  string
	Refresh string
}

// credentialStore holds the auth material shared by all in-flight calls.
// Writes replace the credentials wholesale; readers snapshot under the
// same lock, so a request observes either the old or the new set, never
// a mix.
type credentialStore struct {
	mu      sync.RWMutex
	tokens  AuthTokens
	headers map[string]string
}

// SetTokens installs a new credential pair and the Authorization header
// derived from it, replacing whatever was stored before.
func (s *credentialStore) SetTokens(t AuthTokens) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = t
	if s.headers == nil {
		s.headers = make(map[string]string)
	}
	s.headers["Authorization"] = "Bearer " + t.Access
}

// Merge layers header entries over the stored set.
func (s *credentialStore) Merge(headers map[string]string) {
	if len(headers) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.headers == nil {
		s.headers = make(map[string]string, len(headers))
	}
	for k, v := range headers {
		s.headers[k] = v
	}
}

// Tokens returns the stored credential pair.
func (s *credentialStore) Tokens() AuthTokens {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens
}

// Authenticated reports whether any credentials are stored.
func (s *credentialStore) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens.Access != "" || len(s.headers) > 0
}

// Apply stamps the stored credential headers onto a request.
func (s *credentialStore) Apply(h http.Header) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for k, v := range s.headers {
		h.Set(k, v)
	}
}

// refresher coalesces concurrent credential refreshes so a burst of 401s
// triggers a single round-trip to the auth endpoint.
type refresher struct {
	fn    RefreshFunc
	group singleflight.Group
}

// refresh runs the refresh function, deduplicating concurrent callers, and
// merges the returned headers into the store.
func (r *refresher) refresh(ctx context.Context, store *credentialStore) error {
	if r == nil || r.fn == nil {
		return ErrNotAuthenticated
	}
	v, err, _ := r.group.Do("refresh", func() (any, error) {
		return r.fn(ctx)
	})
	if err != nil {
		return err
	}
	if headers, ok := v.(map[string]string); ok {
		store.Merge(headers)
	}
	return nil
}
