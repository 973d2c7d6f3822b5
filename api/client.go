// Package api exposes the anonymization service's endpoints as typed
// wrappers over the request engine: authentication, health probes, dataset
// uploads, job creation with transparent polling, and result downloads.
package api

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/veildata/anonclient-go/engine"
)

// Client groups the endpoint services around one shared engine.
type Client struct {
	// Engine is the underlying request engine, exposed for callers that
	// need raw access next to the typed services.
	Engine *engine.Client

	Auth     *AuthService
	Health   *HealthService
	Jobs     *JobsService
	Datasets *DatasetsService
	Results  *ResultsService
}

// New builds a Client for the service at baseURL.
func New(baseURL string, opts ...engine.Option) (*Client, error) {
	eng, err := engine.New(baseURL, opts...)
	if err != nil {
		return nil, err
	}
	c := &Client{Engine: eng}
	c.Auth = &AuthService{client: c}
	c.Health = &HealthService{client: c}
	c.Jobs = &JobsService{client: c}
	c.Datasets = &DatasetsService{client: c}
	c.Results = &ResultsService{client: c}
	return c, nil
}

// Authenticate logs in, stores the issued tokens on the engine, and enables
// automatic refresh for the rest of the session.
func (c *Client) Authenticate(ctx context.Context, username, password string) error {
	resp, err := c.Auth.Login(ctx, LoginRequest{Username: username, Password: password})
	if err != nil {
		return err
	}
	c.Engine.SetTokens(engine.AuthTokens{
		Access:  resp.AccessToken,
		Refresh: resp.RefreshToken,
	})
	c.Engine.OnAuthRefresh(c.refreshAuth)
	return nil
}

// refreshAuth exchanges the stored refresh token for a fresh pair and
// returns the Authorization header the engine should use from now on.
func (c *Client) refreshAuth(ctx context.Context) (map[string]string, error) {
	tokens := c.Engine.Tokens()
	if tokens.Refresh == "" {
		return nil, fmt.Errorf("no refresh token stored: %w", engine.ErrNotAuthenticated)
	}
	resp, err := c.Auth.Refresh(ctx, tokens.Refresh)
	if err != nil {
		return nil, err
	}
	next := engine.AuthTokens{Access: resp.AccessToken, Refresh: resp.RefreshToken}
	if next.Refresh == "" {
		next.Refresh = tokens.Refresh
	}
	c.Engine.SetTokens(next)
	return map[string]string{"Authorization": "Bearer " + next.Access}, nil
}

// decodeInto converts a generically decoded payload into a typed model.
func decodeInto(payload any, out any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("re-encoding payload: %w", err)
	}
	return json.Unmarshal(raw, out)
}
