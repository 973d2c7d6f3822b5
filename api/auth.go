package api

import (
	"context"
	"net/http"

	"github.com/veildata/anonclient-go/engine"
)

// AuthService covers login, token refresh and password recovery.
type AuthService struct {
	client *Client
}

// Login exchanges credentials for a token pair. Sent as a URL-encoded form
// without auth verification, since no credentials exist yet.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	resp, err := s.client.Engine.Send(ctx, http.MethodPost, "/login",
		engine.WithFormBody(map[string]string{
			"username": req.Username,
			"password": req.Password,
		}),
		engine.WithoutAuthVerify(),
	)
	if err != nil {
		return nil, err
	}
	var out LoginResponse
	if err := resp.DecodeJSON(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Refresh trades a refresh token for a fresh token pair.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*LoginResponse, error) {
	resp, err := s.client.Engine.Send(ctx, http.MethodGet, "/refresh",
		engine.WithQueryParams(map[string]any{"token": refreshToken}),
		engine.WithoutAuthVerify(),
	)
	if err != nil {
		return nil, err
	}
	var out LoginResponse
	if err := resp.DecodeJSON(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ForgottenPassword starts the password reset flow.
func (s *AuthService) ForgottenPassword(ctx context.Context, req ForgottenPasswordRequest) error {
	_, err := s.client.Engine.Request(ctx, http.MethodPost, "/login/forgotten_password",
		engine.WithJSONBody(req),
	)
	return err
}

// ResetPassword completes the password reset flow.
func (s *AuthService) ResetPassword(ctx context.Context, req ResetPasswordRequest) error {
	_, err := s.client.Engine.Request(ctx, http.MethodPost, "/login/reset_password",
		engine.WithJSONBody(req),
	)
	return err
}
