package api

import (
	"context"
	"net/http"
)

// HealthService exposes the service's liveness probes. None of its calls
// require authentication.
type HealthService struct {
	client *Client
}

// Root probes the API root.
func (s *HealthService) Root(ctx context.Context) (any, error) {
	return s.client.Engine.Request(ctx, http.MethodGet, "/")
}

// Check probes the service's health endpoint.
func (s *HealthService) Check(ctx context.Context) (any, error) {
	return s.client.Engine.Request(ctx, http.MethodGet, "/health")
}

// CheckDB probes the database behind the service.
func (s *HealthService) CheckDB(ctx context.Context) (any, error) {
	return s.client.Engine.Request(ctx, http.MethodGet, "/health/db")
}
