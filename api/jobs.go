package api

import (
	"context"
	"net/http"

	"github.com/veildata/anonclient-go/engine"
)

// JobsService creates anonymization jobs and tracks their progress.
type JobsService struct {
	client *Client
}

// Create submits a job and waits for it to settle, following the server's
// created-resource polling protocol. The returned job is terminal: its
// status is success or failure, never pending or started.
func (s *JobsService) Create(ctx context.Context, req JobCreateRequest) (*JobResponse, error) {
	payload, err := s.client.Engine.Request(ctx, http.MethodPost, "/jobs",
		engine.WithJSONBody(req))
	if err != nil {
		return nil, err
	}
	var out JobResponse
	if err := decodeInto(payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Get fetches a job's current state without polling.
func (s *JobsService) Get(ctx context.Context, name string) (*JobResponse, error) {
	resp, err := s.client.Engine.Send(ctx, http.MethodGet, "/jobs/"+name)
	if err != nil {
		return nil, err
	}
	var out JobResponse
	if err := resp.DecodeJSON(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// List returns the caller's jobs, optionally filtered by kind. An empty
// kind lists everything.
func (s *JobsService) List(ctx context.Context, kind string) (*JobList, error) {
	var kindParam any
	if kind != "" {
		kindParam = kind
	}
	resp, err := s.client.Engine.Send(ctx, http.MethodGet, "/jobs",
		engine.WithQueryParams(map[string]any{"kind": kindParam}))
	if err != nil {
		return nil, err
	}
	var out JobList
	if err := resp.DecodeJSON(&out); err != nil {
		return nil, err
	}
	return &out, nil
}
