package api

import (
	"context"
	"io"
	"net/http"

	"github.com/veildata/anonclient-go/engine"
)

// ResultsService retrieves the output of finished jobs.
type ResultsService struct {
	client *Client
}

// Get returns a job's result payload, decoded generically. Results that
// are still being assembled are polled until ready.
func (s *ResultsService) Get(ctx context.Context, jobName string) (any, error) {
	return s.client.Engine.Request(ctx, http.MethodGet, "/results/"+jobName)
}

// GetPermission asks for a signed grant to download the file at url.
func (s *ResultsService) GetPermission(ctx context.Context, url string) (*FileAccess, error) {
	resp, err := s.client.Engine.Send(ctx, http.MethodGet, "/access",
		engine.WithQueryParams(map[string]any{"url": url}))
	if err != nil {
		return nil, err
	}
	var out FileAccess
	if err := resp.DecodeJSON(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DownloadTo streams the file covered by access into dst.
func (s *ResultsService) DownloadTo(ctx context.Context, access FileAccess, dst io.Writer) error {
	_, err := s.client.Engine.Request(ctx, http.MethodPost, "/download",
		engine.WithJSONBody(access),
		engine.WithDestination(dst))
	return err
}

// DownloadToFile streams the file covered by access to the given path.
func (s *ResultsService) DownloadToFile(ctx context.Context, access FileAccess, path string) error {
	_, err := s.client.Engine.Request(ctx, http.MethodPost, "/download",
		engine.WithJSONBody(access),
		engine.WithDestination(path))
	return err
}

// Download returns the file covered by access buffered in memory: a string
// for textual content, raw bytes otherwise.
func (s *ResultsService) Download(ctx context.Context, access FileAccess) (any, error) {
	return s.client.Engine.Request(ctx, http.MethodPost, "/download",
		engine.WithJSONBody(access),
		engine.WithStream(),
		engine.WithContent())
}
