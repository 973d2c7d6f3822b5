package api

import (
	"context"
	"io"
	"net/http"

	"github.com/veildata/anonclient-go/engine"
)

// DatasetsService uploads source data for anonymization.
type DatasetsService struct {
	client *Client
}

// CreateFromCSV uploads a CSV stream as a new dataset. The upload is sent
// as multipart/form-data under the "file" field, and creation may go
// through the async polling protocol before the dataset resource comes back.
func (s *DatasetsService) CreateFromCSV(ctx context.Context, filename string, data io.Reader) (*Dataset, error) {
	payload, err := s.client.Engine.Request(ctx, http.MethodPost, "/datasets",
		engine.WithFileAttachments([]engine.FileAttachment{{
			FieldName:   "file",
			FileName:    filename,
			ContentType: "text/csv",
			Reader:      data,
		}}))
	if err != nil {
		return nil, err
	}
	var out Dataset
	if err := decodeInto(payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DownloadTo streams a dataset's raw data into dst.
func (s *DatasetsService) DownloadTo(ctx context.Context, id string, dst io.Writer) error {
	_, err := s.client.Engine.Request(ctx, http.MethodGet, "/datasets/"+id+"/data",
		engine.WithDestination(dst))
	return err
}

// Get fetches a dataset resource.
func (s *DatasetsService) Get(ctx context.Context, id string) (*Dataset, error) {
	resp, err := s.client.Engine.Send(ctx, http.MethodGet, "/datasets/"+id)
	if err != nil {
		return nil, err
	}
	var out Dataset
	if err := resp.DecodeJSON(&out); err != nil {
		return nil, err
	}
	return &out, nil
}
