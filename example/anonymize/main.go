// Command anonymize uploads a CSV dataset, runs an anonymization job on it
// and prints the result, exercising the full client stack: login, upload,
// job polling and download.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/veildata/anonclient-go/api"
	"github.com/veildata/anonclient-go/engine"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	baseURL := envOr("ANON_API_URL", "http://localhost:8000")
	username := envOr("ANON_USERNAME", "demo")
	password := envOr("ANON_PASSWORD", "demo")

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		With().Timestamp().Logger()

	client, err := api.New(baseURL,
		engine.WithLogger(logger),
		engine.WithTimeout(10*time.Minute),
	)
	if err != nil {
		return err
	}

	ctx := context.Background()

	if _, err := client.Health.Check(ctx); err != nil {
		return fmt.Errorf("service not reachable: %w", err)
	}
	if err := client.Authenticate(ctx, username, password); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	file, err := os.Open("people.csv")
	if err != nil {
		return err
	}
	defer file.Close()

	dataset, err := client.Datasets.CreateFromCSV(ctx, "people.csv", file)
	if err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}
	logger.Info().Str("dataset_id", dataset.ID).Msg("dataset uploaded")

	job, err := client.Jobs.Create(ctx, api.JobCreateRequest{
		DatasetID: dataset.ID,
		Kind:      "anonymize",
		Parameters: map[string]any{
			"k": 5,
		},
	})
	if err != nil {
		return fmt.Errorf("job failed: %w", err)
	}
	if job.Status != api.JobSuccess {
		return fmt.Errorf("job finished with status %s: %s", job.Status, job.ErrorMessage)
	}
	logger.Info().Str("job_id", job.ID).Msg("job complete")

	result, err := client.Results.Get(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("fetching result: %w", err)
	}
	fmt.Println(result)
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
