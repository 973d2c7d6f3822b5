package engine

import (
	"context"
	"errors"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
)

// inProgressStatuses are the job states that mean the server is still
// working and polling should continue.
var inProgressStatuses = map[string]struct{}{
	"pending": {},
	"started": {},
}

// OperationInfo is the rolling view of an asynchronous operation as polling
// observes it.
type OperationInfo struct {
	// InProgress reports whether another poll is needed.
	InProgress bool
	// Status is the last job status string seen, empty when the payload
	// carries none.
	Status string
	// LastUpdatedAt is the server's progress timestamp when the payload
	// carries one.
	LastUpdatedAt string
	// Response is the latest poll response.
	Response *Response
}

// updateFromResponse folds one poll response into the operation view.
// A 202 means poll again regardless of payload. Otherwise the payload's
// status field decides, and an absent status means the operation is done.
func (info *OperationInfo) updateFromResponse(resp *Response) {
	info.Response = resp

	// Drain up front: every poll response, 202s included, must release
	// its connection and its deadline before the next sleep.
	body, err := resp.Bytes()

	if resp.StatusCode == http.StatusAccepted {
		info.InProgress = true
		return
	}

	var probe struct {
		Status        string `json:"status"`
		LastUpdatedAt string `json:"last_updated_at"`
	}
	if err == nil && resp.Kind() == ContentJSON {
		_ = json.Unmarshal(body, &probe)
	}
	info.Status = probe.Status
	if probe.LastUpdatedAt != "" {
		info.LastUpdatedAt = probe.LastUpdatedAt
	}
	_, info.InProgress = inProgressStatuses[probe.Status]
}

// pollUntilDone repeatedly executes the descriptor until the operation
// leaves the in-progress states. The inactivity clock restarts whenever the
// status string changes or the server's update timestamp advances; if it
// runs out the poll gives up with a PollTimeoutError.
func (c *Client) pollUntilDone(ctx context.Context, d *Descriptor, label string) (*Response, error) {
	info := &OperationInfo{}

	lastProgress := time.Now()
	lastStatus := ""
	lastUpdated := ""
	loops := 1

	for {
		resp, err := c.Do(ctx, d)
		if err != nil {
			return nil, err
		}
		c.metrics.incPolls()
		info.updateFromResponse(resp)

		if !info.InProgress {
			return resp, nil
		}

		if info.Status != lastStatus || info.LastUpdatedAt != lastUpdated {
			lastStatus = info.Status
			lastUpdated = info.LastUpdatedAt
			lastProgress = time.Now()
		} else if idle := time.Since(lastProgress); idle > c.cfg.PollInactivityTimeout {
			return nil, &PollTimeoutError{Label: label, Elapsed: idle}
		}

		c.logger.Info().
			Str("waiting_for", label).
			Str("status", info.Status).
			Int("loop", loops).
			Dur("sleep", c.cfg.PollInterval).
			Msg("operation still in progress")

		select {
		case <-time.After(c.cfg.PollInterval):
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, &TimeoutError{Method: d.Method, URL: d.URL}
			}
			return nil, ctx.Err()
		}
		loops++
	}
}
