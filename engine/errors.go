package engine

import (
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
)

// ErrNotAuthenticated is returned by Send when a call requires
// authentication and no credentials have been set on the client.
var ErrNotAuthenticated = errors.New("not authenticated")

// TimeoutError is raised when every retry attempt of a physical send failed
// with a timeout-class transport error. It identifies the request that could
// not be completed.
type TimeoutError struct {
	Method string
	URL    string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout waiting for %s on %s", e.Method, e.URL)
}

// StatusError is raised for any HTTP error status. HTTP-level errors are
// never retried; the body is decoded and the best-effort message is carried
// alongside the method, URL and status code.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request %s %s failed: status %d - %s",
		e.Method, e.URL, e.StatusCode, e.Message)
}

// PollTimeoutError is raised when a polling loop observed no status change
// for longer than the configured inactivity budget. It is distinct from
// TimeoutError: the server kept answering, but the operation stopped moving.
type PollTimeoutError struct {
	Label   string
	Elapsed time.Duration
}

func (e *PollTimeoutError) Error() string {
	return fmt.Sprintf("gave up waiting %s: no progress after %s", e.Label, e.Elapsed)
}

// UnexpectedStatusError is a contract violation: the server answered with a
// status the protocol does not allow at this point (for example a creation
// endpoint that did not answer 201 Created).
type UnexpectedStatusError struct {
	Method string
	URL    string
	Want   int
	Got    int
}

func (e *UnexpectedStatusError) Error() string {
	return fmt.Sprintf("expected status %d for %s on %s, got %d instead",
		e.Want, e.Method, e.URL, e.Got)
}

// ErrMissingLocation is raised when a 201 Created response does not carry
// the Location header naming the resource to poll.
var ErrMissingLocation = errors.New("created response carries no Location header")

// nestedValue searches a decoded JSON value depth-first for key. Mappings
// are checked for the key itself before descending into their values; for
// sequences only the first element is considered, mirroring the server's
// error envelope conventions.
func nestedValue(v any, key string) (any, bool) {
	switch t := v.(type) {
	case map[string]any:
		if val, ok := t[key]; ok {
			return val, true
		}
		for _, val := range t {
			if found, ok := nestedValue(val, key); ok {
				return found, true
			}
		}
	case []any:
		if len(t) > 0 {
			return nestedValue(t[0], key)
		}
	}
	return nil, false
}

// extractMessage renders the human message of an error body. Shapes are
// tried in priority order:
//
//  1. {"message": str}                       -> the message
//  2. {"msg": str, "loc": [...]}             -> "{msg}: {loc[-1]}"
//  3. anything else                          -> "Internal error: " + raw payload
//
// Non-mapping bodies (text, bytes) are returned as-is.
func extractMessage(decoded any, raw []byte) string {
	switch t := decoded.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	}

	if msg, ok := nestedValue(decoded, "message"); ok {
		if s, ok := msg.(string); ok {
			return s
		}
	}

	if msg, ok := nestedValue(decoded, "msg"); ok {
		if s, ok := msg.(string); ok {
			if loc, ok := nestedValue(decoded, "loc"); ok {
				if fields, ok := loc.([]any); ok && len(fields) > 0 {
					return fmt.Sprintf("%s: %v", s, fields[len(fields)-1])
				}
			}
			return "Bad Request: " + s
		}
	}

	payload := string(raw)
	if payload == "" && decoded != nil {
		if b, err := json.Marshal(decoded); err == nil {
			payload = string(b)
		}
	}
	return "Internal error: " + payload
}
