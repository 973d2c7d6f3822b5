package engine

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"sync"
)

// MockTransport is a scriptable http.RoundTripper for tests. Outcomes are
// either queued in order, one per attempt, or matched by predicate. It
// records every request it sees so tests can assert on headers and bodies.
type MockTransport struct {
	mu       sync.Mutex
	queue    []mockOutcome
	rules    []mockRule
	fallback *mockOutcome
	requests []*http.Request
}

type mockOutcome struct {
	status  int
	headers http.Header
	body    string
	err     error
}

type mockRule struct {
	match   func(*http.Request) bool
	outcome mockOutcome
}

// NewMockTransport returns an empty MockTransport.
func NewMockTransport() *MockTransport {
	return &MockTransport{}
}

// EnqueueResponse appends a response to the ordered outcome queue. Queued
// outcomes are consumed once each, in order, before any rule is consulted.
func (m *MockTransport) EnqueueResponse(status int, body string, headers map[string]string) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, mockOutcome{status: status, body: body, headers: toHeader(headers)})
	return m
}

// EnqueueError appends a transport error to the ordered outcome queue.
func (m *MockTransport) EnqueueError(err error) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, mockOutcome{err: err})
	return m
}

// RespondWhen registers a predicate-matched response. Rules are checked in
// registration order after the queue is drained.
func (m *MockTransport) RespondWhen(match func(*http.Request) bool, status int, body string, headers map[string]string) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockRule{
		match:   match,
		outcome: mockOutcome{status: status, body: body, headers: toHeader(headers)},
	})
	return m
}

// RespondTo registers a path-matched response.
func (m *MockTransport) RespondTo(path string, status int, body string, headers map[string]string) *MockTransport {
	return m.RespondWhen(func(req *http.Request) bool {
		return req.URL.Path == path
	}, status, body, headers)
}

// Respond sets the fallback response for requests nothing else matched.
func (m *MockTransport) Respond(status int, body string, headers map[string]string) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = &mockOutcome{status: status, body: body, headers: toHeader(headers)}
	return m
}

// Fail sets a fallback transport error.
func (m *MockTransport) Fail(err error) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = &mockOutcome{err: err}
	return m
}

// RoundTrip implements http.RoundTripper.
func (m *MockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)

	if len(m.queue) > 0 {
		out := m.queue[0]
		m.queue = m.queue[1:]
		return out.build(req)
	}
	for _, rule := range m.rules {
		if rule.match(req) {
			return rule.outcome.build(req)
		}
	}
	if m.fallback != nil {
		return m.fallback.build(req)
	}
	return nil, errors.New("no mock outcome for " + req.Method + " " + req.URL.String())
}

// Requests returns a copy of the recorded requests.
func (m *MockTransport) Requests() []*http.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*http.Request(nil), m.requests...)
}

// RequestCount returns how many requests the transport has seen.
func (m *MockTransport) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// LastRequest returns the most recent request, or nil.
func (m *MockTransport) LastRequest() *http.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return nil
	}
	return m.requests[len(m.requests)-1]
}

func (o mockOutcome) build(req *http.Request) (*http.Response, error) {
	if o.err != nil {
		return nil, o.err
	}
	h := o.headers
	if h == nil {
		h = make(http.Header)
	} else {
		h = h.Clone()
	}
	return &http.Response{
		Status:        http.StatusText(o.status),
		StatusCode:    o.status,
		Header:        h,
		Body:          io.NopCloser(bytes.NewBufferString(o.body)),
		ContentLength: int64(len(o.body)),
		Request:       req,
	}, nil
}

func toHeader(headers map[string]string) http.Header {
	if headers == nil {
		return nil
	}
	h := make(http.Header, len(headers))
	for k, v := range headers {
		h.Set(k, v)
	}
	return h
}
