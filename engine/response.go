package engine

import (
	"context"
	"io"
	"net/http"

	json "github.com/goccy/go-json"
)

// Response wraps http.Response with cached body access and content-type
// driven decoding.
//
// The body is read at most once: the first call to Bytes (directly or via
// Decoded) drains and closes the underlying stream and caches the result,
// so repeated reads never reissue work. Streaming calls bypass Bytes and
// consume Body directly; see Client.Request with a destination.
type Response struct {
	// Response embeds the standard http.Response.
	*http.Response

	// method and url identify the logical call for error reporting.
	method string
	url    string

	body     []byte
	bodyRead bool
	bodyErr  error

	decoded    any
	decodedErr error
	decodedSet bool

	// cancel releases the per-attempt context once the body is consumed.
	cancel context.CancelFunc
}

func newResponse(method, url string, httpResp *http.Response, cancel context.CancelFunc) *Response {
	return &Response{
		Response: httpResp,
		method:   method,
		url:      url,
		cancel:   cancel,
	}
}

// Bytes returns the response body, reading and closing the underlying
// stream on first access and returning the cached copy afterwards.
func (r *Response) Bytes() ([]byte, error) {
	if r.bodyRead {
		return r.body, r.bodyErr
	}
	r.bodyRead = true

	defer r.finish()
	r.body, r.bodyErr = io.ReadAll(r.Response.Body)
	return r.body, r.bodyErr
}

// Text returns the body as a string.
func (r *Response) Text() (string, error) {
	b, err := r.Bytes()
	return string(b), err
}

// Kind classifies the response by its Content-Type header.
func (r *Response) Kind() ContentType {
	return ParseContentType(r.Header.Get("Content-Type"))
}

// Decoded returns the body decoded according to its classification:
// a generic mapping for structured data, a string for textual types and
// for unrecognized types, raw bytes for binary types. Decoding happens
// at most once per response; later calls return the memoized value.
func (r *Response) Decoded() (any, error) {
	if r.decodedSet {
		return r.decoded, r.decodedErr
	}
	r.decodedSet = true

	body, err := r.Bytes()
	if err != nil {
		r.decodedErr = err
		return nil, err
	}
	r.decoded, r.decodedErr = decodePayload(r.Kind(), body)
	return r.decoded, r.decodedErr
}

// DecodeJSON unmarshals the cached body into out. Used by typed endpoint
// wrappers once a terminal payload is available.
func (r *Response) DecodeJSON(out any) error {
	body, err := r.Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}

// IsSuccess reports whether the status code is 2xx.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// IsError reports whether the status code is 4xx or 5xx.
func (r *Response) IsError() bool {
	return r.StatusCode >= 400
}

// Created reports whether this response announces an asynchronously created
// resource: 201 Created plus a Location header naming the poll URL.
func (r *Response) Created() bool {
	return r.StatusCode == http.StatusCreated && r.Header.Get("Location") != ""
}

// Accepted reports whether the server accepted the request but is still
// running the underlying operation, asking the caller to poll the same URL.
func (r *Response) Accepted() bool {
	return r.StatusCode == http.StatusAccepted
}

// Location returns the poll URL of a created resource.
func (r *Response) Location() (string, error) {
	loc := r.Header.Get("Location")
	if loc == "" {
		return "", ErrMissingLocation
	}
	return loc, nil
}

// finish closes the underlying stream and releases the attempt context.
// Safe to call more than once.
func (r *Response) finish() {
	if r.Response != nil && r.Response.Body != nil {
		r.Response.Body.Close()
	}
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
}
