package engine

import (
	"context"
	"net/http"
)

// Request performs a logical call and follows the async-job protocol to a
// terminal payload:
//
//   - a 201 with a Location header means a resource was created and its
//     readiness must be polled at that URL;
//   - a 202 means the operation was accepted and the same request should be
//     polled until it completes;
//   - anything else 2xx is already terminal.
//
// Streaming calls skip the protocol and return the drained payload.
// The result is the decoded terminal body: a generic mapping for JSON,
// a string for textual payloads, raw bytes for binary ones.
//
// Unlike Send, Request performs no local authentication pre-check: calls
// without stored credentials go to the wire and surface the server's
// answer. Pass WithAuthVerify to opt in to the guard.
func (c *Client) Request(ctx context.Context, method, path string, opts ...CallOption) (any, error) {
	d := &Descriptor{Method: method, URL: path}
	for _, opt := range opts {
		opt(d)
	}

	if d.Stream {
		resp, err := c.Do(ctx, d)
		if err != nil {
			return nil, err
		}
		return c.consumeStream(d, resp)
	}

	resp, err := c.Do(ctx, d)
	if err != nil {
		return nil, err
	}

	resp, err = c.followAsync(ctx, d, resp)
	if err != nil {
		return nil, err
	}
	return resp.Decoded()
}

// Create issues a POST that must announce an asynchronously created
// resource, polls the announced location until the job settles, and decodes
// the terminal payload into out.
func (c *Client) Create(ctx context.Context, path string, body any, out any, opts ...CallOption) error {
	opts = append(opts, WithJSONBody(body))
	d := &Descriptor{Method: http.MethodPost, URL: path}
	for _, opt := range opts {
		opt(d)
	}

	resp, err := c.Do(ctx, d)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusCreated {
		resp.finish()
		return &UnexpectedStatusError{
			Method: d.Method,
			URL:    d.URL,
			Want:   http.StatusCreated,
			Got:    resp.StatusCode,
		}
	}
	loc, err := resp.Location()
	if err != nil {
		resp.finish()
		return err
	}
	resp.finish()

	final, err := c.pollLocation(ctx, d, loc)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return final.DecodeJSON(out)
}

// followAsync applies the async-job protocol to a successful response.
func (c *Client) followAsync(ctx context.Context, d *Descriptor, resp *Response) (*Response, error) {
	switch {
	case resp.Created():
		loc, err := resp.Location()
		if err != nil {
			return nil, err
		}
		resp.finish()
		return c.pollLocation(ctx, d, loc)
	case resp.Accepted():
		resp.finish()
		return c.pollUntilDone(ctx, d, d.Method+" "+d.URL)
	default:
		return resp, nil
	}
}

// pollLocation polls the created resource's URL with GETs inheriting the
// original call's auth and timeout settings.
func (c *Client) pollLocation(ctx context.Context, origin *Descriptor, location string) (*Response, error) {
	poll := &Descriptor{
		Method:     http.MethodGet,
		URL:        location,
		Headers:    origin.Headers,
		Timeout:    origin.Timeout,
		VerifyAuth: origin.VerifyAuth,
	}
	return c.pollUntilDone(ctx, poll, "resource at "+location)
}
