package engine

import (
	"fmt"
	"net/url"
	"reflect"
	"time"

	json "github.com/goccy/go-json"
)

// Descriptor captures everything needed to (re)build one HTTP request.
// A single descriptor may be materialized several times for one logical
// call: once per retry attempt, and again from scratch after a credential
// refresh. The encoded body is cached so re-sends do not re-serialize.
type Descriptor struct {
	Method string
	URL    string

	// Headers are call-scoped headers layered over the client defaults.
	Headers map[string]string

	// Query holds query parameters. Entries whose value is nil (or a nil
	// pointer) are dropped before encoding.
	Query map[string]any

	// At most one of JSONBody, FormBody, RawBody, Attachments may be set.
	JSONBody    any
	FormBody    map[string]string
	RawBody     []byte
	RawMIME     string
	Attachments []FileAttachment

	// Timeout bounds the whole logical call including retries and the
	// refresh replay. Zero means the client default.
	Timeout time.Duration

	// Stream disables the per-attempt timeout and leaves the body open
	// for the caller to drain.
	Stream bool

	// VerifyAuth requires stored credentials before sending.
	VerifyAuth bool

	// WantContent asks streaming calls to buffer and return the payload
	// instead of writing it to a destination.
	WantContent bool

	// Destination receives streamed payloads: a file path (string) or an
	// io.Writer. Nil buffers in memory.
	Destination any

	bodyBytes []byte
	bodyMIME  string
	bodyBuilt bool
}

// CallOption adjusts a single call's descriptor.
type CallOption func(*Descriptor)

// WithQueryParams sets query parameters. Nil values are dropped.
func WithQueryParams(params map[string]any) CallOption {
	return func(d *Descriptor) { d.Query = params }
}

// WithJSONBody sends body serialized as application/json.
func WithJSONBody(body any) CallOption {
	return func(d *Descriptor) { d.JSONBody = body }
}

// WithFormBody sends fields as application/x-www-form-urlencoded.
func WithFormBody(fields map[string]string) CallOption {
	return func(d *Descriptor) { d.FormBody = fields }
}

// WithRawBody sends body verbatim under the given content type.
func WithRawBody(body []byte, contentType string) CallOption {
	return func(d *Descriptor) {
		d.RawBody = body
		d.RawMIME = contentType
	}
}

// WithFileAttachments sends the attachments as multipart/form-data.
func WithFileAttachments(attachments []FileAttachment) CallOption {
	return func(d *Descriptor) { d.Attachments = attachments }
}

// WithCallTimeout overrides the client's logical-call timeout.
func WithCallTimeout(timeout time.Duration) CallOption {
	return func(d *Descriptor) { d.Timeout = timeout }
}

// WithCallHeader adds a header for this call only.
func WithCallHeader(name, value string) CallOption {
	return func(d *Descriptor) {
		if d.Headers == nil {
			d.Headers = make(map[string]string)
		}
		d.Headers[name] = value
	}
}

// WithStream marks the call as a streaming download.
func WithStream() CallOption {
	return func(d *Descriptor) { d.Stream = true }
}

// WithDestination routes a streamed payload to a file path or io.Writer.
func WithDestination(dst any) CallOption {
	return func(d *Descriptor) {
		d.Stream = true
		d.Destination = dst
	}
}

// WithContent asks a streaming call to return the buffered payload.
func WithContent() CallOption {
	return func(d *Descriptor) { d.WantContent = true }
}

// WithoutAuthVerify allows the call to go out without stored credentials.
// Used by login and health endpoints.
func WithoutAuthVerify() CallOption {
	return func(d *Descriptor) { d.VerifyAuth = false }
}

// WithAuthVerify requires stored credentials before sending. Send enforces
// this by default; Request and Create opt in through this option.
func WithAuthVerify() CallOption {
	return func(d *Descriptor) { d.VerifyAuth = true }
}

// body returns the encoded request body and its content type, building
// them on first use and reusing the cache on every re-send.
func (d *Descriptor) body() ([]byte, string, error) {
	if d.bodyBuilt {
		return d.bodyBytes, d.bodyMIME, nil
	}

	set := 0
	if d.JSONBody != nil {
		set++
	}
	if d.FormBody != nil {
		set++
	}
	if d.RawBody != nil {
		set++
	}
	if d.Attachments != nil {
		set++
	}
	if set > 1 {
		return nil, "", fmt.Errorf("request %s %s: more than one body kind set", d.Method, d.URL)
	}

	switch {
	case d.JSONBody != nil:
		b, err := json.Marshal(d.JSONBody)
		if err != nil {
			return nil, "", fmt.Errorf("encoding request body: %w", err)
		}
		d.bodyBytes, d.bodyMIME = b, mimeJSON
	case d.FormBody != nil:
		form := make(url.Values, len(d.FormBody))
		for k, v := range d.FormBody {
			form.Set(k, v)
		}
		d.bodyBytes, d.bodyMIME = []byte(form.Encode()), mimeForm
	case d.RawBody != nil:
		mime := d.RawMIME
		if mime == "" {
			mime = mimeOctetStream
		}
		d.bodyBytes, d.bodyMIME = d.RawBody, mime
	case d.Attachments != nil:
		b, ct, err := buildMultipart(d.Attachments)
		if err != nil {
			return nil, "", err
		}
		d.bodyBytes, d.bodyMIME = b, ct
	}

	d.bodyBuilt = true
	return d.bodyBytes, d.bodyMIME, nil
}

// encodeQuery renders the query parameters, dropping nil-valued entries.
func (d *Descriptor) encodeQuery() string {
	if len(d.Query) == 0 {
		return ""
	}
	values := url.Values{}
	for k, v := range d.Query {
		if isNilValue(v) {
			continue
		}
		values.Set(k, fmt.Sprint(v))
	}
	return values.Encode()
}

func isNilValue(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func:
		return rv.IsNil()
	}
	return false
}
