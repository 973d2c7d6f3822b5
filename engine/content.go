package engine

import (
	"strings"

	json "github.com/goccy/go-json"
)

// ContentType classifies a response body by its declared MIME type.
//
// The set is closed: every response classifies to exactly one member, and
// MIME strings the engine does not recognize classify to ContentUnsupported,
// which is decoded as opaque text rather than rejected.
type ContentType int

const (
	// ContentUnsupported is the fallback for unrecognized MIME types.
	ContentUnsupported ContentType = iota

	// ContentJSON is structured data ("application/json").
	ContentJSON

	// ContentText is plain text ("text/plain").
	ContentText

	// ContentCSV is comma-separated text ("text/csv").
	ContentCSV

	// ContentPDF is a rendered report ("application/pdf").
	ContentPDF

	// ContentOctetStream is raw binary ("application/octet-stream").
	ContentOctetStream

	// ContentColumnar is the columnar streaming format used for large
	// tabular payloads ("application/vnd.apache.arrow.stream").
	ContentColumnar
)

const (
	mimeJSON        = "application/json"
	mimeText        = "text/plain"
	mimeCSV         = "text/csv"
	mimePDF         = "application/pdf"
	mimeOctetStream = "application/octet-stream"
	mimeColumnar    = "application/vnd.apache.arrow.stream"
	mimeForm        = "application/x-www-form-urlencoded"
)

// ParseContentType classifies a Content-Type header value. Parameter
// suffixes such as "; charset=utf-8" are stripped before matching.
func ParseContentType(header string) ContentType {
	mime := header
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = mime[:i]
	}
	mime = strings.ToLower(strings.TrimSpace(mime))

	switch mime {
	case mimeJSON:
		return ContentJSON
	case mimeText:
		return ContentText
	case mimeCSV:
		return ContentCSV
	case mimePDF:
		return ContentPDF
	case mimeOctetStream:
		return ContentOctetStream
	case mimeColumnar:
		return ContentColumnar
	default:
		return ContentUnsupported
	}
}

// String returns the canonical MIME string for the content type.
func (ct ContentType) String() string {
	switch ct {
	case ContentJSON:
		return mimeJSON
	case ContentText:
		return mimeText
	case ContentCSV:
		return mimeCSV
	case ContentPDF:
		return mimePDF
	case ContentOctetStream:
		return mimeOctetStream
	case ContentColumnar:
		return mimeColumnar
	default:
		return "unsupported"
	}
}

// IsText reports whether bodies of this type are returned as decoded text.
func (ct ContentType) IsText() bool {
	switch ct {
	case ContentText, ContentCSV, ContentJSON:
		return true
	default:
		return false
	}
}

// IsBinary reports whether bodies of this type are returned as raw bytes.
func (ct ContentType) IsBinary() bool {
	switch ct {
	case ContentPDF, ContentOctetStream, ContentColumnar:
		return true
	default:
		return false
	}
}

// decodePayload decodes a response body according to its classification:
// structured data parses to the generic mapping form, recognized text types
// decode to string, binary types pass through as raw bytes, and anything
// unrecognized falls back to raw text.
func decodePayload(kind ContentType, body []byte) (any, error) {
	switch kind {
	case ContentJSON:
		if len(body) == 0 {
			return nil, nil
		}
		var v any
		if err := json.Unmarshal(body, &v); err != nil {
			return nil, err
		}
		return v, nil
	case ContentPDF, ContentOctetStream, ContentColumnar:
		return body, nil
	default:
		// Plain text, CSV and unsupported types all surface as text.
		return string(body), nil
	}
}
