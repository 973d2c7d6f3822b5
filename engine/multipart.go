package engine

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"strings"
)

// FileAttachment describes one part of a multipart/form-data upload.
type FileAttachment struct {
	// FieldName is the form field name. Dataset uploads use "file".
	FieldName string
	// FileName is reported in the part's Content-Disposition.
	FileName string
	// ContentType is the part's declared type, e.g. "text/csv". Empty
	// falls back to application/octet-stream.
	ContentType string
	// Reader supplies the part's content.
	Reader io.Reader
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// buildMultipart encodes the attachments into a multipart/form-data body
// and returns the body together with its Content-Type header value.
func buildMultipart(attachments []FileAttachment) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, a := range attachments {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
			quoteEscaper.Replace(a.FieldName), quoteEscaper.Replace(a.FileName)))
		ct := a.ContentType
		if ct == "" {
			ct = mimeOctetStream
		}
		h.Set("Content-Type", ct)

		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("creating multipart field %q: %w", a.FieldName, err)
		}
		if a.Reader != nil {
			if _, err := io.Copy(part, a.Reader); err != nil {
				return nil, "", fmt.Errorf("writing multipart field %q: %w", a.FieldName, err)
			}
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
