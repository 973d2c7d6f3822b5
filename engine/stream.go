package engine

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

// streamBufferSize is the copy buffer used when draining streamed payloads.
const streamBufferSize = 32 * 1024

// consumeStream drains a successful streaming response into the
// descriptor's destination. It returns the buffered payload when the
// descriptor asked for content, the number of bytes written otherwise.
// The body is always closed.
func (c *Client) consumeStream(d *Descriptor, resp *Response) (any, error) {
	defer resp.finish()

	var (
		dst    io.Writer
		file   *os.File
		inMem  *bytes.Buffer
		target string
	)

	switch v := d.Destination.(type) {
	case nil:
		inMem = &bytes.Buffer{}
		dst = inMem
	case string:
		f, err := os.Create(v)
		if err != nil {
			return nil, fmt.Errorf("creating download file: %w", err)
		}
		file = f
		dst = f
		target = v
	case io.Writer:
		dst = v
	default:
		return nil, fmt.Errorf("unsupported stream destination %T", d.Destination)
	}

	buf := make([]byte, streamBufferSize)
	written, err := io.CopyBuffer(dst, resp.Body, buf)
	if file != nil {
		if serr := file.Sync(); serr != nil && err == nil {
			err = serr
		}
		if cerr := file.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	if err != nil {
		return nil, fmt.Errorf("streaming %s %s: %w", d.Method, d.URL, err)
	}

	c.logger.Debug().
		Str("url", d.URL).
		Int64("bytes", written).
		Str("file", target).
		Msg("stream drained")

	if inMem != nil {
		if d.WantContent && resp.Kind().IsText() {
			return inMem.String(), nil
		}
		return inMem.Bytes(), nil
	}
	return written, nil
}
