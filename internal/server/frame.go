package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/n4t3/passenger/internal/wire"
)

const (

	// Maximum size of a request header block in bytes.
	MaxHeaderSize = 128 * 1024

	// Header synthesized from HTTP_CONTENT_LENGTH for the legacy dispatch
	// convention.
	contentLengthHeader = "CONTENT_LENGTH"

	// Header carrying the content length as forwarded by the front end.
	httpContentLengthHeader = "HTTP_CONTENT_LENGTH"
)

// A decoded request frame.
//
// Headers holds the NUL-delimited name/value pairs from the header block.
// Body is the connection advanced past the header block; the body is
// streamed by the dispatcher and never buffered here.
type Request struct {
	Headers map[string]string
	Body    io.Reader
}

// Returns the value of the named header, or "" if absent.
func (r *Request) Header(name string) string {
	return r.Headers[name]
}

// Returns the declared body length and whether one was declared.
func (r *Request) ContentLength() (int64, bool) {
	v, ok := r.Headers[contentLengthHeader]
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Decodes one request frame from conn.
//
// The frame is a length-prefixed header block followed by the verbatim
// body. Returns [io.EOF] when the peer closes the connection cleanly before
// sending anything; callers drop such connections silently. A header block
// over [MaxHeaderSize] fails with [ErrHeaderTooLarge] without buffering the
// oversized payload.
func decodeRequest(conn io.Reader) (*Request, error) {
	block, err := wire.ReadScalar(conn, MaxHeaderSize)
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		if errors.Is(err, wire.ErrScalarTooLarge) {
			return nil, fmt.Errorf("%w: %v", ErrHeaderTooLarge, err)
		}
		return nil, fmt.Errorf("read header block: %w", err)
	}

	headers := parseHeaderBlock(block)
	if v, ok := headers[httpContentLengthHeader]; ok {
		headers[contentLengthHeader] = v
	}

	return &Request{Headers: headers, Body: conn}, nil
}

// Splits a header block on NUL bytes and pairs the tokens into a header
// mapping.
//
// The grammar is name NUL value NUL repeated, so a well-formed block ends
// with a single empty trailing token, which is discarded. When a name
// repeats, the last occurrence wins. A malformed block with an odd token
// count leaves one unpaired trailing token; it is dropped rather than
// rejected, a compatibility behavior front ends rely on.
func parseHeaderBlock(block []byte) map[string]string {
	tokens := bytes.Split(block, []byte{0})
	if n := len(tokens); n > 0 && len(tokens[n-1]) == 0 {
		tokens = tokens[:n-1]
	}

	headers := make(map[string]string, len(tokens)/2)
	for i := 0; i+1 < len(tokens); i += 2 {
		headers[string(tokens[i])] = string(tokens[i+1])
	}
	return headers
}

// Encodes a header mapping into the wire grammar.
//
// Used by tests and by clients embedding this package; the daemon itself
// only decodes.
func encodeHeaderBlock(headers map[string]string) []byte {
	var buf bytes.Buffer
	for name, value := range headers {
		buf.WriteString(name)
		buf.WriteByte(0)
		buf.WriteString(value)
		buf.WriteByte(0)
	}
	return buf.Bytes()
}
