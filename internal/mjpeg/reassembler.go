// Package mjpeg splits multipart/x-mixed-replace byte streams into frame
// payloads and writes them back out as multipart parts.
package mjpeg

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"strconv"
	"strings"
)

const (
	MultipartMixedReplace = "multipart/x-mixed-replace"

	// DefaultMaxBuffer bounds the unconsumed buffer when upstream sends
	// bytes that never form a complete part.
	DefaultMaxBuffer = 16 << 20
)

var (
	ErrNoBoundary   = errors.New("content type carries no multipart boundary")
	headerSeparator = []byte("\r\n\r\n")
)

// ParseBoundary extracts the boundary parameter from a
// multipart/x-mixed-replace Content-Type header.
func ParseBoundary(contentType string) (string, error) {
	if !strings.Contains(strings.ToLower(contentType), MultipartMixedReplace) {
		return "", fmt.Errorf("%w: %q", ErrNoBoundary, contentType)
	}
	if _, params, err := mime.ParseMediaType(contentType); err == nil {
		if b := params["boundary"]; b != "" {
			return b, nil
		}
	}
	// Some cameras send headers mime rejects; fall back to a plain split.
	for _, part := range strings.Split(contentType, ";") {
		part = strings.TrimSpace(part)
		if k, v, ok := strings.Cut(part, "="); ok && strings.EqualFold(strings.TrimSpace(k), "boundary") {
			if v = strings.Trim(strings.TrimSpace(v), `"`); v != "" {
				return v, nil
			}
		}
	}
	return "", fmt.Errorf("%w: %q", ErrNoBoundary, contentType)
}

// Reassembler accumulates chunks and yields complete part payloads.
//
// A payload is the byte range between the end of a part's header block and
// the next boundary marker. It is emitted only once that next marker has
// arrived, so the output is the same for any chunking of the input.
type Reassembler struct {
	marker    []byte
	buf       []byte
	maxBuffer int
}

func NewReassembler(boundary string) *Reassembler {
	return &Reassembler{
		marker:    []byte("--" + boundary),
		maxBuffer: DefaultMaxBuffer,
	}
}

// Feed appends chunk and returns every payload completed by it, in order.
// Empty payloads are dropped. Returned slices are owned by the caller.
func (r *Reassembler) Feed(chunk []byte) [][]byte {
	r.buf = append(r.buf, chunk...)

	var out [][]byte
	consumed := 0
	for {
		rest := r.buf[consumed:]
		start := bytes.Index(rest, r.marker)
		if start < 0 {
			break
		}
		hdr := bytes.Index(rest[start:], headerSeparator)
		if hdr < 0 {
			break
		}
		bodyStart := start + hdr + len(headerSeparator)
		next := bytes.Index(rest[bodyStart:], r.marker)
		if next < 0 {
			break
		}
		bodyEnd := bodyStart + next

		if bodyEnd > bodyStart {
			out = append(out, bytes.Clone(rest[bodyStart:bodyEnd]))
		}
		consumed += bodyEnd
	}

	if consumed > 0 {
		r.buf = append(r.buf[:0], r.buf[consumed:]...)
	}
	if len(r.buf) > r.maxBuffer {
		keep := len(r.marker)
		r.buf = append(r.buf[:0], r.buf[len(r.buf)-keep:]...)
	}
	return out
}

// Buffered reports how many bytes are waiting for a following marker.
func (r *Reassembler) Buffered() int {
	return len(r.buf)
}

// WritePart writes one image/jpeg part framed by boundary.
func WritePart(w io.Writer, boundary string, payload []byte) error {
	var hdr bytes.Buffer
	hdr.Grow(len(boundary) + 64)
	hdr.WriteString("--")
	hdr.WriteString(boundary)
	hdr.WriteString("\r\nContent-Type: image/jpeg\r\nContent-Length: ")
	hdr.WriteString(strconv.Itoa(len(payload)))
	hdr.WriteString("\r\n\r\n")

	if _, err := w.Write(hdr.Bytes()); err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	_, err := w.Write([]byte("\r\n"))
	return err
}

// ContentType returns the response header value for a stream using boundary.
func ContentType(boundary string) string {
	return MultipartMixedReplace + "; boundary=" + boundary
}
