package message

import (
	"github.com/WhileEndless/go-wirehttp/pkg/buffer"
	"github.com/WhileEndless/go-wirehttp/pkg/timing"
)

// BodyMode tells how the end of a response body is detected.
type BodyMode uint8

const (
	// BodyNone means the response carries no body (HEAD, 204, 304, length 0)
	BodyNone BodyMode = iota
	// BodyLength means the body is exactly Content-Length bytes long
	BodyLength
	// BodyChunked means the body uses chunked transfer-coding
	BodyChunked
	// BodyUntilClose means the body runs until the peer closes the stream
	BodyUntilClose
)

func (m BodyMode) String() string {
	switch m {
	case BodyNone:
		return "none"
	case BodyLength:
		return "length"
	case BodyChunked:
		return "chunked"
	case BodyUntilClose:
		return "until-close"
	default:
		return "unknown"
	}
}

// Response represents a parsed HTTP response.
type Response struct {
	Proto      string // e.g. "HTTP/1.1"
	StatusCode int
	Reason     string
	StatusLine string
	Header     Header
	Body       *buffer.Buffer
	BodyMode   BodyMode

	// RawBytes counts every byte consumed from the wire for this response
	RawBytes int64

	Timings       timing.Metrics
	ConnectedAddr string
}

// BodyBytes returns the body size.
func (r *Response) BodyBytes() int64 {
	if r.Body == nil {
		return 0
	}
	return r.Body.Size()
}

// ReadBody returns the whole body, reading it back from disk if it spilled.
func (r *Response) ReadBody() ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	return r.Body.ReadAll()
}

// Close releases the body storage.
func (r *Response) Close() error {
	if r.Body == nil {
		return nil
	}
	return r.Body.Close()
}

// Summary is a serializable view of a response.
type Summary struct {
	Proto      string              `json:"proto"`
	StatusCode int                 `json:"status_code"`
	Reason     string              `json:"reason"`
	Headers    map[string][]string `json:"headers"`
	BodyMode   string              `json:"body_mode"`
	BodyBytes  int64               `json:"body_bytes"`
	Body       string              `json:"body,omitempty"`
	RawBytes   int64               `json:"raw_bytes"`
	Remote     string              `json:"remote,omitempty"`
	Timings    timing.Metrics      `json:"timings"`
}

// Summary returns a serializable view of the response. The body is included
// only while it is held in memory.
func (r *Response) Summary() Summary {
	s := Summary{
		Proto:      r.Proto,
		StatusCode: r.StatusCode,
		Reason:     r.Reason,
		Headers:    r.Header.Map(),
		BodyMode:   r.BodyMode.String(),
		BodyBytes:  r.BodyBytes(),
		RawBytes:   r.RawBytes,
		Remote:     r.ConnectedAddr,
		Timings:    r.Timings,
	}
	if r.Body != nil {
		s.Body = string(r.Body.Bytes())
	}
	return s
}
