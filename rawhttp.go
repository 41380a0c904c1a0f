// Package rawhttp provides a small, low-level HTTP/1.1 client that speaks the
// protocol directly over a TCP socket: structured requests are encoded by
// hand, sent over a dedicated connection, and the response is parsed
// incrementally as bytes arrive.
package rawhttp

import (
	"context"
	"time"

	"github.com/WhileEndless/go-wirehttp/pkg/client"
	"github.com/WhileEndless/go-wirehttp/pkg/errors"
	"github.com/WhileEndless/go-wirehttp/pkg/message"
	"github.com/WhileEndless/go-wirehttp/pkg/timing"
)

// Version is the current version of the library
const Version = "1.0.0"

// Re-export key types for easier usage
type (
	// Options controls how the Sender establishes connections and reads responses.
	Options = client.Options

	// Request is a structured HTTP/1.1 request.
	Request = message.Request

	// Response represents a parsed HTTP response.
	Response = message.Response

	// Header is an ordered, case-insensitive list of header fields.
	Header = message.Header

	// Query is an ordered list of query parameters.
	Query = message.Query

	// Method is an HTTP method token.
	Method = message.Method

	// Metrics captures detailed timing information for a request.
	Metrics = timing.Metrics

	// Error represents a structured error with context information.
	Error = errors.Error
)

// Re-export methods
const (
	MethodGet     = message.MethodGet
	MethodHead    = message.MethodHead
	MethodPost    = message.MethodPost
	MethodPut     = message.MethodPut
	MethodPatch   = message.MethodPatch
	MethodDelete  = message.MethodDelete
	MethodOptions = message.MethodOptions
)

// Re-export error types for convenience
const (
	ErrorTypeConnect             = errors.ErrorTypeConnect
	ErrorTypeDNS                 = errors.ErrorTypeDNS
	ErrorTypeWrite               = errors.ErrorTypeWrite
	ErrorTypeRead                = errors.ErrorTypeRead
	ErrorTypeTimeout             = errors.ErrorTypeTimeout
	ErrorTypeCanceled            = errors.ErrorTypeCanceled
	ErrorTypeEncoding            = errors.ErrorTypeEncoding
	ErrorTypeMalformedStatusLine = errors.ErrorTypeMalformedStatusLine
	ErrorTypeMalformedHeader     = errors.ErrorTypeMalformedHeader
	ErrorTypeMalformedBody       = errors.ErrorTypeMalformedBody
	ErrorTypeTruncatedResponse   = errors.ErrorTypeTruncatedResponse
	ErrorTypeValidation          = errors.ErrorTypeValidation
)

// Sender sends structured requests, one connection per exchange.
type Sender struct {
	client *client.Client
}

// NewSender returns a Sender using DefaultOptions.
func NewSender() *Sender {
	return NewSenderWithOptions(DefaultOptions())
}

// NewSenderWithOptions returns a Sender using opts.
func NewSenderWithOptions(opts Options) *Sender {
	return &Sender{
		client: client.New(opts),
	}
}

// Send encodes req, sends it to host:port and returns the parsed response.
// timeout bounds the connect and each read; zero uses the option timeouts.
func (s *Sender) Send(ctx context.Context, req *Request, host string, port int, timeout time.Duration) (*Response, error) {
	return s.client.Send(ctx, req, host, port, timeout)
}

// NewRequest returns a request with the given method and path.
func NewRequest(method Method, path string) *Request {
	return message.NewRequest(method, path)
}

// DefaultOptions returns default options for common use cases.
func DefaultOptions() Options {
	return client.DefaultOptions()
}

// IsTimeoutError checks if an error is a timeout error.
func IsTimeoutError(err error) bool {
	return errors.IsTimeoutError(err)
}

// IsConnectError checks if an error happened while connecting (DNS included).
func IsConnectError(err error) bool {
	return errors.IsConnectError(err)
}

// GetErrorType returns the error type if it's a structured error.
func GetErrorType(err error) string {
	return string(errors.GetErrorType(err))
}
