// Package errors provides the structured failure values returned by the client.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"time"
)

// ErrorType represents the category of error that occurred.
type ErrorType string

const (
	// ErrorTypeConnect represents refused or unreachable connections
	ErrorTypeConnect ErrorType = "connect"
	// ErrorTypeDNS represents DNS resolution errors; it is a kind of connect error
	ErrorTypeDNS ErrorType = "dns"
	// ErrorTypeWrite represents failures while sending the request
	ErrorTypeWrite ErrorType = "write"
	// ErrorTypeRead represents failures while receiving the response
	ErrorTypeRead ErrorType = "read"
	// ErrorTypeTimeout represents connect or read deadlines being hit
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeCanceled represents the caller's context being canceled
	ErrorTypeCanceled ErrorType = "canceled"
	// ErrorTypeEncoding represents requests that cannot be put on the wire
	ErrorTypeEncoding ErrorType = "encoding"
	// ErrorTypeMalformedStatusLine represents an unparsable status line
	ErrorTypeMalformedStatusLine ErrorType = "malformed_status_line"
	// ErrorTypeMalformedHeader represents an unparsable header line
	ErrorTypeMalformedHeader ErrorType = "malformed_header"
	// ErrorTypeMalformedBody represents broken body framing
	ErrorTypeMalformedBody ErrorType = "malformed_body"
	// ErrorTypeTruncatedResponse represents a peer closing before the response ended
	ErrorTypeTruncatedResponse ErrorType = "truncated_response"
	// ErrorTypeIO represents local I/O errors (body spill files)
	ErrorTypeIO ErrorType = "io"
	// ErrorTypeValidation represents invalid arguments
	ErrorTypeValidation ErrorType = "validation"
)

// Sentinels for errors.Is. Matching is by type only.
var (
	ErrConnect             = &Error{Type: ErrorTypeConnect}
	ErrDNS                 = &Error{Type: ErrorTypeDNS}
	ErrWrite               = &Error{Type: ErrorTypeWrite}
	ErrRead                = &Error{Type: ErrorTypeRead}
	ErrTimeout             = &Error{Type: ErrorTypeTimeout}
	ErrCanceled            = &Error{Type: ErrorTypeCanceled}
	ErrEncoding            = &Error{Type: ErrorTypeEncoding}
	ErrMalformedStatusLine = &Error{Type: ErrorTypeMalformedStatusLine}
	ErrMalformedHeader     = &Error{Type: ErrorTypeMalformedHeader}
	ErrMalformedBody       = &Error{Type: ErrorTypeMalformedBody}
	ErrTruncatedResponse   = &Error{Type: ErrorTypeTruncatedResponse}
	ErrIO                  = &Error{Type: ErrorTypeIO}
	ErrValidation          = &Error{Type: ErrorTypeValidation}
)

// Error represents a structured error with context information.
type Error struct {
	Type      ErrorType `json:"type"`
	Message   string    `json:"message"`
	Cause     error     `json:"cause,omitempty"`
	Host      string    `json:"host,omitempty"`
	Port      int       `json:"port,omitempty"`
	Op        string    `json:"op,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same type. DNS errors and
// timeouts hit while connecting also match ErrConnect.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if e.Type == t.Type {
		return true
	}
	if t.Type != ErrorTypeConnect {
		return false
	}
	return e.Type == ErrorTypeDNS || (e.Type == ErrorTypeTimeout && connectPhase(e.Op))
}

func connectPhase(op string) bool {
	return op == OpConnect || op == OpDNSLookup
}

func newError(typ ErrorType, message string, cause error) *Error {
	return &Error{
		Type:      typ,
		Message:   message,
		Cause:     cause,
		Timestamp: time.Now(),
	}
}

// NewConnectError creates a connection error.
func NewConnectError(host string, port int, cause error) *Error {
	e := newError(ErrorTypeConnect, fmt.Sprintf("failed to connect to %s", hostPort(host, port)), cause)
	e.Host, e.Port = host, port
	return e
}

// NewDNSError creates a DNS resolution error.
func NewDNSError(host string, cause error) *Error {
	e := newError(ErrorTypeDNS, fmt.Sprintf("DNS lookup failed for host %s", host), cause)
	e.Host = host
	return e
}

// NewWriteError creates a request write error.
func NewWriteError(cause error) *Error {
	return newError(ErrorTypeWrite, "writing request", cause)
}

// NewReadError creates a response read error.
func NewReadError(cause error) *Error {
	return newError(ErrorTypeRead, "reading response", cause)
}

// Operation names carried by timeout errors.
const (
	OpDNSLookup = "DNS lookup"
	OpConnect   = "connect"
	OpWrite     = "write"
	OpRead      = "read"
)

// NewTimeoutError creates a timeout error.
func NewTimeoutError(operation string, timeout time.Duration) *Error {
	var e *Error
	if timeout <= 0 {
		e = newError(ErrorTypeTimeout, fmt.Sprintf("%s timed out", operation), nil)
	} else {
		e = newError(ErrorTypeTimeout, fmt.Sprintf("%s timed out after %v", operation, timeout), nil)
	}
	e.Op = operation
	return e
}

// NewCanceledError creates an error for an operation aborted by its context.
func NewCanceledError(operation string, cause error) *Error {
	return newError(ErrorTypeCanceled, fmt.Sprintf("%s canceled", operation), cause)
}

// NewEncodingError creates a request encoding error.
func NewEncodingError(message string) *Error {
	return newError(ErrorTypeEncoding, message, nil)
}

// NewMalformedStatusLineError creates a status line parse error.
func NewMalformedStatusLineError(line string, cause error) *Error {
	return newError(ErrorTypeMalformedStatusLine, fmt.Sprintf("malformed status line %q", line), cause)
}

// NewMalformedHeaderError creates a header parse error.
func NewMalformedHeaderError(message string) *Error {
	return newError(ErrorTypeMalformedHeader, message, nil)
}

// NewMalformedBodyError creates a body framing error.
func NewMalformedBodyError(message string, cause error) *Error {
	return newError(ErrorTypeMalformedBody, message, cause)
}

// NewTruncatedResponseError creates an error for a response cut short by EOF.
func NewTruncatedResponseError(message string) *Error {
	return newError(ErrorTypeTruncatedResponse, message, nil)
}

// NewIOError creates an I/O error.
func NewIOError(operation string, cause error) *Error {
	return newError(ErrorTypeIO, fmt.Sprintf("I/O error during %s", operation), cause)
}

// NewValidationError creates a validation error.
func NewValidationError(message string) *Error {
	return newError(ErrorTypeValidation, message, nil)
}

// Classify turns an error raised by a socket operation into a structured
// error. Deadlines become timeout errors, context cancellation becomes a
// canceled error and everything else is wrapped as fallback.
func Classify(ctx context.Context, operation string, timeout time.Duration, err error, fallback func(error) *Error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}

	if ctx != nil && ctx.Err() != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return NewTimeoutError(operation, 0)
		}
		return NewCanceledError(operation, ctx.Err())
	}

	if errors.Is(err, context.Canceled) {
		return NewCanceledError(operation, err)
	}

	if isTimeout(err) {
		t := NewTimeoutError(operation, timeout)
		t.Cause = err
		return t
	}

	return fallback(err)
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// IsConnectionReset reports whether err was caused by the peer resetting or
// abandoning the connection.
func IsConnectionReset(err error) bool {
	return errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE)
}

// IsTimeoutError checks if an error is a timeout error.
func IsTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Type == ErrorTypeTimeout
	}
	return isTimeout(err)
}

// IsConnectError checks if an error happened while establishing a
// connection, DNS failures included.
func IsConnectError(err error) bool {
	return errors.Is(err, ErrConnect)
}

// GetErrorType returns the error type if it's a structured error.
func GetErrorType(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ""
}

// IsContextCanceled checks if an error is due to context cancellation.
func IsContextCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, ErrCanceled)
}

// IsContextTimeout checks if an error is due to context deadline exceeded.
func IsContextTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}

func hostPort(host string, port int) string {
	return net.JoinHostPort(host, fmt.Sprint(port))
}
