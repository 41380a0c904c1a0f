// Package encoder renders structured requests into HTTP/1.1 wire bytes.
package encoder

import (
	"net"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/http/httpguts"
	"golang.org/x/net/idna"

	"github.com/WhileEndless/go-wirehttp/pkg/constants"
	"github.com/WhileEndless/go-wirehttp/pkg/errors"
	"github.com/WhileEndless/go-wirehttp/pkg/message"
)

const crlf = "\r\n"

// Encoder holds request-independent defaults. The zero value adds no
// User-Agent.
type Encoder struct {
	// UserAgent is sent when the request carries no User-Agent header
	UserAgent string
}

// Encode renders req for host:port using the zero Encoder.
func Encode(req *message.Request, host string, port int) ([]byte, error) {
	return Encoder{}.Encode(req, host, port)
}

// Encode renders req for host:port. The output ends with the blank line
// terminating the header section, followed by the body if any.
//
// Host and Connection are synthesized unless the caller supplied them, as are
// User-Agent (when configured) and Content-Length (when a body is sent without
// explicit framing). Caller headers keep their order.
func (e Encoder) Encode(req *message.Request, host string, port int) ([]byte, error) {
	return e.Append(nil, req, host, port)
}

// Append is like Encode but appends to dst.
func (e Encoder) Append(dst []byte, req *message.Request, host string, port int) ([]byte, error) {
	if req == nil {
		return nil, errors.NewEncodingError("request is nil")
	}
	if err := validateMethod(req.Method); err != nil {
		return nil, err
	}
	for _, f := range req.Header {
		if err := validateField(f); err != nil {
			return nil, err
		}
	}

	dst = append(dst, req.Method...)
	dst = append(dst, ' ')
	dst = append(dst, RequestTarget(req.Path, req.Query)...)
	dst = append(dst, ' ')
	dst = append(dst, constants.DefaultProto...)
	dst = append(dst, crlf...)

	if !req.Header.Has("Host") {
		hostHeader, err := HostHeader(host, port)
		if err != nil {
			return nil, err
		}
		dst = appendField(dst, "Host", hostHeader)
	}

	for _, f := range req.Header {
		dst = appendField(dst, f.Name, f.Value)
	}

	if e.UserAgent != "" && !req.Header.Has("User-Agent") {
		if strings.ContainsAny(e.UserAgent, crlf) {
			return nil, errors.NewEncodingError("user agent contains CR or LF")
		}
		dst = appendField(dst, "User-Agent", e.UserAgent)
	}

	if needsContentLength(req) {
		dst = appendField(dst, "Content-Length", strconv.Itoa(len(req.Body)))
	}

	if !req.Header.Has("Connection") {
		dst = appendField(dst, "Connection", "close")
	}

	dst = append(dst, crlf...)
	return append(dst, req.Body...), nil
}

func appendField(dst []byte, name, value string) []byte {
	dst = append(dst, name...)
	dst = append(dst, ": "...)
	dst = append(dst, value...)
	return append(dst, crlf...)
}

func validateMethod(m message.Method) error {
	if m == "" {
		return errors.NewEncodingError("method is empty")
	}
	for i := 0; i < len(m); i++ {
		if !httpguts.IsTokenRune(rune(m[i])) {
			return errors.NewEncodingError("method " + strconv.Quote(string(m)) + " is not a valid token")
		}
	}
	return nil
}

func validateField(f message.Field) error {
	if !httpguts.ValidHeaderFieldName(f.Name) {
		return errors.NewEncodingError("invalid header name " + strconv.Quote(f.Name))
	}
	if strings.ContainsAny(f.Value, crlf) {
		return errors.NewEncodingError("header " + f.Name + " value contains CR or LF")
	}
	return nil
}

func needsContentLength(req *message.Request) bool {
	if req.Header.Has("Content-Length") || req.Header.Has("Transfer-Encoding") {
		return false
	}
	if len(req.Body) > 0 {
		return true
	}
	switch req.Method {
	case message.MethodPost, message.MethodPut, message.MethodPatch:
		return true
	}
	return false
}

// RequestTarget renders the origin-form request target: the escaped path
// followed by the form-encoded query, if any.
func RequestTarget(path string, query message.Query) string {
	target := EscapePath(path)
	if len(query) > 0 {
		target += "?" + EncodeQuery(query)
	}
	return target
}

// EscapePath percent-encodes a decoded path. Slashes separate segments and
// are kept; spaces become %20. An empty path becomes "/".
func EscapePath(path string) string {
	if path == "" {
		return "/"
	}
	if path[0] != '/' && path != "*" {
		path = "/" + path
	}
	if path == "*" {
		return path
	}
	return (&url.URL{Path: path}).EscapedPath()
}

// EscapeQuery form-encodes one query key or value: reserved characters become
// %XX escapes and spaces become '+'.
func EscapeQuery(s string) string {
	return url.QueryEscape(s)
}

// EncodeQuery joins the pairs as key=value separated by '&', preserving order.
func EncodeQuery(query message.Query) string {
	var sb strings.Builder
	for i, p := range query {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(EscapeQuery(p.Key))
		sb.WriteByte('=')
		sb.WriteString(EscapeQuery(p.Value))
	}
	return sb.String()
}

// HostHeader returns the Host header value for host:port. Internationalized
// names are converted to their ASCII form, IPv6 literals are bracketed and
// the default port is omitted.
func HostHeader(host string, port int) (string, error) {
	if host == "" {
		return "", errors.NewEncodingError("host is empty")
	}
	if strings.ContainsAny(host, "\r\n \t/") {
		return "", errors.NewEncodingError("host " + strconv.Quote(host) + " contains invalid characters")
	}

	if ip := net.ParseIP(strings.Trim(host, "[]")); ip != nil {
		host = ip.String()
		if strings.Contains(host, ":") {
			host = "[" + host + "]"
		}
	} else {
		ascii, err := idna.Lookup.ToASCII(host)
		if err != nil {
			return "", errors.NewEncodingError("host " + strconv.Quote(host) + " is not a valid domain name: " + err.Error())
		}
		host = ascii
	}

	if port == constants.DefaultHTTPPort || port == 0 {
		return host, nil
	}
	return host + ":" + strconv.Itoa(port), nil
}
