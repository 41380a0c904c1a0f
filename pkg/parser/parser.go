// Package parser implements an incremental HTTP/1.1 response parser. It never
// touches the network: the caller feeds it whatever bytes arrive and tells it
// when the stream ended.
package parser

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/indigo-web/chunkedbody"
	lines "github.com/indigo-web/utils/buffer"
	"github.com/indigo-web/utils/strcomp"
	"github.com/indigo-web/utils/uf"
	"golang.org/x/net/http/httpguts"

	"github.com/WhileEndless/go-wirehttp/pkg/buffer"
	"github.com/WhileEndless/go-wirehttp/pkg/constants"
	"github.com/WhileEndless/go-wirehttp/pkg/errors"
	"github.com/WhileEndless/go-wirehttp/pkg/message"
)

// Options tune a Parser. Zero fields take the defaults from pkg/constants.
type Options struct {
	MaxStatusLineBytes int
	MaxHeaderBytes     int
	BodyMemLimit       int64

	// Method of the request being answered. Responses to HEAD carry no body.
	Method message.Method
}

// Parser turns a byte stream into a message.Response. A Parser handles one
// response and is not safe for concurrent use.
type Parser struct {
	opts  Options
	state State
	err   error

	statusLine *lines.Buffer[byte]
	headers    *lines.Buffer[byte]
	lastField  int

	mode      message.BodyMode
	remaining int64
	chunked   *chunkedbody.Parser
	trailer   bool

	resp *message.Response
}

// New returns a parser waiting for a status line.
func New(opts Options) *Parser {
	if opts.MaxStatusLineBytes <= 0 {
		opts.MaxStatusLineBytes = constants.MaxStatusLineBytes
	}
	if opts.MaxHeaderBytes <= 0 {
		opts.MaxHeaderBytes = constants.MaxHeaderBytes
	}
	if opts.BodyMemLimit <= 0 {
		opts.BodyMemLimit = constants.DefaultBodyMemLimit
	}

	return &Parser{
		opts:       opts,
		state:      AwaitingStatusLine,
		statusLine: lines.NewBuffer[byte](min(128, opts.MaxStatusLineBytes), opts.MaxStatusLineBytes),
		headers:    lines.NewBuffer[byte](min(1024, opts.MaxHeaderBytes), opts.MaxHeaderBytes),
		lastField:  -1,
		resp: &message.Response{
			Body: buffer.New(opts.BodyMemLimit),
		},
	}
}

// State returns the current phase.
func (p *Parser) State() State { return p.state }

// Mode returns the body framing; it is meaningful once the headers are parsed.
func (p *Parser) Mode() message.BodyMode { return p.mode }

// Remaining returns how many body bytes are still expected in length mode.
func (p *Parser) Remaining() int64 { return p.remaining }

// Err returns the failure that moved the parser to Failed.
func (p *Parser) Err() error { return p.err }

// Response returns the parsed response once the parser is Done, nil otherwise.
func (p *Parser) Response() *message.Response {
	if p.state != Done {
		return nil
	}
	return p.resp
}

// Release frees the body storage of a response that will not be handed out.
func (p *Parser) Release() {
	p.resp.Body.Close()
}

// Feed consumes data. It returns the bytes left over after the response
// ended; they belong to whatever follows on the stream. Once the parser is
// Failed every call returns the same error.
func (p *Parser) Feed(data []byte) (rest []byte, err error) {
	if p.state == Failed {
		return nil, p.err
	}

	fed := len(data)
	defer func() {
		p.resp.RawBytes += int64(fed - len(rest))
	}()

	for {
		switch p.state {
		case AwaitingStatusLine:
			line, tail, ok, err := readLine(p.statusLine, data)
			if err != nil {
				return nil, p.fail(errors.NewMalformedStatusLineError(
					truncate(p.statusLine.Finish()), err,
				))
			}
			if !ok {
				return nil, nil
			}
			data = tail
			if err := p.parseStatusLine(line); err != nil {
				return nil, p.fail(err)
			}
			p.statusLine.Clear()
			p.state = AwaitingHeaders

		case AwaitingHeaders:
			line, tail, ok, err := readLine(p.headers, data)
			if err != nil {
				return nil, p.fail(errors.NewMalformedHeaderError(
					fmt.Sprintf("header section exceeds %d bytes", p.opts.MaxHeaderBytes),
				))
			}
			if !ok {
				return nil, nil
			}
			data = tail
			if len(line) == 0 {
				p.headers.Clear()
				if err := p.endHeaders(); err != nil {
					return nil, p.fail(err)
				}
				continue
			}
			if err := p.parseHeaderLine(line); err != nil {
				return nil, p.fail(err)
			}

		case AwaitingBody:
			if len(data) == 0 {
				return nil, nil
			}
			data, err = p.readBody(data)
			if err != nil {
				return nil, p.fail(err)
			}

		case Done:
			return data, nil

		default:
			return nil, p.err
		}
	}
}

// CloseInput tells the parser the peer closed the stream. It completes an
// until-close body and fails any other unfinished response as truncated.
func (p *Parser) CloseInput() error {
	switch p.state {
	case Done:
		return nil
	case Failed:
		return p.err
	case AwaitingStatusLine:
		if p.resp.RawBytes == 0 {
			return p.fail(errors.NewTruncatedResponseError("connection closed before any response bytes"))
		}
		return p.fail(errors.NewTruncatedResponseError("connection closed inside the status line"))
	case AwaitingHeaders:
		return p.fail(errors.NewTruncatedResponseError("connection closed inside the header section"))
	}

	switch p.mode {
	case message.BodyUntilClose:
		p.finish(message.BodyUntilClose)
		return nil
	case message.BodyLength:
		got := p.resp.Body.Size()
		return p.fail(errors.NewTruncatedResponseError(fmt.Sprintf(
			"body ended after %d of %d bytes", got, got+p.remaining,
		)))
	default:
		return p.fail(errors.NewTruncatedResponseError("chunked body ended before the last chunk"))
	}
}

func (p *Parser) fail(err error) error {
	p.state = Failed
	p.err = err
	p.Release()
	return err
}

// readLine accumulates data into buf until a LF shows up. The returned line
// has its CRLF (or bare LF) stripped and is only valid until buf is cleared.
func readLine(buf *lines.Buffer[byte], data []byte) (line, rest []byte, ok bool, err error) {
	lf := bytes.IndexByte(data, '\n')
	if lf == -1 {
		if !buf.Append(data...) {
			return nil, nil, false, errLineTooLong
		}
		return nil, nil, false, nil
	}

	if !buf.Append(data[:lf]...) {
		return nil, nil, false, errLineTooLong
	}

	line = buf.Finish()
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	return line, data[lf+1:], true, nil
}

var errLineTooLong = fmt.Errorf("line exceeds the configured limit")

func (p *Parser) parseStatusLine(raw []byte) error {
	line := string(raw)
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 3 {
		return errors.NewMalformedStatusLineError(line, nil)
	}
	if !strings.HasPrefix(parts[0], "HTTP/") {
		return errors.NewMalformedStatusLineError(line, fmt.Errorf("unknown protocol %q", parts[0]))
	}

	code, ok := parseStatusCode(parts[1])
	if !ok {
		return errors.NewMalformedStatusLineError(line, fmt.Errorf("invalid status code %q", parts[1]))
	}

	p.resp.Proto = parts[0]
	p.resp.StatusCode = code
	p.resp.Reason = parts[2]
	p.resp.StatusLine = line
	return nil
}

func parseStatusCode(s string) (int, bool) {
	if len(s) != 3 {
		return 0, false
	}
	code := 0
	for i := 0; i < 3; i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
		code = code*10 + int(s[i]-'0')
	}
	return code, code >= 100 && code <= 599
}

func (p *Parser) parseHeaderLine(raw []byte) error {
	// obs-fold: a line starting with whitespace continues the previous value
	if raw[0] == ' ' || raw[0] == '\t' {
		if p.lastField < 0 {
			return errors.NewMalformedHeaderError(fmt.Sprintf("continuation line %q without a header", truncate(raw)))
		}
		f := &p.resp.Header[p.lastField]
		f.Value += " " + strings.TrimSpace(string(raw))
		return nil
	}

	colon := bytes.IndexByte(raw, ':')
	if colon == -1 {
		return errors.NewMalformedHeaderError(fmt.Sprintf("header line %q has no colon", truncate(raw)))
	}

	name := string(raw[:colon])
	if !httpguts.ValidHeaderFieldName(name) {
		return errors.NewMalformedHeaderError(fmt.Sprintf("invalid header name %q", name))
	}

	value := strings.TrimLeft(string(raw[colon+1:]), " \t")
	p.resp.Header.Add(name, value)
	p.lastField = len(p.resp.Header) - 1
	return nil
}

// endHeaders decides how the body is framed, in priority order: chunked
// transfer-coding, a valid Content-Length, then reading until close.
func (p *Parser) endHeaders() error {
	code := p.resp.StatusCode
	if code >= 100 && code < 200 && code != 101 {
		// interim response; the final one follows on the same stream
		p.resp.Header = nil
		p.resp.StatusCode = 0
		p.resp.Reason = ""
		p.resp.StatusLine = ""
		p.lastField = -1
		p.state = AwaitingStatusLine
		return nil
	}

	if p.opts.Method == message.MethodHead || code < 200 || code == 204 || code == 304 {
		p.finish(message.BodyNone)
		return nil
	}

	if isChunked(p.resp.Header) {
		p.mode = message.BodyChunked
		p.chunked = chunkedbody.NewParser(chunkedbody.DefaultSettings())
		p.trailer = p.resp.Header.Has("Trailer")
		p.state = AwaitingBody
		return nil
	}

	length, ok, err := contentLength(p.resp.Header)
	switch {
	case err != nil:
		return err
	case ok && length == 0:
		p.finish(message.BodyNone)
	case ok:
		p.mode = message.BodyLength
		p.remaining = length
		p.state = AwaitingBody
	default:
		p.mode = message.BodyUntilClose
		p.state = AwaitingBody
	}
	return nil
}

func (p *Parser) finish(mode message.BodyMode) {
	p.mode = mode
	p.state = Done
	p.resp.BodyMode = mode
}

func isChunked(h message.Header) bool {
	codings := h.Values("Transfer-Encoding")
	if len(codings) == 0 {
		return false
	}
	last := codings[len(codings)-1]
	if i := strings.LastIndexByte(last, ','); i >= 0 {
		last = last[i+1:]
	}
	return strcomp.EqualFold(strings.TrimSpace(last), "chunked")
}

// contentLength reports the declared body length. A missing or unparsable
// value yields ok=false; repeated headers that disagree are an error.
func contentLength(h message.Header) (length int64, ok bool, err error) {
	values := h.Values("Content-Length")
	if len(values) == 0 {
		return 0, false, nil
	}

	first := strings.TrimSpace(values[0])
	for _, v := range values[1:] {
		if strings.TrimSpace(v) != first {
			return 0, false, errors.NewMalformedBodyError(
				fmt.Sprintf("conflicting Content-Length values %q", values), nil,
			)
		}
	}

	if first == "" || strings.IndexFunc(first, func(r rune) bool { return r < '0' || r > '9' }) >= 0 {
		return 0, false, nil
	}
	// only digits remain, so ParseInt can fail on range alone
	n, err := strconv.ParseInt(first, 10, 64)
	if err != nil || n > constants.MaxContentLength {
		return 0, false, errors.NewMalformedBodyError(fmt.Sprintf("content-length %s too large", first), nil)
	}
	return n, true, nil
}

func (p *Parser) readBody(data []byte) ([]byte, error) {
	switch p.mode {
	case message.BodyLength:
		n := int64(len(data))
		if n > p.remaining {
			n = p.remaining
		}
		if err := p.writeBody(data[:n]); err != nil {
			return nil, err
		}
		p.remaining -= n
		if p.remaining == 0 {
			p.finish(message.BodyLength)
		}
		return data[n:], nil

	case message.BodyChunked:
		for len(data) > 0 {
			chunk, extra, err := p.chunked.Parse(data, p.trailer)
			if len(chunk) > 0 {
				if werr := p.writeBody(chunk); werr != nil {
					return nil, werr
				}
			}
			switch err {
			case nil:
			case io.EOF:
				p.finish(message.BodyChunked)
				return extra, nil
			default:
				return nil, errors.NewMalformedBodyError("invalid chunked encoding", err)
			}
			if len(chunk) == 0 && len(extra) >= len(data) {
				return nil, errors.NewMalformedBodyError("chunked decoder made no progress", nil)
			}
			data = extra
		}
		return nil, nil

	default:
		return nil, p.writeBody(data)
	}
}

func (p *Parser) writeBody(b []byte) error {
	if _, err := p.resp.Body.Write(b); err != nil {
		return err
	}
	return nil
}

func truncate(b []byte) string {
	const max = 64
	if len(b) > max {
		return uf.B2S(b[:max]) + "..."
	}
	return uf.B2S(b)
}
