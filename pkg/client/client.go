// Package client provides the main HTTP client API.
package client

import (
	"context"
	stderrors "errors"
	"io"
	"time"

	"github.com/dchest/uniuri"
	"github.com/rs/zerolog"

	"github.com/WhileEndless/go-wirehttp/pkg/constants"
	"github.com/WhileEndless/go-wirehttp/pkg/encoder"
	"github.com/WhileEndless/go-wirehttp/pkg/errors"
	"github.com/WhileEndless/go-wirehttp/pkg/message"
	"github.com/WhileEndless/go-wirehttp/pkg/parser"
	"github.com/WhileEndless/go-wirehttp/pkg/timing"
	"github.com/WhileEndless/go-wirehttp/pkg/transport"
)

// Options controls how the Client establishes connections and reads responses.
// Zero sizes and limits fall back to the defaults in pkg/constants; a zero
// read or write timeout disables that deadline.
type Options struct {
	ConnTimeout  time.Duration
	DNSTimeout   time.Duration // DNS resolution timeout (0 = use ConnTimeout)
	ReadTimeout  time.Duration // bounds every single read
	WriteTimeout time.Duration

	ReadChunkSize      int
	BodyMemLimit       int64
	MaxStatusLineBytes int
	MaxHeaderBytes     int

	// UserAgent is sent unless the request has its own User-Agent header.
	// Set it to "-" to send none.
	UserAgent string

	// Resolver looks up host names; nil uses net.DefaultResolver.
	Resolver transport.Resolver

	// Logger receives per-exchange events. The zero value logs nothing.
	Logger zerolog.Logger
}

// DefaultOptions returns options populated with the library defaults.
func DefaultOptions() Options {
	return Options{
		ConnTimeout:        constants.DefaultConnTimeout,
		DNSTimeout:         constants.DefaultDNSTimeout,
		ReadTimeout:        constants.DefaultReadTimeout,
		WriteTimeout:       constants.DefaultWriteTimeout,
		ReadChunkSize:      constants.DefaultReadChunkSize,
		BodyMemLimit:       constants.DefaultBodyMemLimit,
		MaxStatusLineBytes: constants.MaxStatusLineBytes,
		MaxHeaderBytes:     constants.MaxHeaderBytes,
		UserAgent:          constants.DefaultUserAgent,
		Logger:             zerolog.Nop(),
	}
}

// Client sends one request per connection. It holds no per-exchange state,
// so concurrent Send calls are independent.
type Client struct {
	transport *transport.Transport
	opts      Options
	encoder   encoder.Encoder
	log       zerolog.Logger
}

// New returns a new Client instance.
func New(opts Options) *Client {
	return NewWithTransport(transport.NewWithResolver(opts.Resolver), opts)
}

// NewWithTransport creates a Client with a custom transport. opts.Resolver is
// ignored; the transport brings its own.
func NewWithTransport(t *transport.Transport, opts Options) *Client {
	if opts.ReadChunkSize <= 0 {
		opts.ReadChunkSize = constants.DefaultReadChunkSize
	}
	if opts.UserAgent == "" {
		opts.UserAgent = constants.DefaultUserAgent
	}

	ua := opts.UserAgent
	if ua == "-" {
		ua = ""
	}

	return &Client{
		transport: t,
		opts:      opts,
		encoder:   encoder.Encoder{UserAgent: ua},
		log:       opts.Logger,
	}
}

// Send performs one exchange: it encodes req, connects to host:port, writes
// the request, parses the response and closes the connection. timeout, when
// positive, bounds the connect and every read; otherwise the option-level
// timeouts apply.
//
// Either a complete response or an *errors.Error is returned, never both.
// The caller owns the response and should Close it.
func (c *Client) Send(ctx context.Context, req *message.Request, host string, port int, timeout time.Duration) (*message.Response, error) {
	if c.transport == nil {
		return nil, errors.NewValidationError("client transport is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	log := c.log.With().
		Str("request_id", uniuri.NewLen(12)).
		Str("host", host).
		Int("port", port).
		Logger()

	resp, err := c.send(ctx, req, host, port, timeout, log)
	if err != nil {
		log.Warn().
			Str("error_type", string(errors.GetErrorType(err))).
			Err(err).
			Msg("exchange failed")
		return nil, err
	}

	log.Debug().
		Int("status", resp.StatusCode).
		Str("body_mode", resp.BodyMode.String()).
		Int64("body_bytes", resp.BodyBytes()).
		Dur("total", resp.Timings.TotalTime).
		Msg("response parsed")
	return resp, nil
}

func (c *Client) send(ctx context.Context, req *message.Request, host string, port int, timeout time.Duration, log zerolog.Logger) (*message.Response, error) {
	// Encoding failures must surface before any network I/O.
	wire, err := c.encoder.Encode(req, host, port)
	if err != nil {
		return nil, err
	}

	timer := timing.NewTimer()
	conn, err := c.transport.Connect(ctx, c.transportConfig(host, port, timeout), timer)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	log.Debug().
		Str("remote", conn.RemoteAddr()).
		Dur("connect", timer.GetMetrics().TCPConnect).
		Msg("connected")

	timer.StartWrite()
	err = conn.Write(wire)
	timer.EndWrite()
	if err != nil {
		return nil, err
	}
	log.Debug().Int("bytes", len(wire)).Msg("request written")

	p := parser.New(parser.Options{
		MaxStatusLineBytes: c.opts.MaxStatusLineBytes,
		MaxHeaderBytes:     c.opts.MaxHeaderBytes,
		BodyMemLimit:       c.opts.BodyMemLimit,
		Method:             req.Method,
	})

	timer.StartTTFB()
	if err := readResponse(conn, p, c.opts.ReadChunkSize, timer); err != nil {
		p.Release()
		return nil, err
	}
	timer.EndBody()

	resp := p.Response()
	resp.Timings = timer.GetMetrics()
	resp.ConnectedAddr = conn.RemoteAddr()
	return resp, nil
}

// readResponse drives the parser from the connection until it is done or a
// failure occurs. EOF is handed to the parser, which decides whether it ends
// the body or truncates the response.
func readResponse(conn *transport.Conn, p *parser.Parser, chunkSize int, timer *timing.Timer) error {
	for !p.State().Terminal() {
		chunk, err := conn.ReadChunk(chunkSize)
		if stderrors.Is(err, io.EOF) {
			return p.CloseInput()
		}
		if err != nil {
			return err
		}
		timer.EndTTFB()

		if _, err := p.Feed(chunk); err != nil {
			return err
		}
	}
	return p.Err()
}

func (c *Client) transportConfig(host string, port int, timeout time.Duration) transport.Config {
	cfg := transport.Config{
		Host:         host,
		Port:         port,
		ConnTimeout:  c.opts.ConnTimeout,
		DNSTimeout:   c.opts.DNSTimeout,
		ReadTimeout:  c.opts.ReadTimeout,
		WriteTimeout: c.opts.WriteTimeout,
	}
	if timeout > 0 {
		cfg.ConnTimeout = timeout
		cfg.ReadTimeout = timeout
		if cfg.DNSTimeout <= 0 || cfg.DNSTimeout > timeout {
			cfg.DNSTimeout = timeout
		}
	}
	return cfg
}
