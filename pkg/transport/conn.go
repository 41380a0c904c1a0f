package transport

import (
	"context"
	stderrors "errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/WhileEndless/go-wirehttp/pkg/constants"
	"github.com/WhileEndless/go-wirehttp/pkg/errors"
)

// Conn owns one stream connection for the lifetime of a single exchange. It
// is not safe for concurrent reads or writes; Close may be called from any
// goroutine.
type Conn struct {
	ctx          context.Context
	conn         net.Conn
	host         string
	port         int
	readTimeout  time.Duration
	writeTimeout time.Duration
	buf          []byte

	stopWatch func() bool
	closeOnce sync.Once
	closeErr  error
}

func newConn(ctx context.Context, nc net.Conn, config Config) *Conn {
	c := &Conn{
		ctx:          ctx,
		conn:         nc,
		host:         config.Host,
		port:         config.Port,
		readTimeout:  config.ReadTimeout,
		writeTimeout: config.WriteTimeout,
	}
	// Unblock pending reads and writes as soon as the caller gives up.
	c.stopWatch = context.AfterFunc(ctx, func() {
		c.conn.SetDeadline(time.Now())
	})
	return c
}

// Wrap adopts an already established connection, such as one end of a
// net.Pipe.
func Wrap(ctx context.Context, nc net.Conn, config Config) *Conn {
	return newConn(ctx, nc, config)
}

// RemoteAddr returns the address of the peer.
func (c *Conn) RemoteAddr() string {
	if addr := c.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

// Write sends all of p, retrying short writes until everything is written or
// the connection breaks.
func (c *Conn) Write(p []byte) error {
	if err := c.arm(c.conn.SetWriteDeadline, c.writeTimeout); err != nil {
		return c.classify(errors.OpWrite, c.writeTimeout, err, errors.NewWriteError)
	}

	for written := 0; written < len(p); {
		n, err := c.conn.Write(p[written:])
		written += n
		if err != nil {
			return c.classify(errors.OpWrite, c.writeTimeout, err, errors.NewWriteError)
		}
	}
	return nil
}

// ReadChunk blocks until at least one byte is available and returns up to
// max bytes. The returned slice is only valid until the next call. io.EOF
// with an empty chunk means the peer closed the stream.
func (c *Conn) ReadChunk(max int) ([]byte, error) {
	if max <= 0 {
		max = constants.DefaultReadChunkSize
	}
	if cap(c.buf) < max {
		c.buf = make([]byte, max)
	}
	buf := c.buf[:max]

	if err := c.arm(c.conn.SetReadDeadline, c.readTimeout); err != nil {
		return nil, c.classify(errors.OpRead, c.readTimeout, err, errors.NewReadError)
	}

	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			// Data read alongside an error is returned first; the error
			// surfaces again on the next call.
			return buf[:n], nil
		}
		switch {
		case err == nil:
			continue
		case stderrors.Is(err, io.EOF):
			return nil, io.EOF
		default:
			return nil, c.classify(errors.OpRead, c.readTimeout, err, errors.NewReadError)
		}
	}
}

// arm sets the per-operation deadline. A fresh deadline would replace the one
// the cancellation watcher installed, so a done context is checked both before
// and after setting it.
func (c *Conn) arm(set func(time.Time) error, timeout time.Duration) error {
	if err := c.ctx.Err(); err != nil {
		return err
	}
	if timeout <= 0 {
		return nil
	}
	if err := set(time.Now().Add(timeout)); err != nil {
		return err
	}
	if err := c.ctx.Err(); err != nil {
		set(time.Now())
		return err
	}
	return nil
}

// Close releases the socket. It is idempotent and safe to call after an error.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.stopWatch()
		if err := c.conn.Close(); err != nil {
			c.closeErr = errors.NewIOError("closing connection", err)
		}
	})
	return c.closeErr
}

func (c *Conn) classify(op string, timeout time.Duration, err error, fallback func(error) *errors.Error) error {
	return errors.Classify(c.ctx, op, timeout, err, fallback)
}
