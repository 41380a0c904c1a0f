// Package transport provides the byte-stream connection a single exchange
// runs over.
package transport

import (
	"context"
	"net"
	"strconv"
	"time"

	"golang.org/x/net/idna"

	"github.com/WhileEndless/go-wirehttp/pkg/constants"
	"github.com/WhileEndless/go-wirehttp/pkg/errors"
	"github.com/WhileEndless/go-wirehttp/pkg/timing"
)

// Config holds transport configuration.
type Config struct {
	Host         string
	Port         int
	ConnTimeout  time.Duration
	DNSTimeout   time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Resolver looks up the addresses of a host. *net.Resolver satisfies it.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// Transport resolves hosts and dials TCP connections.
type Transport struct {
	resolver Resolver
	dialer   net.Dialer
}

// New creates a new Transport instance.
func New() *Transport {
	return NewWithResolver(net.DefaultResolver)
}

// NewWithResolver creates a new Transport with a custom resolver.
func NewWithResolver(resolver Resolver) *Transport {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	return &Transport{
		resolver: resolver,
	}
}

// Connect establishes a connection based on the configuration. Pending I/O on
// the returned Conn fails as soon as ctx is done.
func (t *Transport) Connect(ctx context.Context, config Config, timer *timing.Timer) (*Conn, error) {
	if err := validateConfig(config); err != nil {
		return nil, err
	}
	if timer == nil {
		timer = timing.NewTimer()
	}

	connTimeout := config.ConnTimeout
	if connTimeout <= 0 {
		connTimeout = constants.DefaultConnTimeout
	}

	dialAddr, err := t.resolveAddress(ctx, config, timer)
	if err != nil {
		return nil, err
	}

	nc, err := t.connectTCP(ctx, dialAddr, connTimeout, timer)
	if err != nil {
		return nil, errors.Classify(ctx, errors.OpConnect, connTimeout, err, func(err error) *errors.Error {
			return errors.NewConnectError(config.Host, config.Port, err)
		})
	}

	if tcp, ok := nc.(*net.TCPConn); ok {
		if err := tcp.SetNoDelay(true); err != nil {
			nc.Close()
			return nil, errors.NewConnectError(config.Host, config.Port, err)
		}
	}

	return newConn(ctx, nc, config), nil
}

func validateConfig(config Config) error {
	if config.Host == "" {
		return errors.NewValidationError("host cannot be empty")
	}
	if config.Port <= 0 || config.Port > 65535 {
		return errors.NewValidationError("port must be between 1 and 65535")
	}
	return nil
}

func (t *Transport) resolveAddress(ctx context.Context, config Config, timer *timing.Timer) (string, error) {
	port := strconv.Itoa(config.Port)
	if ip := net.ParseIP(config.Host); ip != nil {
		return net.JoinHostPort(ip.String(), port), nil
	}

	host, err := idna.Lookup.ToASCII(config.Host)
	if err != nil {
		return "", errors.NewDNSError(config.Host, err)
	}

	timer.StartDNS()
	defer timer.EndDNS()

	dnsTimeout := config.DNSTimeout
	if dnsTimeout <= 0 {
		dnsTimeout = config.ConnTimeout
	}
	if dnsTimeout <= 0 {
		dnsTimeout = constants.DefaultDNSTimeout
	}

	lookupCtx, cancel := context.WithTimeout(ctx, dnsTimeout)
	defer cancel()

	addrs, err := t.resolver.LookupIPAddr(lookupCtx, host)
	if err != nil {
		if ctx.Err() != nil || lookupCtx.Err() != nil {
			return "", errors.Classify(lookupCtx, errors.OpDNSLookup, dnsTimeout, err, func(err error) *errors.Error {
				return errors.NewDNSError(config.Host, err)
			})
		}
		return "", errors.NewDNSError(config.Host, err)
	}
	if len(addrs) == 0 {
		return "", errors.NewDNSError(config.Host, errors.NewValidationError("no IP addresses found"))
	}

	return net.JoinHostPort(addrs[0].IP.String(), port), nil
}

func (t *Transport) connectTCP(ctx context.Context, dialAddr string, timeout time.Duration, timer *timing.Timer) (net.Conn, error) {
	timer.StartTCP()
	defer timer.EndTCP()

	dialer := t.dialer
	dialer.Timeout = timeout
	return dialer.DialContext(ctx, "tcp", dialAddr)
}
