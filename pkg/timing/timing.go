// Package timing records how long each phase of a request/response exchange takes.
package timing

import (
	"fmt"
	"time"
)

// Metrics captures detailed timing information for one exchange.
type Metrics struct {
	// DNSLookup is the time spent resolving the host name (0 for IP literals)
	DNSLookup time.Duration `json:"dns_lookup"`

	// TCPConnect is the time spent in the TCP handshake
	TCPConnect time.Duration `json:"tcp_connect"`

	// RequestWrite is the time spent sending the encoded request
	RequestWrite time.Duration `json:"request_write"`

	// TTFB (Time To First Byte) is the time between the request being sent
	// and the first response byte arriving
	TTFB time.Duration `json:"ttfb"`

	// BodyRead is the time from the first response byte until the parser finished
	BodyRead time.Duration `json:"body_read"`

	// TotalTime is the total end-to-end exchange time
	TotalTime time.Duration `json:"total_time"`
}

type span struct {
	start, end time.Time
}

func (s span) duration() time.Duration {
	if s.start.IsZero() || s.end.IsZero() {
		return 0
	}
	return s.end.Sub(s.start)
}

// Timer collects phase boundaries. It is owned by a single exchange and is not
// safe for concurrent use.
type Timer struct {
	start time.Time
	dns   span
	tcp   span
	write span
	ttfb  span
	body  span
}

// NewTimer creates a new timing measurement session.
func NewTimer() *Timer {
	return &Timer{
		start: time.Now(),
	}
}

// StartDNS marks the beginning of DNS resolution.
func (t *Timer) StartDNS() { t.dns.start = time.Now() }

// EndDNS marks the end of DNS resolution.
func (t *Timer) EndDNS() { t.dns.end = time.Now() }

// StartTCP marks the beginning of the TCP connection.
func (t *Timer) StartTCP() { t.tcp.start = time.Now() }

// EndTCP marks the end of the TCP connection.
func (t *Timer) EndTCP() { t.tcp.end = time.Now() }

// StartWrite marks the beginning of sending the request.
func (t *Timer) StartWrite() { t.write.start = time.Now() }

// EndWrite marks the end of sending the request.
func (t *Timer) EndWrite() { t.write.end = time.Now() }

// StartTTFB marks when we start waiting for the first response byte.
func (t *Timer) StartTTFB() { t.ttfb.start = time.Now() }

// EndTTFB marks when the first response byte arrived. Only the first call
// counts; it also opens the body phase.
func (t *Timer) EndTTFB() {
	if !t.ttfb.end.IsZero() {
		return
	}
	t.ttfb.end = time.Now()
	t.body.start = t.ttfb.end
}

// EndBody marks the parser reaching its final state.
func (t *Timer) EndBody() { t.body.end = time.Now() }

// GetMetrics returns the calculated timing metrics.
func (t *Timer) GetMetrics() Metrics {
	return Metrics{
		DNSLookup:    t.dns.duration(),
		TCPConnect:   t.tcp.duration(),
		RequestWrite: t.write.duration(),
		TTFB:         t.ttfb.duration(),
		BodyRead:     t.body.duration(),
		TotalTime:    time.Since(t.start),
	}
}

// GetConnectionTime returns the total connection establishment time (DNS + TCP).
func (m Metrics) GetConnectionTime() time.Duration {
	return m.DNSLookup + m.TCPConnect
}

// GetServerTime returns the server processing time.
func (m Metrics) GetServerTime() time.Duration {
	return m.TTFB
}

// GetNetworkTime returns the total network time (excluding server processing).
func (m Metrics) GetNetworkTime() time.Duration {
	return m.TotalTime - m.TTFB
}

// String provides a human-readable representation of the metrics.
func (m Metrics) String() string {
	return fmt.Sprintf("DNSLookup: %v, TCPConnect: %v, RequestWrite: %v, TTFB: %v, BodyRead: %v, TotalTime: %v",
		m.DNSLookup, m.TCPConnect, m.RequestWrite, m.TTFB, m.BodyRead, m.TotalTime)
}
