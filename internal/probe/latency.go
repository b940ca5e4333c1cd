package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"
)

// Failure reasons for a latency probe.
const (
	ReasonDNSFailure     = "dns_failure"
	ReasonConnectTimeout = "connect_timeout"
	ReasonConnectRefused = "connect_refused"
)

// DefaultTimeout bounds every network sub-probe.
const DefaultTimeout = 5 * time.Second

// LatencyError reports which step of a latency probe failed. DNSMS carries
// the resolution time when DNS succeeded but the connect step did not.
type LatencyError struct {
	Reason string
	DNSMS  float64
	Err    error
}

func (e *LatencyError) Error() string {
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *LatencyError) Unwrap() error { return e.Err }

// LatencyMetrics holds the individual timings of one probe, in milliseconds.
type LatencyMetrics struct {
	DNSMS     float64
	ConnectMS float64
	TotalMS   float64
}

// LatencyProber measures DNS resolution time and raw TCP connect time for a
// host. The two measurements are independent; DNS must succeed before the
// connect is attempted.
type LatencyProber struct {
	Resolver *net.Resolver
	Timeout  time.Duration
}

func NewLatencyProber(timeout time.Duration) *LatencyProber {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &LatencyProber{Resolver: &net.Resolver{}, Timeout: timeout}
}

// Measure resolves host and opens one TCP connection to host:port, timing
// each step. The connection is closed before returning on every path.
func (p *LatencyProber) Measure(ctx context.Context, host, port string) (LatencyMetrics, error) {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	dnsStart := time.Now()
	addrs, err := p.Resolver.LookupHost(ctx, host)
	if err != nil || len(addrs) == 0 {
		if err == nil {
			err = fmt.Errorf("no addresses for %s", host)
		}
		return LatencyMetrics{}, &LatencyError{Reason: ReasonDNSFailure, Err: err}
	}
	dnsMS := time.Since(dnsStart).Seconds() * 1000

	d := net.Dialer{Timeout: p.Timeout}
	connStart := time.Now()
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(addrs[0], port))
	if err != nil {
		return LatencyMetrics{}, &LatencyError{Reason: classifyDial(err), DNSMS: dnsMS, Err: err}
	}
	connMS := time.Since(connStart).Seconds() * 1000
	_ = conn.Close()

	return LatencyMetrics{
		DNSMS:     dnsMS,
		ConnectMS: connMS,
		TotalMS:   dnsMS + connMS,
	}, nil
}

func classifyDial(err error) string {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return ReasonConnectRefused
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ReasonConnectTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonConnectTimeout
	}
	return ReasonConnectRefused
}
