package probe

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net"
	"time"
)

// TLSReport is the outcome of a handshake inspection. A failed handshake is a
// normal report with Valid=false, not an error; misconfigured endpoints are
// an expected state.
type TLSReport struct {
	Valid   bool
	Expiry  *time.Time
	Issuer  *string
	Version *string
	Reason  string
}

// TLSInspector performs a full TLS handshake against a host and extracts leaf
// certificate metadata. Verification uses the platform trust store unless
// RootCAs is set.
type TLSInspector struct {
	Timeout time.Duration
	RootCAs *x509.CertPool
}

func NewTLSInspector(timeout time.Duration) *TLSInspector {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &TLSInspector{Timeout: timeout}
}

// Inspect dials host:port, completes the handshake, and reports the
// negotiated protocol, issuer common name, and expiry of the leaf
// certificate. The connection is closed on every path.
func (ti *TLSInspector) Inspect(ctx context.Context, host, port string) TLSReport {
	ctx, cancel := context.WithTimeout(ctx, ti.Timeout)
	defer cancel()

	d := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: ti.Timeout},
		Config: &tls.Config{
			ServerName: host,
			RootCAs:    ti.RootCAs,
		},
	}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, port))
	if err != nil {
		// Handshake, verification, and hostname-mismatch failures all land
		// here; record the reason and move on.
		return TLSReport{Valid: false, Reason: err.Error()}
	}
	defer conn.Close()

	state := conn.(*tls.Conn).ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return TLSReport{Valid: false, Reason: "no peer certificate presented"}
	}
	leaf := state.PeerCertificates[0]
	expiry := leaf.NotAfter
	issuer := leaf.Issuer.CommonName
	version := tls.VersionName(state.Version)
	return TLSReport{
		Valid:   true,
		Expiry:  &expiry,
		Issuer:  &issuer,
		Version: &version,
	}
}
