package probe

import (
	"context"
	"crypto/x509"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestHTTPProber_StatusOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	p := NewHTTPProber(2*time.Second, zap.NewNop())
	res, err := p.Probe(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if !res.Up {
		t.Fatalf("want up, got %+v", res)
	}
	if res.StatusCode == nil || *res.StatusCode != 200 {
		t.Fatalf("want status 200, got %v", res.StatusCode)
	}
	if res.ResponseTimeMS == nil || *res.ResponseTimeMS < 0 {
		t.Fatalf("want response time, got %v", res.ResponseTimeMS)
	}
	if res.DNSLatencyMS == nil || res.ConnectLatencyMS == nil || res.TotalLatencyMS == nil {
		t.Fatalf("want latency metrics, got %+v", res)
	}
	// plain http target: never secure, cert fields absent
	if res.Secure || res.CertValid != nil {
		t.Fatalf("http target must not report TLS data: %+v", res)
	}
}

func TestHTTPProber_Status500IsDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", 500)
	}))
	defer srv.Close()

	p := NewHTTPProber(2*time.Second, zap.NewNop())
	res, err := p.Probe(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if res.Up {
		t.Fatalf("500 must not be up")
	}
	if res.StatusCode == nil || *res.StatusCode != 500 {
		t.Fatalf("want status 500, got %v", res.StatusCode)
	}
}

func TestHTTPProber_UpDespiteBadCertificate(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
	}))
	defer srv.Close()

	// The test server's certificate is self-signed, so the TLS inspector
	// rejects it; the prober as constructed must still complete the GET and
	// report the endpoint up. No client injection here: this is exactly how
	// the orchestrator wires the prober in production.
	p := NewHTTPProber(2*time.Second, zap.NewNop())

	res, err := p.Probe(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if !res.Up {
		t.Fatalf("HTTP 200 should be up regardless of TLS outcome: %+v", res)
	}
	if res.StatusCode == nil || *res.StatusCode != 200 {
		t.Fatalf("want status 200 despite bad certificate, got %v", res.StatusCode)
	}
	if res.CertValid == nil || *res.CertValid {
		t.Fatalf("want certificate_valid=false, got %v", res.CertValid)
	}
	if res.Secure {
		t.Fatalf("failed handshake must not be secure")
	}
	if res.Error == "" {
		t.Fatalf("want TLS failure reason recorded")
	}
}

func TestHTTPProber_ValidTLS(t *testing.T) {
	srv, host, port := tlsTestServer(t)

	p := NewHTTPProber(2*time.Second, zap.NewNop())
	p.Client = srv.Client()
	p.TLS.RootCAs = clientPool(t, srv)

	res, err := p.Probe(context.Background(), "https://"+host+":"+port)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if !res.Up || res.CertValid == nil || !*res.CertValid || !res.Secure {
		t.Fatalf("want up+valid+secure, got %+v", res)
	}
	if res.CertExpiry == nil || res.TLSVersion == nil {
		t.Fatalf("want certificate metadata, got %+v", res)
	}
}

func TestHTTPProber_UnreachableHost(t *testing.T) {
	p := NewHTTPProber(500*time.Millisecond, zap.NewNop())
	res, err := p.Probe(context.Background(), "http://nxdomain.invalid/health")
	if err != nil {
		t.Fatalf("unreachable target must not be an error: %v", err)
	}
	if res.Up {
		t.Fatalf("want down")
	}
	if res.StatusCode != nil {
		t.Fatalf("status code must be absent, got %v", *res.StatusCode)
	}
	if res.Error == "" {
		t.Fatalf("want failure reason")
	}
}

func TestHTTPProber_MalformedURL(t *testing.T) {
	p := NewHTTPProber(time.Second, zap.NewNop())
	for _, raw := range []string{"", "ftp://example.com", "://nope", "https://"} {
		if _, err := p.Probe(context.Background(), raw); err == nil {
			t.Fatalf("want error for %q", raw)
		}
	}
}

func clientPool(t *testing.T, srv *httptest.Server) *x509.CertPool {
	t.Helper()
	pool := x509.NewCertPool()
	pool.AddCert(srv.Certificate())
	return pool
}
