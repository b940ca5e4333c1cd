package probe

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"endpointwatch/internal/domain"
)

// HTTPProber issues the health GET request and composes the latency and TLS
// sub-probes into one CheckResult. Each sub-probe fails independently; a
// failed step becomes absent fields, never an error to the caller. Only a
// malformed target URL is an error.
type HTTPProber struct {
	Client  *http.Client
	Latency *LatencyProber
	TLS     *TLSInspector
	Log     *zap.Logger
}

func NewHTTPProber(timeout time.Duration, log *zap.Logger) *HTTPProber {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPProber{
		// The GET measures the application layer only; certificate judgment
		// belongs to the TLS inspector, which verifies against the real trust
		// store. A 200 behind an expired certificate is still up.
		Client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		},
		Latency: NewLatencyProber(timeout),
		TLS:     NewTLSInspector(timeout),
		Log:     log,
	}
}

func (p *HTTPProber) Probe(ctx context.Context, rawurl string) (domain.CheckResult, error) {
	u, err := url.Parse(rawurl)
	if err != nil {
		return domain.CheckResult{}, fmt.Errorf("invalid target url %q: %w", rawurl, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
		return domain.CheckResult{}, fmt.Errorf("invalid target url %q: need http(s) scheme and host", rawurl)
	}

	host := u.Hostname()
	port := u.Port()
	if port == "" {
		if u.Scheme == "https" {
			port = "443"
		} else {
			port = "80"
		}
	}

	var res domain.CheckResult

	if m, lerr := p.Latency.Measure(ctx, host, port); lerr == nil {
		res.DNSLatencyMS = &m.DNSMS
		res.ConnectLatencyMS = &m.ConnectMS
		res.TotalLatencyMS = &m.TotalMS
	} else {
		p.Log.Debug("latency_probe_failed",
			zap.String("host", host),
			zap.Error(lerr),
		)
		var le *LatencyError
		if errors.As(lerr, &le) {
			res.Error = le.Reason
			if le.Reason != ReasonDNSFailure {
				// DNS resolved; only the connect step failed.
				res.DNSLatencyMS = &le.DNSMS
			}
		} else {
			res.Error = lerr.Error()
		}
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawurl, nil)
	if err != nil {
		return domain.CheckResult{}, fmt.Errorf("build request for %q: %w", rawurl, err)
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		if res.Error == "" {
			res.Error = err.Error()
		}
	} else {
		elapsed := time.Since(start).Seconds() * 1000
		code := resp.StatusCode
		resp.Body.Close()
		res.StatusCode = &code
		res.ResponseTimeMS = &elapsed
		res.Up = code >= 200 && code < 300
	}

	if u.Scheme == "https" {
		rep := p.TLS.Inspect(ctx, host, port)
		valid := rep.Valid
		res.CertValid = &valid
		res.CertExpiry = rep.Expiry
		res.CertIssuer = rep.Issuer
		res.TLSVersion = rep.Version
		res.Secure = rep.Valid
		if !rep.Valid && res.Error == "" {
			res.Error = rep.Reason
		}
	}

	return res, nil
}
