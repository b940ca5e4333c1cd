package domain

import "time"

type EndpointID string

type OwnerID string

// Endpoint is a user-registered URL to monitor. Endpoints are created and
// managed elsewhere; the monitor only reads them.
type Endpoint struct {
	ID        EndpointID `json:"endpoint_id"`
	OwnerID   OwnerID    `json:"owner_id"`
	URL       string     `json:"url"`
	IsActive  bool       `json:"is_active"`
	CreatedAt time.Time  `json:"created_at"`
}

// CheckResult is the composed outcome of one probe pass against an endpoint.
// Pointer fields are nil when the corresponding sub-check did not run or
// failed; nil is "not measured", never zero.
type CheckResult struct {
	StatusCode       *int       `json:"status_code"`
	ResponseTimeMS   *float64   `json:"response_time_ms"`
	DNSLatencyMS     *float64   `json:"dns_latency_ms"`
	ConnectLatencyMS *float64   `json:"connection_latency_ms"`
	TotalLatencyMS   *float64   `json:"total_latency_ms"`
	Up               bool       `json:"is_up"`
	CertValid        *bool      `json:"certificate_valid"`
	CertExpiry       *time.Time `json:"certificate_expiry"`
	CertIssuer       *string    `json:"certificate_issuer"`
	TLSVersion       *string    `json:"tls_version"`
	Secure           bool       `json:"is_secure"`
	Error            string     `json:"error,omitempty"`
}

// LogRecord is the persisted, immutable form of one CheckResult.
type LogRecord struct {
	LogID      string     `json:"log_id"`
	EndpointID EndpointID `json:"endpoint_id"`
	OwnerID    OwnerID    `json:"owner_id"`
	Timestamp  time.Time  `json:"timestamp"`
	CheckResult
}

// NewLogID derives the record identifier from the check's start time and the
// endpoint. The same (endpoint, timestamp) pair always yields the same ID, so
// a redelivered result cannot create a duplicate row.
func NewLogID(id EndpointID, ts time.Time) string {
	return ts.UTC().Format("20060102T150405.000000000") + "-" + string(id)
}

// LogStats is the aggregated view over a window of records.
type LogStats struct {
	TotalChecks      int         `json:"total_checks"`
	SuccessfulChecks int         `json:"successful_checks"`
	FailedChecks     int         `json:"failed_checks"`
	UptimePercentage float64     `json:"uptime_percentage"`
	AvgResponseMS    float64     `json:"avg_response_time_ms"`
	AvgDNSMS         float64     `json:"avg_dns_latency_ms"`
	AvgConnectMS     float64     `json:"avg_connection_latency_ms"`
	AvgTotalMS       float64     `json:"avg_total_latency_ms"`
	StatusCodes      map[int]int `json:"status_codes"`
}

// CycleSummary reports one orchestrator pass over the endpoint set.
type CycleSummary struct {
	Checked int `json:"checked"`
	Up      int `json:"up"`
	Down    int `json:"down"`
}
