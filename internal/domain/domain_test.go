package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestNewLogID_StablePerEndpointAndTime(t *testing.T) {
	ts := time.Date(2025, 8, 18, 12, 0, 0, 500, time.UTC)
	a := NewLogID(EndpointID("ep-1"), ts)
	b := NewLogID(EndpointID("ep-1"), ts)
	if a != b {
		t.Fatalf("same inputs produced different IDs: %q vs %q", a, b)
	}
	if a == NewLogID(EndpointID("ep-2"), ts) {
		t.Fatalf("different endpoints produced the same ID")
	}
	if a == NewLogID(EndpointID("ep-1"), ts.Add(time.Nanosecond)) {
		t.Fatalf("different timestamps produced the same ID")
	}
}

func TestNewLogID_NormalizesZone(t *testing.T) {
	utc := time.Date(2025, 8, 18, 12, 0, 0, 0, time.UTC)
	tehran := utc.In(time.FixedZone("IRST", 3*3600+1800))
	if NewLogID("ep-1", utc) != NewLogID("ep-1", tehran) {
		t.Fatalf("IDs differ across zones for the same instant")
	}
}

func TestLogRecord_JSONRoundTrip(t *testing.T) {
	code := 200
	resp := 123.45
	valid := true
	issuer := "Let's Encrypt"
	want := LogRecord{
		LogID:      "20250818T120000.000000000-ep-1",
		EndpointID: EndpointID("ep-1"),
		OwnerID:    OwnerID("user-1"),
		Timestamp:  time.Date(2025, 8, 18, 12, 0, 0, 0, time.UTC),
		CheckResult: CheckResult{
			StatusCode:     &code,
			ResponseTimeMS: &resp,
			Up:             true,
			CertValid:      &valid,
			CertIssuer:     &issuer,
			Secure:         true,
		},
	}
	b, err := json.Marshal(want)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got LogRecord
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.LogID != want.LogID || got.EndpointID != want.EndpointID || !got.Up {
		t.Fatalf("mismatch after round-trip:\nwant=%+v\ngot =%+v", want, got)
	}
	if got.StatusCode == nil || *got.StatusCode != 200 {
		t.Fatalf("status code lost: %+v", got.StatusCode)
	}
	// absent fields stay absent
	if got.DNSLatencyMS != nil || got.CertExpiry != nil {
		t.Fatalf("absent fields became present: %+v", got)
	}
}
