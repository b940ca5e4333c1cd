package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"endpointwatch/internal/auth"
	"endpointwatch/internal/domain"
	"endpointwatch/internal/monitor"
	"endpointwatch/internal/query"
	"endpointwatch/internal/store/memory"
)

// ---- test helpers ----

type fakeProber struct {
	out domain.CheckResult
}

func (f *fakeProber) Probe(_ context.Context, _ string) (domain.CheckResult, error) {
	return f.out, nil
}

type fixture struct {
	store *memory.Store
	ts    *httptest.Server
}

func setup(t *testing.T, prober monitor.Prober) *fixture {
	t.Helper()
	log := zap.NewNop()
	st := memory.New()

	verifier := auth.NewStaticVerifier(map[string]domain.OwnerID{
		"key-alice": "alice",
		"key-bob":   "bob",
	})
	srv := NewServer(log,
		query.NewService(log, st, st),
		monitor.NewRunner(log, st, st, prober, time.Second, 4),
		verifier,
	)

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return &fixture{store: st, ts: ts}
}

func (f *fixture) seedEndpoint(t *testing.T, id, owner string, active bool) {
	t.Helper()
	err := f.store.Put(context.Background(), &domain.Endpoint{
		ID:       domain.EndpointID(id),
		OwnerID:  domain.OwnerID(owner),
		URL:      "https://" + id + ".example.com",
		IsActive: active,
	})
	if err != nil {
		t.Fatalf("seed endpoint: %v", err)
	}
}

func (f *fixture) seedRecord(t *testing.T, id, owner string, ts time.Time, up bool) {
	t.Helper()
	code := 200
	if !up {
		code = 503
	}
	lat := 20.0
	err := f.store.Append(context.Background(), &domain.LogRecord{
		LogID:      domain.NewLogID(domain.EndpointID(id), ts),
		EndpointID: domain.EndpointID(id),
		OwnerID:    domain.OwnerID(owner),
		Timestamp:  ts,
		CheckResult: domain.CheckResult{
			Up:             up,
			StatusCode:     &code,
			ResponseTimeMS: &lat,
		},
	})
	if err != nil {
		t.Fatalf("seed record: %v", err)
	}
}

func get(t *testing.T, url, key string) *http.Response {
	t.Helper()
	req, _ := http.NewRequest(http.MethodGet, url, nil)
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

type pageResp struct {
	Logs []struct {
		LogID      string   `json:"log_id"`
		EndpointID string   `json:"endpoint_id"`
		IsUp       bool     `json:"is_up"`
		StatusCode *int     `json:"status_code"`
		Latency    *float64 `json:"response_time_ms"`
	} `json:"logs"`
	Count      int    `json:"count"`
	NextCursor string `json:"next_cursor"`
	HasMore    bool   `json:"has_more"`
}

// ---- tests ----

func TestHealthz_NoAuth(t *testing.T) {
	f := setup(t, &fakeProber{})
	resp := get(t, f.ts.URL+"/healthz", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("want 200, got %d", resp.StatusCode)
	}
}

func TestEndpointLogs_RequiresCredential(t *testing.T) {
	f := setup(t, &fakeProber{})
	resp := get(t, f.ts.URL+"/api/logs/endpoints/ep-1", "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("want 401, got %d", resp.StatusCode)
	}
}

func TestEndpointLogs_PageAndCursor(t *testing.T) {
	f := setup(t, &fakeProber{})
	f.seedEndpoint(t, "ep-1", "alice", true)
	base := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		f.seedRecord(t, "ep-1", "alice", base.Add(time.Duration(i)*time.Minute), true)
	}

	resp := get(t, f.ts.URL+"/api/logs/endpoints/ep-1?limit=3", "key-alice")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("want 200, got %d", resp.StatusCode)
	}
	var page pageResp
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if page.Count != 3 || !page.HasMore || page.NextCursor == "" {
		t.Fatalf("first page: %+v", page)
	}
	// newest first
	if got := page.Logs[0].LogID; got != string(domain.NewLogID("ep-1", base.Add(4*time.Minute))) {
		t.Fatalf("first record = %s", got)
	}

	resp = get(t, f.ts.URL+"/api/logs/endpoints/ep-1?limit=3&cursor="+page.NextCursor, "key-alice")
	var rest pageResp
	if err := json.NewDecoder(resp.Body).Decode(&rest); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rest.Count != 2 || rest.HasMore {
		t.Fatalf("second page: %+v", rest)
	}
}

func TestEndpointLogs_Ownership(t *testing.T) {
	f := setup(t, &fakeProber{})
	f.seedEndpoint(t, "ep-1", "alice", true)

	// bob cannot read alice's endpoint
	resp := get(t, f.ts.URL+"/api/logs/endpoints/ep-1", "key-bob")
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("want 403, got %d", resp.StatusCode)
	}

	// unknown endpoint is 404 for everyone
	resp = get(t, f.ts.URL+"/api/logs/endpoints/nope", "key-alice")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("want 404, got %d", resp.StatusCode)
	}
}

func TestEndpointLogs_BadParams(t *testing.T) {
	f := setup(t, &fakeProber{})
	f.seedEndpoint(t, "ep-1", "alice", true)

	for name, q := range map[string]string{
		"garbage cursor": "?cursor=%21%21not-base64",
		"zero limit":     "?limit=0",
		"nan limit":      "?limit=ten",
	} {
		resp := get(t, f.ts.URL+"/api/logs/endpoints/ep-1"+q, "key-alice")
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: want 400, got %d", name, resp.StatusCode)
		}
	}
}

func TestOwnerLogs_RangeWindow(t *testing.T) {
	f := setup(t, &fakeProber{})
	f.seedEndpoint(t, "ep-1", "alice", true)
	f.seedEndpoint(t, "ep-2", "alice", true)
	base := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	f.seedRecord(t, "ep-1", "alice", base, true)
	f.seedRecord(t, "ep-2", "alice", base.Add(time.Hour), false)
	f.seedRecord(t, "ep-1", "alice", base.Add(2*time.Hour), true)
	f.seedRecord(t, "ep-bob", "bob", base.Add(time.Hour), true)

	url := f.ts.URL + "/api/logs?start=" + base.Add(30*time.Minute).Format(time.RFC3339) +
		"&end=" + base.Add(90*time.Minute).Format(time.RFC3339)
	resp := get(t, url, "key-alice")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("want 200, got %d", resp.StatusCode)
	}
	var page pageResp
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if page.Count != 1 || page.Logs[0].EndpointID != "ep-2" {
		t.Fatalf("window page: %+v", page)
	}

	// reversed window
	url = f.ts.URL + "/api/logs?start=" + base.Add(time.Hour).Format(time.RFC3339) +
		"&end=" + base.Format(time.RFC3339)
	if resp := get(t, url, "key-alice"); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("reversed window: want 400, got %d", resp.StatusCode)
	}

	// unparseable timestamp
	if resp := get(t, f.ts.URL+"/api/logs?start=yesterday", "key-alice"); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad start: want 400, got %d", resp.StatusCode)
	}
}

func TestEndpointStats(t *testing.T) {
	f := setup(t, &fakeProber{})
	f.seedEndpoint(t, "ep-1", "alice", true)
	base := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	f.seedRecord(t, "ep-1", "alice", base, true)
	f.seedRecord(t, "ep-1", "alice", base.Add(time.Minute), true)
	f.seedRecord(t, "ep-1", "alice", base.Add(2*time.Minute), false)

	resp := get(t, f.ts.URL+"/api/stats/endpoints/ep-1", "key-alice")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("want 200, got %d", resp.StatusCode)
	}
	var stats domain.LogStats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.TotalChecks != 3 || stats.SuccessfulChecks != 2 || stats.FailedChecks != 1 {
		t.Fatalf("counts: %+v", stats)
	}
	if stats.UptimePercentage < 66.0 || stats.UptimePercentage > 67.0 {
		t.Fatalf("uptime: %v", stats.UptimePercentage)
	}
	if stats.StatusCodes[200] != 2 || stats.StatusCodes[503] != 1 {
		t.Fatalf("status codes: %+v", stats.StatusCodes)
	}
}

func TestRunChecks_AppendsRecords(t *testing.T) {
	code := 200
	lat := 5.0
	f := setup(t, &fakeProber{out: domain.CheckResult{
		Up:             true,
		StatusCode:     &code,
		ResponseTimeMS: &lat,
	}})
	f.seedEndpoint(t, "ep-1", "alice", true)
	f.seedEndpoint(t, "ep-2", "alice", true)
	f.seedEndpoint(t, "ep-off", "alice", false)

	req, _ := http.NewRequest(http.MethodPost, f.ts.URL+"/api/checks/run", nil)
	req.Header.Set("X-API-Key", "key-alice")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("want 200, got %d", resp.StatusCode)
	}

	var summary domain.CycleSummary
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if summary.Checked != 2 || summary.Up != 2 || summary.Down != 0 {
		t.Fatalf("summary: %+v", summary)
	}

	// the cycle's records are immediately queryable
	r2 := get(t, f.ts.URL+"/api/logs/endpoints/ep-1", "key-alice")
	var page pageResp
	if err := json.NewDecoder(r2.Body).Decode(&page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if page.Count != 1 || !page.Logs[0].IsUp {
		t.Fatalf("cycle record: %+v", page)
	}
}
