package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"endpointwatch/internal/domain"
	"endpointwatch/internal/store"
)

// Timestamps are stored as fixed-width UTC strings so that string order is
// chronological order and composite indexes can drive the descending scans.
const tsLayout = "2006-01-02T15:04:05.000000000Z"

const schema = `
CREATE TABLE IF NOT EXISTS endpoints (
    endpoint_id TEXT PRIMARY KEY,
    owner_id    TEXT NOT NULL,
    url         TEXT NOT NULL,
    is_active   INTEGER NOT NULL DEFAULT 1,
    created_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_endpoints_owner ON endpoints(owner_id);
CREATE INDEX IF NOT EXISTS idx_endpoints_active ON endpoints(is_active);

CREATE TABLE IF NOT EXISTS log_records (
    log_id              TEXT PRIMARY KEY,
    endpoint_id         TEXT NOT NULL,
    owner_id            TEXT NOT NULL,
    ts                  TEXT NOT NULL,
    status_code         INTEGER,
    response_time_ms    REAL,
    dns_latency_ms      REAL,
    connection_latency_ms REAL,
    total_latency_ms    REAL,
    is_up               INTEGER NOT NULL,
    cert_valid          INTEGER,
    cert_expiry         TEXT,
    cert_issuer         TEXT,
    tls_version         TEXT,
    is_secure           INTEGER NOT NULL,
    error               TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_logs_endpoint_owner_ts
    ON log_records(endpoint_id, owner_id, ts DESC, log_id DESC);
CREATE INDEX IF NOT EXISTS idx_logs_owner_ts
    ON log_records(owner_id, ts DESC, log_id DESC);
`

// Store persists endpoints and telemetry in SQLite.
type Store struct {
	db *sql.DB
}

var _ store.TelemetryStore = (*Store)(nil)
var _ store.EndpointStore = (*Store)(nil)

// Open opens (or creates) the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite at %q: %w", path, err)
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying pragma %q: %w", p, err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// ---- EndpointStore ----

func (s *Store) Put(ctx context.Context, e *domain.Endpoint) error {
	if e.ID == "" {
		e.ID = domain.EndpointID(uuid.NewString())
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO endpoints (endpoint_id, owner_id, url, is_active, created_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(endpoint_id) DO UPDATE SET
    owner_id = excluded.owner_id,
    url = excluded.url,
    is_active = excluded.is_active`,
		string(e.ID), string(e.OwnerID), e.URL, boolToInt(e.IsActive),
		e.CreatedAt.UTC().Format(tsLayout),
	)
	if err != nil {
		return fmt.Errorf("upsert endpoint %s: %w", e.ID, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id domain.EndpointID) (*domain.Endpoint, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT endpoint_id, owner_id, url, is_active, created_at
  FROM endpoints WHERE endpoint_id = ?`, string(id))
	e, err := scanEndpoint(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get endpoint %s: %w", id, err)
	}
	return e, nil
}

func (s *Store) ListActive(ctx context.Context) ([]domain.Endpoint, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT endpoint_id, owner_id, url, is_active, created_at
  FROM endpoints WHERE is_active = 1 ORDER BY endpoint_id`)
	if err != nil {
		return nil, fmt.Errorf("list active endpoints: %w", err)
	}
	defer rows.Close()

	var out []domain.Endpoint
	for rows.Next() {
		e, err := scanEndpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("scan endpoint: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// ---- TelemetryStore ----

func (s *Store) Append(ctx context.Context, rec *domain.LogRecord) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO log_records (
    log_id, endpoint_id, owner_id, ts,
    status_code, response_time_ms, dns_latency_ms, connection_latency_ms,
    total_latency_ms, is_up, cert_valid, cert_expiry, cert_issuer,
    tls_version, is_secure, error)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(log_id) DO NOTHING`,
		rec.LogID, string(rec.EndpointID), string(rec.OwnerID),
		rec.Timestamp.UTC().Format(tsLayout),
		rec.StatusCode, rec.ResponseTimeMS, rec.DNSLatencyMS,
		rec.ConnectLatencyMS, rec.TotalLatencyMS, boolToInt(rec.Up),
		nullableBool(rec.CertValid), nullableTime(rec.CertExpiry),
		rec.CertIssuer, rec.TLSVersion, boolToInt(rec.Secure), rec.Error,
	)
	if err != nil {
		return fmt.Errorf("append record %s: %w", rec.LogID, err)
	}
	return nil
}

func (s *Store) QueryByEndpoint(ctx context.Context, endpointID domain.EndpointID, ownerID domain.OwnerID, limit int, cursor string) (*store.Page, error) {
	limit = normalizeLimit(limit)
	query := selectRecords + ` WHERE endpoint_id = ? AND owner_id = ?`
	args := []any{string(endpointID), string(ownerID)}

	query, args, err := applyCursor(query, args, cursor)
	if err != nil {
		return nil, err
	}
	return s.page(ctx, query, args, limit)
}

func (s *Store) QueryByOwnerRange(ctx context.Context, ownerID domain.OwnerID, start, end time.Time, limit int, cursor string) (*store.Page, error) {
	limit = normalizeLimit(limit)
	query := selectRecords + ` WHERE owner_id = ?`
	args := []any{string(ownerID)}
	if !start.IsZero() {
		query += ` AND ts >= ?`
		args = append(args, start.UTC().Format(tsLayout))
	}
	if !end.IsZero() {
		query += ` AND ts <= ?`
		args = append(args, end.UTC().Format(tsLayout))
	}

	query, args, err := applyCursor(query, args, cursor)
	if err != nil {
		return nil, err
	}
	return s.page(ctx, query, args, limit)
}

const selectRecords = `
SELECT log_id, endpoint_id, owner_id, ts,
       status_code, response_time_ms, dns_latency_ms, connection_latency_ms,
       total_latency_ms, is_up, cert_valid, cert_expiry, cert_issuer,
       tls_version, is_secure, error
  FROM log_records`

func applyCursor(query string, args []any, cursor string) (string, []any, error) {
	if cursor == "" {
		return query, args, nil
	}
	ts, logID, err := store.DecodeCursor(cursor)
	if err != nil {
		return "", nil, err
	}
	key := ts.UTC().Format(tsLayout)
	query += ` AND (ts < ? OR (ts = ? AND log_id < ?))`
	args = append(args, key, key, logID)
	return query, args, nil
}

// page runs query fetching one extra row to decide has_more, and builds the
// continuation cursor from the last returned record.
func (s *Store) page(ctx context.Context, query string, args []any, limit int) (*store.Page, error) {
	query += ` ORDER BY ts DESC, log_id DESC LIMIT ?`
	args = append(args, limit+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	page := &store.Page{Records: make([]domain.LogRecord, 0, limit)}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		if len(page.Records) == limit {
			page.HasMore = true
			break
		}
		page.Records = append(page.Records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	page.Count = len(page.Records)
	if page.HasMore {
		last := page.Records[len(page.Records)-1]
		page.NextCursor = store.EncodeCursor(last.Timestamp, last.LogID)
	}
	return page, nil
}

// ---- scanning helpers ----

type scanner interface {
	Scan(dest ...any) error
}

func scanEndpoint(row scanner) (*domain.Endpoint, error) {
	var e domain.Endpoint
	var active int
	var createdAt string
	if err := row.Scan(&e.ID, &e.OwnerID, &e.URL, &active, &createdAt); err != nil {
		return nil, err
	}
	e.IsActive = active != 0
	t, err := time.Parse(tsLayout, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at %q: %w", createdAt, err)
	}
	e.CreatedAt = t
	return &e, nil
}

func scanRecord(row scanner) (*domain.LogRecord, error) {
	var (
		rec        domain.LogRecord
		ts         string
		statusCode sql.NullInt64
		respMS     sql.NullFloat64
		dnsMS      sql.NullFloat64
		connMS     sql.NullFloat64
		totalMS    sql.NullFloat64
		up         int
		certValid  sql.NullInt64
		certExpiry sql.NullString
		certIssuer sql.NullString
		tlsVersion sql.NullString
		secure     int
	)
	err := row.Scan(&rec.LogID, &rec.EndpointID, &rec.OwnerID, &ts,
		&statusCode, &respMS, &dnsMS, &connMS, &totalMS, &up,
		&certValid, &certExpiry, &certIssuer, &tlsVersion, &secure, &rec.Error)
	if err != nil {
		return nil, err
	}

	rec.Timestamp, err = time.Parse(tsLayout, ts)
	if err != nil {
		return nil, fmt.Errorf("parsing ts %q: %w", ts, err)
	}
	rec.Up = up != 0
	rec.Secure = secure != 0
	if statusCode.Valid {
		v := int(statusCode.Int64)
		rec.StatusCode = &v
	}
	rec.ResponseTimeMS = floatPtr(respMS)
	rec.DNSLatencyMS = floatPtr(dnsMS)
	rec.ConnectLatencyMS = floatPtr(connMS)
	rec.TotalLatencyMS = floatPtr(totalMS)
	if certValid.Valid {
		v := certValid.Int64 != 0
		rec.CertValid = &v
	}
	if certExpiry.Valid {
		t, err := time.Parse(tsLayout, certExpiry.String)
		if err != nil {
			return nil, fmt.Errorf("parsing cert_expiry %q: %w", certExpiry.String, err)
		}
		rec.CertExpiry = &t
	}
	if certIssuer.Valid {
		rec.CertIssuer = &certIssuer.String
	}
	if tlsVersion.Valid {
		rec.TLSVersion = &tlsVersion.String
	}
	return &rec, nil
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableBool(b *bool) any {
	if b == nil {
		return nil
	}
	return boolToInt(*b)
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(tsLayout)
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return store.DefaultLimit
	}
	return limit
}
