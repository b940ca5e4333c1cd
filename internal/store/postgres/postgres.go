package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"endpointwatch/internal/domain"
	"endpointwatch/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS endpoints (
    endpoint_id TEXT PRIMARY KEY,
    owner_id    TEXT NOT NULL,
    url         TEXT NOT NULL,
    is_active   BOOLEAN NOT NULL DEFAULT TRUE,
    created_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_endpoints_owner ON endpoints(owner_id);

CREATE TABLE IF NOT EXISTS log_records (
    log_id                TEXT PRIMARY KEY,
    endpoint_id           TEXT NOT NULL,
    owner_id              TEXT NOT NULL,
    ts                    TIMESTAMPTZ NOT NULL,
    status_code           INTEGER,
    response_time_ms      DOUBLE PRECISION,
    dns_latency_ms        DOUBLE PRECISION,
    connection_latency_ms DOUBLE PRECISION,
    total_latency_ms      DOUBLE PRECISION,
    is_up                 BOOLEAN NOT NULL,
    cert_valid            BOOLEAN,
    cert_expiry           TIMESTAMPTZ,
    cert_issuer           TEXT,
    tls_version           TEXT,
    is_secure             BOOLEAN NOT NULL,
    error                 TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_logs_endpoint_owner_ts
    ON log_records(endpoint_id, owner_id, ts DESC, log_id DESC);
CREATE INDEX IF NOT EXISTS idx_logs_owner_ts
    ON log_records(owner_id, ts DESC, log_id DESC);
`

// Store persists endpoints and telemetry in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ store.TelemetryStore = (*Store)(nil)
var _ store.EndpointStore = (*Store)(nil)

func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// ---- EndpointStore ----

func (s *Store) Put(ctx context.Context, e *domain.Endpoint) error {
	if e.ID == "" {
		e.ID = domain.EndpointID(uuid.NewString())
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO endpoints (endpoint_id, owner_id, url, is_active, created_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (endpoint_id) DO UPDATE SET
    owner_id = EXCLUDED.owner_id,
    url = EXCLUDED.url,
    is_active = EXCLUDED.is_active`,
		string(e.ID), string(e.OwnerID), e.URL, e.IsActive, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert endpoint %s: %w", e.ID, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id domain.EndpointID) (*domain.Endpoint, error) {
	row := s.pool.QueryRow(ctx, `
SELECT endpoint_id, owner_id, url, is_active, created_at
  FROM endpoints WHERE endpoint_id = $1`, string(id))
	var e domain.Endpoint
	err := row.Scan(&e.ID, &e.OwnerID, &e.URL, &e.IsActive, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get endpoint %s: %w", id, err)
	}
	return &e, nil
}

func (s *Store) ListActive(ctx context.Context) ([]domain.Endpoint, error) {
	rows, err := s.pool.Query(ctx, `
SELECT endpoint_id, owner_id, url, is_active, created_at
  FROM endpoints WHERE is_active ORDER BY endpoint_id`)
	if err != nil {
		return nil, fmt.Errorf("list active endpoints: %w", err)
	}
	defer rows.Close()

	var out []domain.Endpoint
	for rows.Next() {
		var e domain.Endpoint
		if err := rows.Scan(&e.ID, &e.OwnerID, &e.URL, &e.IsActive, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan endpoint: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ---- TelemetryStore ----

func (s *Store) Append(ctx context.Context, rec *domain.LogRecord) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO log_records (
    log_id, endpoint_id, owner_id, ts,
    status_code, response_time_ms, dns_latency_ms, connection_latency_ms,
    total_latency_ms, is_up, cert_valid, cert_expiry, cert_issuer,
    tls_version, is_secure, error)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
ON CONFLICT (log_id) DO NOTHING`,
		rec.LogID, string(rec.EndpointID), string(rec.OwnerID), rec.Timestamp,
		rec.StatusCode, rec.ResponseTimeMS, rec.DNSLatencyMS,
		rec.ConnectLatencyMS, rec.TotalLatencyMS, rec.Up,
		rec.CertValid, rec.CertExpiry, rec.CertIssuer,
		rec.TLSVersion, rec.Secure, rec.Error)
	if err != nil {
		return fmt.Errorf("append record %s: %w", rec.LogID, err)
	}
	return nil
}

func (s *Store) QueryByEndpoint(ctx context.Context, endpointID domain.EndpointID, ownerID domain.OwnerID, limit int, cursor string) (*store.Page, error) {
	if limit <= 0 {
		limit = store.DefaultLimit
	}
	query := selectRecords + ` WHERE endpoint_id = $1 AND owner_id = $2`
	args := []any{string(endpointID), string(ownerID)}

	query, args, err := applyCursor(query, args, cursor)
	if err != nil {
		return nil, err
	}
	return s.page(ctx, query, args, limit)
}

func (s *Store) QueryByOwnerRange(ctx context.Context, ownerID domain.OwnerID, start, end time.Time, limit int, cursor string) (*store.Page, error) {
	if limit <= 0 {
		limit = store.DefaultLimit
	}
	query := selectRecords + ` WHERE owner_id = $1`
	args := []any{string(ownerID)}
	if !start.IsZero() {
		args = append(args, start)
		query += fmt.Sprintf(` AND ts >= $%d`, len(args))
	}
	if !end.IsZero() {
		args = append(args, end)
		query += fmt.Sprintf(` AND ts <= $%d`, len(args))
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
	args = append(args, ts, logID)
	query += fmt.Sprintf(` AND (ts, log_id) < ($%d, $%d)`, len(args)-1, len(args))
	return query, args, nil
}

func (s *Store) page(ctx context.Context, query string, args []any, limit int) (*store.Page, error) {
	args = append(args, limit+1)
	query += fmt.Sprintf(` ORDER BY ts DESC, log_id DESC LIMIT $%d`, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	page := &store.Page{Records: make([]domain.LogRecord, 0, limit)}
	for rows.Next() {
		var rec domain.LogRecord
		err := rows.Scan(&rec.LogID, &rec.EndpointID, &rec.OwnerID, &rec.Timestamp,
			&rec.StatusCode, &rec.ResponseTimeMS, &rec.DNSLatencyMS,
			&rec.ConnectLatencyMS, &rec.TotalLatencyMS, &rec.Up,
			&rec.CertValid, &rec.CertExpiry, &rec.CertIssuer,
			&rec.TLSVersion, &rec.Secure, &rec.Error)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		if len(page.Records) == limit {
			page.HasMore = true
			break
		}
		page.Records = append(page.Records, rec)
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
