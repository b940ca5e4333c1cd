package store

import (
	"context"
	"errors"
	"time"

	"endpointwatch/internal/domain"
)

// Storage ports. Adapters live in the memory, sqlite, and postgres
// subpackages.

var (
	// ErrNotFound is returned when a requested endpoint does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCursor is returned for a malformed or stale pagination token.
	ErrInvalidCursor = errors.New("invalid cursor")
)

// DefaultLimit is the page size every adapter falls back to when a caller
// passes limit <= 0.
const DefaultLimit = 50

// Page is one slice of an ordered scan. NextCursor resumes the scan after the
// last record in Records; it is empty when HasMore is false.
type Page struct {
	Records    []domain.LogRecord `json:"logs"`
	Count      int                `json:"count"`
	NextCursor string             `json:"next_cursor,omitempty"`
	HasMore    bool               `json:"has_more"`
}

// TelemetryStore is the append-only log of probe results.
//
// Append is idempotent by LogID: re-inserting a previously seen identifier is
// a no-op. Both queries order newest-timestamp-first with LogID as the
// tiebreaker, and scope every row by owner inside the query predicate, so a
// record belonging to another owner is unreachable even with a guessed cursor.
type TelemetryStore interface {
	Append(ctx context.Context, rec *domain.LogRecord) error
	QueryByEndpoint(ctx context.Context, endpointID domain.EndpointID, ownerID domain.OwnerID, limit int, cursor string) (*Page, error)
	QueryByOwnerRange(ctx context.Context, ownerID domain.OwnerID, start, end time.Time, limit int, cursor string) (*Page, error)
}

// EndpointStore is the read side of the endpoint directory. The CRUD surface
// for endpoints lives outside this service; Put exists for seeding and tests.
type EndpointStore interface {
	Put(ctx context.Context, e *domain.Endpoint) error
	Get(ctx context.Context, id domain.EndpointID) (*domain.Endpoint, error)
	ListActive(ctx context.Context) ([]domain.Endpoint, error)
}
