package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"endpointwatch/internal/domain"
	"endpointwatch/internal/store"
)

// Store keeps endpoints and log records in process memory. It is the default
// when no database is configured, and what most tests run against.
type Store struct {
	mu        sync.RWMutex
	endpoints map[domain.EndpointID]*domain.Endpoint
	records   map[string]*domain.LogRecord
}

func New() *Store {
	return &Store{
		endpoints: make(map[domain.EndpointID]*domain.Endpoint),
		records:   make(map[string]*domain.LogRecord, 128),
	}
}

var _ store.TelemetryStore = (*Store)(nil)
var _ store.EndpointStore = (*Store)(nil)

// ---- EndpointStore ----

func (m *Store) Put(ctx context.Context, e *domain.Endpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.ID == "" {
		e.ID = domain.EndpointID(uuid.NewString())
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	cp := *e
	m.endpoints[e.ID] = &cp
	return nil
}

func (m *Store) Get(ctx context.Context, id domain.EndpointID) (*domain.Endpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.endpoints[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *Store) ListActive(ctx context.Context) ([]domain.Endpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Endpoint, 0, len(m.endpoints))
	for _, e := range m.endpoints {
		if e.IsActive {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ---- TelemetryStore ----

func (m *Store) Append(ctx context.Context, rec *domain.LogRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, seen := m.records[rec.LogID]; seen {
		// redelivery of the same probe attempt
		return nil
	}
	cp := *rec
	m.records[rec.LogID] = &cp
	return nil
}

func (m *Store) QueryByEndpoint(ctx context.Context, endpointID domain.EndpointID, ownerID domain.OwnerID, limit int, cursor string) (*store.Page, error) {
	return m.query(limit, cursor, func(r *domain.LogRecord) bool {
		return r.EndpointID == endpointID && r.OwnerID == ownerID
	})
}

func (m *Store) QueryByOwnerRange(ctx context.Context, ownerID domain.OwnerID, start, end time.Time, limit int, cursor string) (*store.Page, error) {
	return m.query(limit, cursor, func(r *domain.LogRecord) bool {
		if r.OwnerID != ownerID {
			return false
		}
		if !start.IsZero() && r.Timestamp.Before(start) {
			return false
		}
		if !end.IsZero() && r.Timestamp.After(end) {
			return false
		}
		return true
	})
}

func (m *Store) query(limit int, cursor string, match func(*domain.LogRecord) bool) (*store.Page, error) {
	if limit <= 0 {
		limit = store.DefaultLimit
	}

	var afterTS time.Time
	var afterID string
	if cursor != "" {
		ts, id, err := store.DecodeCursor(cursor)
		if err != nil {
			return nil, err
		}
		afterTS, afterID = ts, id
	}

	m.mu.RLock()
	matched := make([]*domain.LogRecord, 0, limit)
	for _, r := range m.records {
		if match(r) {
			matched = append(matched, r)
		}
	}
	m.mu.RUnlock()

	// newest first, log_id as tiebreaker
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].Timestamp.Equal(matched[j].Timestamp) {
			return matched[i].Timestamp.After(matched[j].Timestamp)
		}
		return matched[i].LogID > matched[j].LogID
	})

	page := &store.Page{Records: make([]domain.LogRecord, 0, limit)}
	for _, r := range matched {
		if cursor != "" && !descAfter(r.Timestamp, r.LogID, afterTS, afterID) {
			continue
		}
		if len(page.Records) == limit {
			page.HasMore = true
			break
		}
		page.Records = append(page.Records, *r)
	}
	page.Count = len(page.Records)
	if page.HasMore {
		last := page.Records[len(page.Records)-1]
		page.NextCursor = store.EncodeCursor(last.Timestamp, last.LogID)
	}
	return page, nil
}

// descAfter reports whether (ts, id) sorts strictly after the cursor position
// in the newest-first order.
func descAfter(ts time.Time, id string, curTS time.Time, curID string) bool {
	if ts.Before(curTS) {
		return true
	}
	return ts.Equal(curTS) && id < curID
}
