package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"endpointwatch/internal/auth"
	"endpointwatch/internal/domain"
	"endpointwatch/internal/store"
)

// ErrInvalidRange is returned when a caller supplies start > end.
var ErrInvalidRange = errors.New("invalid time range")

const defaultStatsPageSize = 200

// Service answers authorized read queries against the telemetry store. Every
// endpoint-scoped call verifies existence and ownership before touching a
// single record.
type Service struct {
	Log       *zap.Logger
	Endpoints store.EndpointStore
	Telemetry store.TelemetryStore

	// StatsPageSize is the internal page size used when streaming a stats
	// window; it bounds memory, not the window.
	StatsPageSize int
}

func NewService(log *zap.Logger, eps store.EndpointStore, tel store.TelemetryStore) *Service {
	return &Service{
		Log:           log,
		Endpoints:     eps,
		Telemetry:     tel,
		StatsPageSize: defaultStatsPageSize,
	}
}

func (s *Service) authorize(ctx context.Context, endpointID domain.EndpointID, ownerID domain.OwnerID) error {
	e, err := s.Endpoints.Get(ctx, endpointID)
	if err != nil {
		return err
	}
	if e.OwnerID != ownerID {
		return fmt.Errorf("%w: endpoint %s", auth.ErrUnauthorized, endpointID)
	}
	return nil
}

// LogsByEndpoint returns one page of an endpoint's history, newest first.
func (s *Service) LogsByEndpoint(ctx context.Context, endpointID domain.EndpointID, ownerID domain.OwnerID, limit int, cursor string) (*store.Page, error) {
	if err := s.authorize(ctx, endpointID, ownerID); err != nil {
		return nil, err
	}
	return s.Telemetry.QueryByEndpoint(ctx, endpointID, ownerID, limit, cursor)
}

// LogsByOwnerRange returns one page of the caller's history across all their
// endpoints within [start, end]. A zero end leaves the range open.
func (s *Service) LogsByOwnerRange(ctx context.Context, ownerID domain.OwnerID, start, end time.Time, limit int, cursor string) (*store.Page, error) {
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return nil, ErrInvalidRange
	}
	return s.Telemetry.QueryByOwnerRange(ctx, ownerID, start, end, limit, cursor)
}

// Stats folds the endpoint's records within [start, end] into aggregate
// statistics. Pages stream through the accumulator one at a time; the scan
// runs newest-first and stops at the first record older than start.
func (s *Service) Stats(ctx context.Context, endpointID domain.EndpointID, ownerID domain.OwnerID, start, end time.Time) (*domain.LogStats, error) {
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return nil, ErrInvalidRange
	}
	if err := s.authorize(ctx, endpointID, ownerID); err != nil {
		return nil, err
	}

	pageSize := s.StatsPageSize
	if pageSize <= 0 {
		pageSize = defaultStatsPageSize
	}

	acc := NewAccumulator()
	cursor := ""
scan:
	for {
		page, err := s.Telemetry.QueryByEndpoint(ctx, endpointID, ownerID, pageSize, cursor)
		if err != nil {
			return nil, err
		}
		for i := range page.Records {
			rec := &page.Records[i]
			if !end.IsZero() && rec.Timestamp.After(end) {
				continue
			}
			if !start.IsZero() && rec.Timestamp.Before(start) {
				break scan
			}
			acc.Add(rec)
		}
		if !page.HasMore {
			break
		}
		cursor = page.NextCursor
	}

	stats := acc.Stats()
	s.Log.Debug("stats_computed",
		zap.String("endpoint_id", string(endpointID)),
		zap.Int("total_checks", stats.TotalChecks),
	)
	return &stats, nil
}
