package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"endpointwatch/internal/auth"
	"endpointwatch/internal/domain"
	"endpointwatch/internal/httpapi/middleware"
	"endpointwatch/internal/monitor"
	"endpointwatch/internal/query"
	"endpointwatch/internal/store"
)

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
)

type Server struct {
	Logger   *zap.Logger
	Query    *query.Service
	Runner   *monitor.Runner
	Verifier auth.Verifier

	// Router options, zero values mean allow-all CORS and no rate limit.
	AllowedOrigins []string
	RatePerMinute  int
	RateBurst      int
}

func NewServer(l *zap.Logger, q *query.Service, runner *monitor.Runner, v auth.Verifier) *Server {
	return &Server{Logger: l, Query: q, Runner: runner, Verifier: v}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	if len(s.AllowedOrigins) == 0 {
		r.Use(cors.AllowAll().Handler)
	} else {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "X-API-Key", "Content-Type"},
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireOwner(s.Verifier))
		r.Use(middleware.RateLimit(s.RatePerMinute, s.RateBurst))

		r.Get("/api/logs", s.handleOwnerLogs)
		r.Get("/api/logs/endpoints/{endpointID}", s.handleEndpointLogs)
		r.Get("/api/stats/endpoints/{endpointID}", s.handleEndpointStats)
		r.Post("/api/checks/run", s.handleRunChecks)
	})

	return r
}

func (s *Server) handleEndpointLogs(w http.ResponseWriter, r *http.Request) {
	owner, ok := middleware.OwnerFrom(r.Context())
	if !ok {
		s.writeError(w, auth.ErrUnauthorized)
		return
	}
	endpointID := domain.EndpointID(chi.URLParam(r, "endpointID"))

	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	cursor := r.URL.Query().Get("cursor")

	page, err := s.Query.LogsByEndpoint(r.Context(), endpointID, owner, limit, cursor)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleOwnerLogs(w http.ResponseWriter, r *http.Request) {
	owner, ok := middleware.OwnerFrom(r.Context())
	if !ok {
		s.writeError(w, auth.ErrUnauthorized)
		return
	}

	start, end, err := parseWindow(r)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	cursor := r.URL.Query().Get("cursor")

	page, err := s.Query.LogsByOwnerRange(r.Context(), owner, start, end, limit, cursor)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleEndpointStats(w http.ResponseWriter, r *http.Request) {
	owner, ok := middleware.OwnerFrom(r.Context())
	if !ok {
		s.writeError(w, auth.ErrUnauthorized)
		return
	}
	endpointID := domain.EndpointID(chi.URLParam(r, "endpointID"))

	start, end, err := parseWindow(r)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}

	stats, err := s.Query.Stats(r.Context(), endpointID, owner, start, end)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleRunChecks(w http.ResponseWriter, r *http.Request) {
	summary, err := s.Runner.RunCycle(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.Logger.Info("manual_cycle",
		zap.Int("checked", summary.Checked),
		zap.Int("up", summary.Up),
		zap.Int("down", summary.Down),
	)
	writeJSON(w, http.StatusOK, summary)
}

// parseLimit clamps the page size to [1, maxPageLimit]; absent means default.
func parseLimit(raw string) (int, error) {
	if raw == "" {
		return defaultPageLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, errors.New("limit must be a positive integer")
	}
	if n > maxPageLimit {
		n = maxPageLimit
	}
	return n, nil
}

// parseWindow reads optional start/end RFC3339 query params.
func parseWindow(r *http.Request) (start, end time.Time, err error) {
	if raw := r.URL.Query().Get("start"); raw != "" {
		start, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("start must be RFC3339")
		}
	}
	if raw := r.URL.Query().Get("end"); raw != "" {
		end, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("end must be RFC3339")
		}
	}
	return start, end, nil
}

func (s *Server) writeBadRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
}

// writeError maps service errors onto status codes. Unknown errors are logged
// and reported as a generic 500 so internals never leak to callers.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, auth.ErrUnauthorized):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
	case errors.Is(err, store.ErrInvalidCursor):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid cursor"})
	case errors.Is(err, query.ErrInvalidRange):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "start must not be after end"})
	default:
		s.Logger.Error("request_failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
