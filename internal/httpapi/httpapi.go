// Package httpapi exposes a tiny read-only debug surface for local
// operation: liveness, Prometheus metrics, and single-record lookup by
// message_id. It is deliberately unauthenticated and unthrottled — an
// operator-facing sidecar, not a public API — unlike the CORS- and
// rate-limit-hardened chi composition this routing style is drawn from.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dlqrecover/pipeline/internal/errorsx"
	"github.com/dlqrecover/pipeline/internal/store"
)

// Server wires the debug routes over a RecordStore and a liveness probe.
type Server struct {
	records store.RecordStore
	logger  *slog.Logger
}

// New builds a Server.
func New(records store.RecordStore, logger *slog.Logger) *Server {
	return &Server{records: records, logger: logger}
}

// Handler assembles the chi router: global middleware (request ID, panic
// recovery, permissive CORS for local dashboards) then the three routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	}))

	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/debug/records/{id}", s.handleRecord)

	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	record, err := s.records.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, errorsx.ErrNotFound) {
			http.Error(w, "record not found", http.StatusNotFound)
			return
		}
		s.logger.Error("debug record lookup failed", "message_id", id, "error", err)
		http.Error(w, "store unavailable", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(record); err != nil {
		s.logger.Error("failed to encode debug record", "message_id", id, "error", err)
	}
}
