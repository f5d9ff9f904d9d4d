// Package server exposes the operational HTTP interface for the pipeline.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/wildsight/tigerwatch/internal/evidence"
	"github.com/wildsight/tigerwatch/internal/metrics"
	"github.com/wildsight/tigerwatch/internal/monitor"
	"github.com/wildsight/tigerwatch/internal/scheduler"
)

// Server wires HTTP handlers to the scheduler and stores.
type Server struct {
	router    chi.Router
	scheduler *scheduler.Scheduler
	evidence  monitor.EvidenceStore
	history   monitor.HistoryStore
	logger    *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	sched *scheduler.Scheduler,
	evidenceStore monitor.EvidenceStore,
	historyStore monitor.HistoryStore,
	logger *zap.Logger,
) *Server {
	s := &Server{
		scheduler: sched,
		evidence:  evidenceStore,
		history:   historyStore,
		logger:    logger,
	}

	r := chi.NewRouter()
	r.Use(s.loggingMiddleware)
	r.Use(recoverMiddleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/schedule", s.runCycle)
		r.Route("/facilities/{facility_id}", func(r chi.Router) {
			r.Post("/crawl", s.dispatchOne)
			r.Get("/evidence", s.listEvidence)
			r.Get("/history", s.listHistory)
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// runCycle triggers one scheduling pass, the same work the ticker loop
// performs on its own cadence.
func (s *Server) runCycle(w http.ResponseWriter, r *http.Request) {
	result := s.scheduler.RunCycle(r.Context())
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) dispatchOne(w http.ResponseWriter, r *http.Request) {
	facilityID := chi.URLParam(r, "facility_id")
	jobID, err := s.scheduler.Dispatch(r.Context(), facilityID)
	if err != nil {
		switch {
		case errors.Is(err, monitor.ErrFacilityNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, monitor.ErrNoSources):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id":      jobID,
		"facility_id": facilityID,
	})
}

func (s *Server) listEvidence(w http.ResponseWriter, r *http.Request) {
	facilityID := chi.URLParam(r, "facility_id")
	records, err := s.evidence.ListEvidence(r.Context(), facilityID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if r.URL.Query().Get("high_relevance") == "true" {
		records = evidence.HighRelevance(records)
	}
	if records == nil {
		records = []monitor.Evidence{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"facility_id": facilityID,
		"count":       len(records),
		"evidence":    records,
	})
}

func (s *Server) listHistory(w http.ResponseWriter, r *http.Request) {
	facilityID := chi.URLParam(r, "facility_id")
	rows, err := s.history.ListHistory(r.Context(), facilityID, 50)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if rows == nil {
		rows = []monitor.CrawlHistory{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"facility_id": facilityID,
		"count":       len(rows),
		"history":     rows,
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				writeError(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
