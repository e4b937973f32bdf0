package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"order-bridge/internal/domain/model"
	"order-bridge/internal/domain/ports/repository"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 200
)

// Batcher is the part of the accumulator the admin API drives.
type Batcher interface {
	Pending() int
	Flush() int
}

// Server exposes health, metrics and a small operator API.
type Server struct {
	runs    repository.BatchRunRepository
	batcher Batcher
	guard   *AuthGuard
	log     *zerolog.Logger
	started time.Time
}

func NewServer(runs repository.BatchRunRepository, batcher Batcher, guard *AuthGuard, logger *zerolog.Logger) *Server {
	l := logger.With().Str("component", "admin_api").Logger()
	return &Server{runs: runs, batcher: batcher, guard: guard, log: &l, started: time.Now()}
}

// Router builds the chi mux. /health and /metrics stay open; /api/v1 is guarded.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	for _, mw := range []Middleware{TraceID(), RequestLog(s.log), Recover(s.log), Timeout(10 * time.Second)} {
		r.Use(mw)
	}

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if s.guard != nil {
			r.Use(s.guard.Middleware())
		}
		r.Get("/runs", s.handleRuns)
		r.Get("/accumulator", s.handleAccumulator)
		r.Post("/flush", s.handleFlush)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	})
}

type runView struct {
	ID             string  `json:"id"`
	Status         string  `json:"status"`
	Snippets       int     `json:"snippets"`
	Images         int     `json:"images"`
	JobID          string  `json:"job_id,omitempty"`
	ConversationID string  `json:"conversation_id,omitempty"`
	Polls          int     `json:"polls"`
	RecordsPushed  int     `json:"records_pushed"`
	Error          string  `json:"error,omitempty"`
	StartedAt      string  `json:"started_at"`
	DurationSec    float64 `json:"duration_seconds"`
}

func toView(r *model.BatchRun) runView {
	return runView{
		ID:             r.ID,
		Status:         string(r.Status),
		Snippets:       r.Snippets,
		Images:         r.Images,
		JobID:          r.JobID,
		ConversationID: r.ConversationID,
		Polls:          r.Polls,
		RecordsPushed:  r.RecordsPushed,
		Error:          r.Error,
		StartedAt:      r.StartedAt.UTC().Format(time.RFC3339),
		DurationSec:    r.Duration().Seconds(),
	}
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxRunsLimit)
	}
	if s.runs == nil {
		writeJSON(w, http.StatusOK, map[string]any{"items": []runView{}})
		return
	}

	runs, err := s.runs.ListRecent(r.Context(), limit)
	if err != nil {
		s.log.Error().Err(err).Msg("list batch runs")
		writeError(w, http.StatusInternalServerError, "could not list runs")
		return
	}
	items := make([]runView, 0, len(runs))
	for _, run := range runs {
		items = append(items, toView(run))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleAccumulator(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"pending": s.batcher.Pending()})
}

func (s *Server) handleFlush(w http.ResponseWriter, _ *http.Request) {
	n := s.batcher.Flush()
	s.log.Info().Int("snippets", n).Msg("manual flush")
	writeJSON(w, http.StatusAccepted, map[string]int{"flushed": n})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
