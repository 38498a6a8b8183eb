package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mainseq/ci-engine/internal/database"
)

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	report := s.opts.Health.Check(r.Context())
	status := http.StatusOK
	if report.Blocks() {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.opts.Scheduler.GetStatus(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.opts.State.ProcessingSummary(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.opts.Alerts.History())
}

// handleSearch runs a semantic query over the transcript embeddings.
// Filters map straight onto the facet columns.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := q.Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "missing query parameter q")
		return
	}

	filter := database.SearchFilter{
		Employee:  q.Get("employee"),
		Customer:  q.Get("customer"),
		Sentiment: q.Get("sentiment"),
	}
	if v := q.Get("date_from"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid date_from")
			return
		}
		filter.DateFrom = &t
	}
	if v := q.Get("date_to"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid date_to")
			return
		}
		filter.DateTo = &t
	}
	if v := q.Get("min_quality"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid min_quality")
			return
		}
		filter.MinQuality = &f
	}

	limit := 10
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	hits, err := s.opts.Search.Search(r.Context(), query, filter, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if hits == nil {
		hits = []database.SearchHit{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"query": query, "results": hits})
}

func (s *Server) handleResetFailed(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "recordingID")
	reset, err := s.opts.DB.ManualResetFailedItem(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !reset {
		writeError(w, http.StatusNotFound, "recording not in failed items")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"recording_id": id, "status": "reset"})
}

// handleProcessHistorical kicks off a processing run over an explicit window.
func (s *Server) handleProcessHistorical(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, err := time.Parse("2006-01-02", q.Get("start"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid or missing start (YYYY-MM-DD)")
		return
	}
	end, err := time.Parse("2006-01-02", q.Get("end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid or missing end (YYYY-MM-DD)")
		return
	}
	if end.Before(start) {
		writeError(w, http.StatusBadRequest, "end before start")
		return
	}

	// Run detached from the request; status is observable via /api/status.
	go func() {
		if _, err := s.opts.Scheduler.ProcessHistorical(context.Background(), start, end); err != nil {
			s.log.Error().Err(err).Msg("historical processing failed")
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "started",
		"start":  start.Format("2006-01-02"),
		"end":    end.Format("2006-01-02"),
	})
}
