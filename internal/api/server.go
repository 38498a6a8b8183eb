// Package api exposes the engine's operational surface: health, status,
// processing summary, semantic search, and Prometheus metrics.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/mainseq/ci-engine/internal/alerts"
	"github.com/mainseq/ci-engine/internal/database"
	"github.com/mainseq/ci-engine/internal/embeddings"
	"github.com/mainseq/ci-engine/internal/health"
	"github.com/mainseq/ci-engine/internal/scheduler"
)

// Options wires the server's collaborators.
type Options struct {
	Addr         string
	AuthToken    string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	DB        *database.DB
	Scheduler *scheduler.Scheduler
	State     *scheduler.StateManager
	Search    *embeddings.Manager
	Health    *health.Checker
	Alerts    *alerts.Manager
	Log       zerolog.Logger
}

// Server is the HTTP operational surface.
type Server struct {
	opts Options
	log  zerolog.Logger
	http *http.Server
}

// New builds the server and its routes.
func New(opts Options) *Server {
	s := &Server{
		opts: opts,
		log:  opts.Log.With().Str("component", "api").Logger(),
	}

	r := chi.NewRouter()
	r.Use(hlog.NewHandler(s.log))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Dur("duration", duration).
			Msg("request")
	}))

	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/status", s.handleStatus)
		r.Get("/summary", s.handleSummary)
		r.Get("/search", s.handleSearch)
		r.Get("/alerts", s.handleAlerts)
		r.Post("/failed/{recordingID}/reset", s.handleResetFailed)
		r.Post("/process", s.handleProcessHistorical)
	})

	s.http = &http.Server{
		Addr:         opts.Addr,
		Handler:      r,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
		IdleTimeout:  opts.IdleTimeout,
	}
	return s
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.opts.Addr).Msg("http server listening")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opts.AuthToken == "" {
			next.ServeHTTP(w, r)
			return
		}
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.opts.AuthToken)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid or missing token")
			return
		}
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
