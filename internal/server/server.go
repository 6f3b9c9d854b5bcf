// Package server exposes the pipeline over HTTP: authenticated cron
// endpoints that trigger stages, and open read endpoints for the dashboard.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/permitscope/permitscope/internal/config"
	"github.com/permitscope/permitscope/internal/model"
	"github.com/permitscope/permitscope/internal/pipeline"
	"github.com/permitscope/permitscope/internal/store"
)

// Runner triggers pipeline stages by name.
type Runner interface {
	Run(ctx context.Context, name string, opts pipeline.RunOpts) (*pipeline.Result, error)
}

// RunLog reads the pipeline audit log.
type RunLog interface {
	List(ctx context.Context, limit int) ([]model.JobRun, error)
}

// Reader serves the dashboard read queries.
type Reader interface {
	ListContractors(ctx context.Context, limit int) ([]model.Contractor, error)
	PermitTimeline(ctx context.Context, permitNumber string) (*store.PermitTimeline, error)
}

// Server routes HTTP requests to the pipeline and the dashboard reader.
type Server struct {
	cfg    config.ServerConfig
	runner Runner
	runs   RunLog
	reader Reader
	router chi.Router
}

// New builds the server and its routes.
func New(cfg config.ServerConfig, runner Runner, runs RunLog, reader Reader) *Server {
	s := &Server{cfg: cfg, runner: runner, runs: runs, reader: reader}

	r := chi.NewRouter()
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/contractors", s.handleContractors)
	r.Get("/api/permits/{permitNumber}/timeline", s.handleTimeline)
	r.Get("/api/runs", s.handleRuns)

	r.Route("/api/cron", func(r chi.Router) {
		r.Use(s.requireCronSecret)
		r.Get("/{job}", s.handleCron)
		r.Post("/{job}", s.handleCron)
	})

	s.router = r
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// requireCronSecret rejects cron requests without the configured bearer
// token. Rejected requests never reach a stage and leave no audit row.
func (s *Server) requireCronSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.CronSecret == "" || r.Header.Get("Authorization") != "Bearer "+s.cfg.CronSecret {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body) //nolint:errcheck
}

// jobToStage maps the hyphenated URL segment to the registered stage name.
// import-amendments is the historical name for the offset-driven amendment
// walk; it runs the same stage with an offset parameter.
func jobToStage(job string) string {
	if job == "import-amendments" {
		return "sync_amendments"
	}
	return strings.ReplaceAll(job, "-", "_")
}
