package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/permitscope/permitscope/internal/pipeline"
	"github.com/permitscope/permitscope/internal/store"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCron(w http.ResponseWriter, r *http.Request) {
	stage := jobToStage(chi.URLParam(r, "job"))

	opts, err := parseRunOpts(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	res, err := s.runner.Run(r.Context(), stage, opts)
	if err != nil {
		zap.L().Error("cron stage failed", zap.String("stage", stage), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	body := map[string]any{
		"success":   true,
		"rows":      res.Rows,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range res.Counters {
		body[k] = v
	}
	writeJSON(w, http.StatusOK, body)
}

// parseRunOpts reads the shared tuning knobs off the query string.
func parseRunOpts(r *http.Request) (pipeline.RunOpts, error) {
	var opts pipeline.RunOpts
	q := r.URL.Query()

	intParam := func(name string) (int, bool, error) {
		raw := strings.TrimSpace(q.Get(name))
		if raw == "" {
			return 0, false, nil
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return 0, false, eris.Errorf("invalid %s: %q", name, raw)
		}
		return v, true, nil
	}

	var err error
	if opts.Limit, _, err = intParam("limit"); err != nil {
		return opts, err
	}
	if opts.Pages, _, err = intParam("pages"); err != nil {
		return opts, err
	}
	if opts.Batch, _, err = intParam("batch"); err != nil {
		return opts, err
	}
	if v, ok, err := intParam("offset"); err != nil {
		return opts, err
	} else if ok {
		opts.Offset = &v
	}

	if raw := strings.TrimSpace(q.Get("since")); raw != "" {
		t, err := parseSince(raw)
		if err != nil {
			return opts, err
		}
		opts.Since = &t
	}

	switch strings.ToLower(q.Get("dryRun")) {
	case "1", "true", "yes":
		opts.DryRun = true
	}
	return opts, nil
}

func parseSince(raw string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, eris.Errorf("invalid since: %q", raw)
}

func (s *Server) handleContractors(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	contractors, err := s.reader.ListContractors(r.Context(), limit)
	if err != nil {
		zap.L().Error("list contractors failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"contractors": contractors})
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	nbr := chi.URLParam(r, "permitNumber")
	tl, err := s.reader.PermitTimeline(r.Context(), nbr)
	if err != nil {
		if eris.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "permit not found"})
			return
		}
		zap.L().Error("permit timeline failed", zap.String("permit", nbr), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, tl)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := s.runs.List(r.Context(), limit)
	if err != nil {
		zap.L().Error("list runs failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}
