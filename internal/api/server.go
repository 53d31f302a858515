// SPDX-License-Identifier: MIT

// Package api is the HTTP facade: health, guide download, metrics and the
// operational endpoints for triggering generation and group syncs.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teamcast/teamcast/internal/epg"
	"github.com/teamcast/teamcast/internal/lifecycle"
	"github.com/teamcast/teamcast/internal/log"
	"github.com/teamcast/teamcast/internal/store"
)

// Server hosts the HTTP API. Generation and sync are injected so the facade
// stays free of orchestration logic.
type Server struct {
	Store     *store.Store
	Scheduler *lifecycle.Scheduler
	Engine    *lifecycle.Engine
	XMLTVPath string

	// Generate runs a full EPG generation.
	Generate func(ctx context.Context) (*epg.RunResult, error)

	// SyncGroup runs one event-group sync.
	SyncGroup func(ctx context.Context, groupID int64) (lifecycle.SyncStats, error)
}

// Router assembles the chi handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(120 * time.Second))
	r.Use(httprate.LimitByIP(60, time.Minute))

	r.Get("/healthz", s.handleHealth)
	r.Get("/xmltv", s.handleXMLTV)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Post("/generate", s.handleGenerate)
		r.Post("/groups/{id}/sync", s.handleGroupSync)
		r.Post("/reconcile", s.handleReconcile)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.Store != nil {
		if err := s.Store.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "degraded",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleXMLTV(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	http.ServeFile(w, r, s.XMLTVPath)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	runs, err := s.Store.RecentRuns(r.Context(), 5)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	status := map[string]any{"recent_runs": runs}
	if s.Scheduler != nil {
		status["scheduler_last_run"] = s.Scheduler.LastRun()
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if s.Generate == nil {
		writeError(w, http.StatusServiceUnavailable, errUnavailable("generation"))
		return
	}
	result, err := s.Generate(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":             result.RunID,
		"channels_generated": result.ChannelsGenerated,
		"channels_failed":    result.ChannelsFailed,
		"programs":           len(result.Programs),
		"errors":             result.Errors,
		"elapsed":            result.Elapsed.String(),
	})
}

func (s *Server) handleGroupSync(w http.ResponseWriter, r *http.Request) {
	if s.SyncGroup == nil {
		writeError(w, http.StatusServiceUnavailable, errUnavailable("event groups"))
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	stats, err := s.SyncGroup(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	if s.Engine == nil {
		writeError(w, http.StatusServiceUnavailable, errUnavailable("event groups"))
		return
	}
	autoFix := r.URL.Query().Get("fix") == "true"
	report, err := s.Engine.Reconcile(r.Context(), autoFix)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger := log.WithComponent("api")
		logger.Warn().Err(err).
			Str("event", "response.encode_failed").
			Msg("response encoding failed")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

type errUnavailable string

func (e errUnavailable) Error() string { return string(e) + " not configured" }
