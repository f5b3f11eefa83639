// Package api wires the HTTP surface: read-only stats and preview
// endpoints, and the write operations that force a cycle, adjust rollout,
// trigger rollback, reset limits, reload configuration, or accept webhook
// notifications. Routed with gorilla/mux, in the teacher's handler-per-route
// style.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mrInvincible29/Qguardarr/config"
	"github.com/mrInvincible29/Qguardarr/engine"
	"github.com/mrInvincible29/Qguardarr/tracker"
	"github.com/mrInvincible29/Qguardarr/utils"
	"github.com/mrInvincible29/Qguardarr/webhook"
)

// Server exposes the HTTP surface over an Engine, Matcher and config path.
type Server struct {
	eng        *engine.Engine
	matcher    *tracker.Matcher
	queue      *webhook.Queue
	configPath string
	onReload   func(*config.Config)
	router     *mux.Router
}

// New builds the router. onReload is invoked with the freshly parsed config
// after a successful /config/reload.
func New(eng *engine.Engine, matcher *tracker.Matcher, queue *webhook.Queue, configPath string, onReload func(*config.Config)) *Server {
	s := &Server{eng: eng, matcher: matcher, queue: queue, configPath: configPath, onReload: onReload}
	s.router = mux.NewRouter()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	s.router.HandleFunc("/stats/trackers", s.handleStatsTrackers).Methods(http.MethodGet)
	s.router.HandleFunc("/stats/managed", s.handleStatsManaged).Methods(http.MethodGet)
	s.router.HandleFunc("/config", s.handleConfig).Methods(http.MethodGet)
	s.router.HandleFunc("/preview/next-cycle", s.handlePreview).Methods(http.MethodGet)
	s.router.HandleFunc("/match/test", s.handleMatchTest).Methods(http.MethodGet)

	s.router.HandleFunc("/cycle/force", s.handleCycleForce).Methods(http.MethodPost)
	s.router.HandleFunc("/rollout", s.handleRollout).Methods(http.MethodPost)
	s.router.HandleFunc("/rollback", s.handleRollback).Methods(http.MethodPost)
	s.router.HandleFunc("/limits/reset", s.handleLimitsReset).Methods(http.MethodPost)
	s.router.HandleFunc("/smoothing/reset", s.handleSmoothingReset).Methods(http.MethodPost)
	s.router.HandleFunc("/config/reload", s.handleConfigReload).Methods(http.MethodPost)
	s.router.HandleFunc("/webhook", s.handleWebhook).Methods(http.MethodPost)

	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
}

// Handler returns the assembled http.Handler for the HTTP server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			log.Warnf("encode response: %v", err)
		}
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !s.eng.Ready() {
		writeError(w, http.StatusServiceUnavailable, "engine not yet initialized")
		return
	}
	status := "healthy"
	if !s.eng.Healthy() {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        status,
		"last_cycle_at": s.eng.LastCycleAt(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"managed_torrents": s.eng.ManagedCount(),
		"last_cycle_at":    s.eng.LastCycleAt(),
		"ready":            s.eng.Ready(),
	})
}

func (s *Server) handleStatsTrackers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	_, trackers, err := s.eng.Preview(ctx)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, trackers)
}

func (s *Server) handleStatsManaged(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"managed_torrents": s.eng.ManagedCount()})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := config.Load(s.configPath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	cfg.QBittorrent.Password = "***"
	cfg.CrossSeed.APIKey = "***"
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	proposed, trackers, err := s.eng.Preview(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"proposed": proposed,
		"trackers": trackers,
	})
}

func (s *Server) handleMatchTest(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	if url == "" {
		writeError(w, http.StatusBadRequest, "missing url query parameter")
		return
	}
	detailed := r.URL.Query().Get("detailed") == "true"
	writeJSON(w, http.StatusOK, s.matcher.Test(url, detailed))
}

func (s *Server) handleCycleForce(w http.ResponseWriter, r *http.Request) {
	if _, err := s.eng.RunCycle(r.Context()); err != nil {
		if errors.Is(err, engine.ErrCycleInProgress) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cycle completed"})
}

func (s *Server) handleRollout(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("percentage")
	pct, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "percentage must be an integer 0-100")
		return
	}
	if err := s.eng.SetRollout(pct); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"rollout_percentage": pct})
}

func (s *Server) handleRollback(w http.ResponseWriter, r *http.Request) {
	n, err := s.eng.Rollback(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"restored": n})
}

// limitsResetRequest mirrors the original's /limits/reset body:
// {"confirm": true, "scope": "unrestored"|"all", "mark_restored": false}.
type limitsResetRequest struct {
	Confirm      bool   `json:"confirm"`
	Scope        string `json:"scope"`
	MarkRestored bool   `json:"mark_restored"`
}

func (s *Server) handleLimitsReset(w http.ResponseWriter, r *http.Request) {
	var body limitsResetRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body) // best-effort; a missing/empty body just means "no confirm"
	}
	if !body.Confirm {
		writeError(w, http.StatusBadRequest, `confirmation required: {"confirm": true}`)
		return
	}
	n, err := s.eng.ResetToUnlimited(r.Context(), body.Scope, body.MarkRestored)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"reset": n})
}

func (s *Server) handleSmoothingReset(w http.ResponseWriter, r *http.Request) {
	s.eng.ResetSmoothing()
	writeJSON(w, http.StatusOK, map[string]string{"status": "smoothing reset"})
}

func (s *Server) handleConfigReload(w http.ResponseWriter, r *http.Request) {
	cfg, err := config.Reload(s.configPath)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.eng.UpdateConfig(cfg)
	if s.onReload != nil {
		s.onReload(cfg)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}

// handleWebhook always replies 202 even on parse failure, so the client
// doesn't retry a malformed notification indefinitely.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	defer writeJSON(w, http.StatusAccepted, nil)

	if err := r.ParseForm(); err != nil {
		log.Warnf("webhook: parse form: %v", err)
		return
	}
	eventType := r.PostForm.Get("event")
	hash := r.PostForm.Get("hash")
	if eventType == "" || hash == "" {
		log.Warnf("webhook: missing event or hash field")
		return
	}
	s.queue.Enqueue(webhook.Event{
		Type:       webhook.EventType(eventType),
		Hash:       hash,
		TrackerURL: r.PostForm.Get("tracker"),
		ReceivedAt: utils.Now(),
	})
}
