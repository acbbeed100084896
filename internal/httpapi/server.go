package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/numera-app/numera/internal/config"
	"github.com/numera-app/numera/internal/engine"
	"github.com/numera-app/numera/internal/history"
	"github.com/numera-app/numera/internal/notify"
	"github.com/numera-app/numera/internal/observability"
	"github.com/numera-app/numera/internal/session"
)

type Server struct {
	cfg      config.Config
	sessions *session.Manager
	engine   *engine.Engine
	store    *notify.Store
	journal  *history.Journal
	backend  Backend
	metrics  *observability.Metrics
	upgrader websocket.Upgrader
}

func New(cfg config.Config, sessions *session.Manager, eng *engine.Engine, store *notify.Store, journal *history.Journal, backend Backend, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:      cfg,
		sessions: sessions,
		engine:   eng,
		store:    store,
		journal:  journal,
		backend:  backend,
		metrics:  metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Default: only allow browser websocket connections from the
				// same origin. This prevents other websites from driving the
				// user's accounting session if the daemon is ever exposed
				// beyond localhost.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/session", s.handleLogin)
	r.Post("/v1/session/{id}/logout", s.handleLogout)

	r.Get("/v1/notifications", s.handleListNotifications)
	r.Post("/v1/notifications/{id}/dismiss", s.handleDismissNotification)
	r.Post("/v1/notifications/clear", s.handleClearNotifications)

	r.Get("/v1/tasks", s.handleListTasks)
	r.Post("/v1/tasks/{type}", s.handleStartTask)
	r.Post("/v1/tasks/{type}/cancel", s.handleCancelTask)

	r.Get("/v1/history", s.handleHistory)
	r.Get("/v1/perf/cycles", s.handlePerfCycles)
	r.Get("/v1/stream", s.handleStream)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"history_backend": s.historyMode(),
	})
}

// handleReady reports ready only when the backend answers a liveness ping;
// the daemon is useless to the UI while its backend is unreachable.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.Ping(r.Context()); err != nil {
		respondError(w, http.StatusServiceUnavailable, "backend_unreachable", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ready",
		"history_backend": s.historyMode(),
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req session.LoginRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Username) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "username is required")
		return
	}

	sess, err := s.sessions.Login(strings.TrimSpace(req.Username))
	if err != nil {
		if errors.Is(err, session.ErrAlreadyActive) {
			respondError(w, http.StatusConflict, "session_exists", err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "login_failed", err.Error())
		return
	}

	respondJSON(w, http.StatusCreated, session.LoginResponse{
		SessionID:       sess.ID,
		Username:        sess.Username,
		Status:          sess.Status,
		StartedAt:       sess.StartedAt,
		InactivityTTLMS: s.cfg.SessionInactivityTimeout.Milliseconds(),
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if strings.TrimSpace(id) == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return
	}

	sess, err := s.sessions.Logout(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) handleListNotifications(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"notifications": s.store.List(),
	})
}

func (s *Server) handleDismissNotification(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_notification_id", "notification id must be a positive integer")
		return
	}
	if !s.store.Dismiss(id) {
		respondError(w, http.StatusNotFound, "notification_not_found", "no notification with that id")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"dismissed": id})
}

func (s *Server) handleClearNotifications(w http.ResponseWriter, _ *http.Request) {
	s.store.Clear()
	respondJSON(w, http.StatusOK, map[string]any{"cleared": true})
}

func (s *Server) handleListTasks(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"tasks": s.engine.Snapshot(),
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be in 1..500")
			return
		}
		limit = n
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"entries": s.journal.Recent(r.Context(), limit),
	})
}

func (s *Server) handlePerfCycles(w http.ResponseWriter, _ *http.Request) {
	if s.metrics == nil {
		respondJSON(w, http.StatusOK, map[string]any{
			"generated_at": "",
			"window_size":  0,
			"cycles":       []any{},
		})
		return
	}
	respondJSON(w, http.StatusOK, s.metrics.SnapshotCycles())
}

func (s *Server) historyMode() string {
	if s.journal == nil {
		return "disabled"
	}
	if s.journal.Persistent() {
		return "postgres"
	}
	return "in-memory"
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
