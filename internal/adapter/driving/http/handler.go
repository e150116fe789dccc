// Package httphandler exposes the daemon's state over a loopback HTTP API.
// The menu-bar UI is a separate process; everything it renders or triggers
// goes through these endpoints.
package httphandler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/xiaocang/ghpr-view/internal/application"
	"github.com/xiaocang/ghpr-view/internal/config"
	"github.com/xiaocang/ghpr-view/internal/domain/model"
	"github.com/xiaocang/ghpr-view/internal/domain/port/driven"
)

const (
	defaultNotificationLimit = 50
	maxNotificationLimit     = 200
)

// Engine is the application surface the handler drives.
type Engine interface {
	Snapshot() model.Snapshot
	Status() application.EngineStatus
	Refresh(ctx context.Context) error
	SurfaceOpened(ctx context.Context) error
}

// SettingsStore is the settings surface the handler reads and writes.
type SettingsStore interface {
	Current() config.Settings
	Save(settings config.Settings) error
}

// Handler serves the UI-facing API.
type Handler struct {
	engine   Engine
	settings SettingsStore
	auth     driven.AuthProvider
	journal  driven.NotificationStore
	avatars  driven.AvatarCache
}

// NewHandler creates a Handler with its dependencies.
func NewHandler(
	engine Engine,
	settings SettingsStore,
	auth driven.AuthProvider,
	journal driven.NotificationStore,
	avatars driven.AvatarCache,
) *Handler {
	return &Handler{
		engine:   engine,
		settings: settings,
		auth:     auth,
		journal:  journal,
		avatars:  avatars,
	}
}

// NewServeMux builds the route table and wraps it with the standard
// middleware chain.
func NewServeMux(h *Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", h.Health)
	mux.HandleFunc("GET /api/v1/snapshot", h.GetSnapshot)
	mux.HandleFunc("GET /api/v1/status", h.GetStatus)
	mux.HandleFunc("POST /api/v1/refresh", h.TriggerRefresh)
	mux.HandleFunc("POST /api/v1/opened", h.SurfaceOpened)
	mux.HandleFunc("GET /api/v1/settings", h.GetSettings)
	mux.HandleFunc("PUT /api/v1/settings", h.PutSettings)
	mux.HandleFunc("GET /api/v1/notifications", h.ListNotifications)
	mux.HandleFunc("GET /api/v1/pulls/{id}/threads", h.GetThreads)
	mux.HandleFunc("GET /api/v1/avatar", h.GetAvatar)
	mux.HandleFunc("POST /api/v1/auth/signin", h.SignIn)
	mux.HandleFunc("POST /api/v1/auth/signout", h.SignOut)

	return loggingMiddleware(recoveryMiddleware(mux))
}

// Health handles GET /api/v1/health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}

// GetSnapshot handles GET /api/v1/snapshot. A snapshot carrying a refresh
// error is still a 200: stale data plus the error string is exactly what
// the UI renders.
func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toSnapshotResponse(h.engine.Snapshot()))
}

// GetStatus handles GET /api/v1/status.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Status())
}

// TriggerRefresh handles POST /api/v1/refresh. The refresh runs
// asynchronously; 202 only means the engine accepted the command.
func (h *Handler) TriggerRefresh(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Refresh(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "engine unavailable")
		return
	}
	writeJSON(w, http.StatusAccepted, AcceptedResponse{Status: "accepted"})
}

// SurfaceOpened handles POST /api/v1/opened, the UI's popover-open signal.
func (h *Handler) SurfaceOpened(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.SurfaceOpened(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "engine unavailable")
		return
	}
	writeJSON(w, http.StatusAccepted, AcceptedResponse{Status: "accepted"})
}

// GetSettings handles GET /api/v1/settings.
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.settings.Current())
}

// PutSettings handles PUT /api/v1/settings. The payload is normalized and
// validated before it is persisted, so a bad write never reaches disk.
func (h *Handler) PutSettings(w http.ResponseWriter, r *http.Request) {
	var incoming config.Settings
	if err := json.NewDecoder(r.Body).Decode(&incoming); err != nil {
		writeError(w, http.StatusBadRequest, "invalid settings payload")
		return
	}
	normalized := incoming.Normalized()
	if err := normalized.Validate(); err != nil {
		var cfgErr *model.ConfigError
		if errors.As(err, &cfgErr) {
			writeError(w, http.StatusBadRequest, cfgErr.Reason)
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.settings.Save(normalized); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to persist settings")
		return
	}
	writeJSON(w, http.StatusOK, normalized)
}

// ListNotifications handles GET /api/v1/notifications. The optional limit
// query parameter defaults to 50 and is capped at 200.
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	limit := defaultNotificationLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if n > maxNotificationLimit {
			n = maxNotificationLimit
		}
		limit = n
	}

	events, err := h.journal.ListRecent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list notifications")
		return
	}
	if events == nil {
		events = []model.NotificationEvent{}
	}
	writeJSON(w, http.StatusOK, NotificationsResponse{Notifications: events})
}

// GetThreads handles GET /api/v1/pulls/{id}/threads. It serves from the
// in-memory snapshot only; a PR that has scrolled out of the current
// snapshot is a 404.
func (h *Handler) GetThreads(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid pull request id")
		return
	}
	pr, ok := h.findPR(id)
	if !ok {
		writeError(w, http.StatusNotFound, "pull request not found")
		return
	}
	writeJSON(w, http.StatusOK, toThreadsResponse(pr))
}

// GetAvatar handles GET /api/v1/avatar?url=... and serves the cached avatar
// bytes directly, so the UI never talks to github usercontent itself.
func (h *Handler) GetAvatar(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	if url == "" {
		writeError(w, http.StatusBadRequest, "missing url parameter")
		return
	}
	data, contentType, err := h.avatars.Get(r.Context(), url)
	if err != nil {
		var netErr *model.NetworkError
		var apiErr *model.APIError
		if errors.As(err, &netErr) || errors.As(err, &apiErr) {
			writeError(w, http.StatusBadGateway, "failed to fetch avatar")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// SignIn handles POST /api/v1/auth/signin. It returns as soon as the device
// code is issued; the UI shows the code and polls status for completion.
func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	state, err := h.auth.SignIn(r.Context())
	if err != nil {
		var cfgErr *model.ConfigError
		if errors.As(err, &cfgErr) {
			writeError(w, http.StatusBadRequest, cfgErr.Reason)
			return
		}
		writeError(w, http.StatusBadGateway, "sign-in failed")
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// SignOut handles POST /api/v1/auth/signout.
func (h *Handler) SignOut(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.SignOut(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "sign-out failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) findPR(id int64) (model.PullRequest, bool) {
	snap := h.engine.Snapshot()
	for _, pr := range snap.Open {
		if pr.ID == id {
			return pr, true
		}
	}
	for _, pr := range snap.Merged {
		if pr.ID == id {
			return pr, true
		}
	}
	return model.PullRequest{}, false
}
