package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/frankferrari/lanomat/internal/auth"
)

// conditionalHTTPLogger only logs HTTP requests when HTTP logging is enabled
func (h *Handlers) conditionalHTTPLogger(next http.Handler) http.Handler {
	logger := middleware.Logger(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.Log != nil && h.Log.IsHTTPLoggingEnabled() {
			logger.ServeHTTP(w, r)
		} else {
			next.ServeHTTP(w, r)
		}
	})
}

// Router returns a configured chi router with all routes
func (h *Handlers) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.conditionalHTTPLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RedirectSlashes)

	r.Get("/healthz", h.handleHealth)

	// Public
	r.Post("/api/sessions", h.handleCreateSession)
	r.Post("/api/sessions/join", h.handleJoinSession)
	r.Post("/api/logout", h.handleLogout)

	// WebSocket; no timeout, the connection outlives the request
	r.With(h.Auth.RequireUser(h.Sessions)).Get("/ws", h.handleWebSocket)

	// Any player
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		r.Use(h.Auth.RequireUser(h.Sessions))

		r.Get("/api/me", h.handleMe)
		r.Get("/api/session/qr", h.handleSessionQR)

		r.Get("/api/games", h.handleListGames)
		r.Get("/api/tags", h.handleListTags)

		r.Post("/api/games/{id}/vote", h.handleVote)
		r.Get("/api/votes/mine", h.handleMyVotes)

		r.Get("/api/countdown", h.handleGetCountdown)

		r.Get("/api/wheel", h.handleGetWheel)
		r.Get("/api/wheel/eligible", h.handleWheelEligible)

		r.Get("/api/settings", h.handleGetSettings)

		r.Get("/api/players", h.handleListPlayers)
		r.Put("/api/players/{id}", h.handleRenamePlayer)
	})

	// Hosts and moderators: running the round
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		r.Use(h.Auth.RequireUser(h.Sessions))
		r.Use(auth.RequireModerator)

		r.Post("/api/votes/reset", h.handleResetVotes)

		r.Post("/api/countdown/start", h.handleStartCountdown)
		r.Post("/api/countdown/pause", h.handlePauseCountdown)
		r.Delete("/api/countdown", h.handleStopCountdown)

		r.Post("/api/wheel/spin", h.handleSpin)
		r.Delete("/api/wheel", h.handleDismissSpin)
	})

	// Hosts only
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		r.Use(h.Auth.RequireUser(h.Sessions))
		r.Use(auth.RequireHost)

		r.Delete("/api/session", h.handleEndSession)

		r.Post("/api/games", h.handleCreateGame)
		r.Put("/api/games/{id}", h.handleUpdateGame)
		r.Delete("/api/games/{id}", h.handleDeleteGame)

		r.Put("/api/settings", h.handleUpdateSettings)
		r.Put("/api/settings/previous-game", h.handleSetPreviousGame)

		r.Post("/api/players/{id}/promote", h.handlePromotePlayer)
		r.Post("/api/players/{id}/moderate", h.handleModeratePlayer)
		r.Post("/api/players/{id}/demote", h.handleDemotePlayer)
		r.Delete("/api/players/{id}", h.handleRemovePlayer)
	})

	return r
}

func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	if h.Health != nil {
		if err := h.Health.Ping(r.Context()); err != nil {
			h.Log.Error("Health check failed", "error", err)
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	respondOK(w, map[string]string{"status": "ok"})
}
