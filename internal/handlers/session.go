package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/frankferrari/lanomat/internal/auth"
	"github.com/frankferrari/lanomat/internal/models"
	"github.com/frankferrari/lanomat/internal/services"
)

// JoinRequest is the body of the create and join endpoints
type JoinRequest struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

// JoinResponse identifies the caller after creating or joining a session
type JoinResponse struct {
	Session *models.Session `json:"session"`
	User    *models.User    `json:"user"`
}

// RenameRequest is the body of the rename endpoint
type RenameRequest struct {
	Name string `json:"name"`
}

func (h *Handlers) login(w http.ResponseWriter, user *models.User) {
	token := h.Auth.Login(user.ID)
	h.Auth.SetSessionCookie(w, token)
}

// handleCreateSession starts a new session with the caller as host
func (h *Handlers) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req JoinRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	session, user, err := h.Sessions.CreateHost(r.Context(), req.Name)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	h.login(w, user)
	respondCreated(w, JoinResponse{Session: session, User: user})
}

// handleJoinSession joins (or rejoins by name) an existing session
func (h *Handlers) handleJoinSession(w http.ResponseWriter, r *http.Request) {
	var req JoinRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	session, user, err := h.Sessions.Join(r.Context(), req.Code, req.Name)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	h.login(w, user)
	respondOK(w, JoinResponse{Session: session, User: user})
}

// handleLogout drops the caller's cookie. The player stays in the session.
func (h *Handlers) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(auth.CookieName); err == nil {
		h.Auth.Logout(cookie.Value)
	}
	h.Auth.ClearSessionCookie(w)
	respondDeleted(w)
}

// handleMe returns the full session state as seen by the caller
func (h *Handlers) handleMe(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	st, err := h.State.State(r.Context(), id.Session.ID, id.User.ID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondOK(w, st)
}

// handleEndSession ends the caller's session for everyone
func (h *Handlers) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	if err := h.Sessions.End(r.Context(), id.Session.ID); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.Auth.ClearSessionCookie(w)
	respondDeleted(w)
}

// handleSessionQR serves the join link as a PNG
func (h *Handlers) handleSessionQR(w http.ResponseWriter, r *http.Request) {
	size := 0
	if s := r.URL.Query().Get("size"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 64 || n > 2048 {
			h.respondError(w, r, BadRequest("size must be between 64 and 2048"))
			return
		}
		size = n
	}

	png, err := h.Sessions.JoinQR(r.Context(), identity(r).Session.ID, size)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(png)
}

// handleListPlayers lists everyone in the caller's session
func (h *Handlers) handleListPlayers(w http.ResponseWriter, r *http.Request) {
	players, err := h.Sessions.ListPlayers(r.Context(), identity(r).Session.ID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondOK(w, players)
}

// handleRenamePlayer renames the caller, or anyone when the caller is a host
func (h *Handlers) handleRenamePlayer(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	userID, err := parseIDParam(r, "id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if userID != id.User.ID && !id.IsHost() {
		h.respondError(w, r, NewAPIError(http.StatusForbidden, ErrCodeForbidden, "only hosts can rename other players"))
		return
	}

	var req RenameRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	user, err := h.Sessions.RenamePlayer(r.Context(), id.Session.ID, userID, req.Name)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondOK(w, user)
}

func (h *Handlers) handlePromotePlayer(w http.ResponseWriter, r *http.Request) {
	h.changeRole(w, r, h.Sessions.Promote)
}

func (h *Handlers) handleModeratePlayer(w http.ResponseWriter, r *http.Request) {
	h.changeRole(w, r, h.Sessions.Moderate)
}

func (h *Handlers) handleDemotePlayer(w http.ResponseWriter, r *http.Request) {
	h.changeRole(w, r, h.Sessions.Demote)
}

type roleChange func(ctx context.Context, sessionID, actorID, userID int64) (*models.User, error)

func (h *Handlers) changeRole(w http.ResponseWriter, r *http.Request, change roleChange) {
	id := identity(r)
	userID, err := parseIDParam(r, "id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	user, err := change(r.Context(), id.Session.ID, id.User.ID, userID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondOK(w, user)
}

// handleRemovePlayer kicks a player and invalidates their cookies
func (h *Handlers) handleRemovePlayer(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	userID, err := parseIDParam(r, "id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	if err := h.Sessions.RemovePlayer(r.Context(), id.Session.ID, id.User.ID, userID); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.Auth.LogoutUser(userID)
	respondDeleted(w)
}

// handleGetSettings returns the session with its settings
func (h *Handlers) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	session, err := h.Sessions.Get(r.Context(), identity(r).Session.ID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondOK(w, session)
}

// handleUpdateSettings applies a partial settings update
func (h *Handlers) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req services.SettingsUpdate
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	session, err := h.Sessions.UpdateSettings(r.Context(), identity(r).Session.ID, req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondOK(w, session)
}
