package handlers

import (
	"net/http"

	"github.com/frankferrari/lanomat/internal/models"
	"github.com/frankferrari/lanomat/internal/services"
)

// VoteRequest is the body of the vote endpoint
type VoteRequest struct {
	Direction models.Direction `json:"direction"`
}

// PreviousGameRequest sets or clears (null) the previously played game
type PreviousGameRequest struct {
	GameID *int64 `json:"game_id"`
}

// handleListGames lists games by score, optionally filtered by ?tag=
func (h *Handlers) handleListGames(w http.ResponseWriter, r *http.Request) {
	games, err := h.Catalog.ListGames(r.Context(), identity(r).Session.ID, r.URL.Query().Get("tag"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondOK(w, games)
}

func (h *Handlers) handleListTags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.Catalog.ListTags(r.Context(), identity(r).Session.ID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondOK(w, tags)
}

func (h *Handlers) handleCreateGame(w http.ResponseWriter, r *http.Request) {
	var req services.GameInput
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	game, err := h.Catalog.CreateGame(r.Context(), identity(r).Session.ID, req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondCreated(w, game)
}

func (h *Handlers) handleUpdateGame(w http.ResponseWriter, r *http.Request) {
	gameID, err := parseIDParam(r, "id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	var req services.GameInput
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	game, err := h.Catalog.UpdateGame(r.Context(), identity(r).Session.ID, gameID, req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondOK(w, game)
}

func (h *Handlers) handleDeleteGame(w http.ResponseWriter, r *http.Request) {
	gameID, err := parseIDParam(r, "id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	if err := h.Catalog.DeleteGame(r.Context(), identity(r).Session.ID, gameID); err != nil {
		h.respondError(w, r, err)
		return
	}
	respondDeleted(w)
}

// handleSetPreviousGame marks the game played last round
func (h *Handlers) handleSetPreviousGame(w http.ResponseWriter, r *http.Request) {
	var req PreviousGameRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	changes, err := h.Catalog.SetPreviousGame(r.Context(), identity(r).Session.ID, req.GameID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondOK(w, changes)
}

// handleVote applies one up or down action for the caller
func (h *Handlers) handleVote(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	gameID, err := parseIDParam(r, "id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	var req VoteRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	result, err := h.Ledger.CastVote(r.Context(), id.Session.ID, id.User.ID, gameID, req.Direction)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondOK(w, result)
}

func (h *Handlers) handleMyVotes(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	votes, err := h.Ledger.UserVotes(r.Context(), id.Session.ID, id.User.ID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondOK(w, votes)
}

// handleResetVotes wipes every vote in the session
func (h *Handlers) handleResetVotes(w http.ResponseWriter, r *http.Request) {
	changes, err := h.Ledger.ResetAll(r.Context(), identity(r).Session.ID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondOK(w, changes)
}
