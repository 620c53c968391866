package handlers

import (
	"context"
	"net/http"

	"github.com/frankferrari/lanomat/internal/models"
)

// WheelResponse is the wheel as a client needs it to render
type WheelResponse struct {
	Spin    *models.SpinDescriptor `json:"spin"`
	CanSpin bool                   `json:"can_spin"`
	Reason  string                 `json:"reason,omitempty"`
}

type countdownAction func(ctx context.Context, sessionID int64) (*models.CountdownSnapshot, error)

func (h *Handlers) countdown(w http.ResponseWriter, r *http.Request, action countdownAction) {
	snap, err := action(r.Context(), identity(r).Session.ID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondOK(w, snap)
}

func (h *Handlers) handleGetCountdown(w http.ResponseWriter, r *http.Request) {
	h.countdown(w, r, h.Countdown.Snapshot)
}

func (h *Handlers) handleStartCountdown(w http.ResponseWriter, r *http.Request) {
	h.countdown(w, r, h.Countdown.Start)
}

func (h *Handlers) handlePauseCountdown(w http.ResponseWriter, r *http.Request) {
	h.countdown(w, r, h.Countdown.Pause)
}

func (h *Handlers) handleStopCountdown(w http.ResponseWriter, r *http.Request) {
	h.countdown(w, r, h.Countdown.Stop)
}

// handleGetWheel returns the active spin, if any, and whether a spin may start
func (h *Handlers) handleGetWheel(w http.ResponseWriter, r *http.Request) {
	sessionID := identity(r).Session.ID
	spin, err := h.Wheel.Current(r.Context(), sessionID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	ok, reason, err := h.Wheel.CanSpin(r.Context(), sessionID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondOK(w, WheelResponse{Spin: spin, CanSpin: ok, Reason: reason})
}

func (h *Handlers) handleWheelEligible(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Wheel.EligibleGames(r.Context(), identity(r).Session.ID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondOK(w, entries)
}

// handleSpin draws a winner and publishes the spin to every client
func (h *Handlers) handleSpin(w http.ResponseWriter, r *http.Request) {
	spin, err := h.Wheel.StartSpin(r.Context(), identity(r).Session.ID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondCreated(w, spin)
}

func (h *Handlers) handleDismissSpin(w http.ResponseWriter, r *http.Request) {
	if err := h.Wheel.DismissSpin(r.Context(), identity(r).Session.ID); err != nil {
		h.respondError(w, r, err)
		return
	}
	respondDeleted(w)
}

// handleWebSocket attaches the caller to their session's live feed
func (h *Handlers) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	h.Hub.ServeWs(w, r, id.Session.ID, id.User.ID)
}
