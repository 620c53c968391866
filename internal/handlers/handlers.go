package handlers

import (
	"context"
	"net/http"

	"github.com/frankferrari/lanomat/internal/auth"
	"github.com/frankferrari/lanomat/internal/logger"
	"github.com/frankferrari/lanomat/internal/services"
)

// SocketServer attaches an identified player to their session's live feed
type SocketServer interface {
	ServeWs(w http.ResponseWriter, r *http.Request, sessionID, userID int64)
}

// HealthChecker reports whether a backing store is reachable
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Handlers holds all HTTP handler dependencies
type Handlers struct {
	Sessions  services.SessionServicer
	Catalog   services.CatalogServicer
	Ledger    services.VoteLedgerServicer
	Countdown services.CountdownServicer
	Wheel     services.WheelServicer
	State     services.StateServicer
	Auth      *auth.Auth
	Hub       SocketServer
	Log       logger.Logger

	// Health is optional; /healthz only reports the process when nil
	Health HealthChecker
}

// New creates a new Handlers instance with all dependencies
func New(
	sessions services.SessionServicer,
	catalog services.CatalogServicer,
	ledger services.VoteLedgerServicer,
	countdown services.CountdownServicer,
	wheel services.WheelServicer,
	state services.StateServicer,
	playerAuth *auth.Auth,
	hub SocketServer,
	log logger.Logger,
) *Handlers {
	return &Handlers{
		Sessions:  sessions,
		Catalog:   catalog,
		Ledger:    ledger,
		Countdown: countdown,
		Wheel:     wheel,
		State:     state,
		Auth:      playerAuth,
		Hub:       hub,
		Log:       log,
	}
}

// identity returns the caller resolved by auth.RequireUser
func identity(r *http.Request) auth.Identity {
	id, _ := auth.FromContext(r.Context())
	return id
}
