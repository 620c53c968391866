package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"

	"github.com/frankferrari/lanomat/internal/auth"
	"github.com/frankferrari/lanomat/internal/config"
	"github.com/frankferrari/lanomat/internal/handlers"
	"github.com/frankferrari/lanomat/internal/logger"
	"github.com/frankferrari/lanomat/internal/relay"
	"github.com/frankferrari/lanomat/internal/repository"
	"github.com/frankferrari/lanomat/internal/services"
	"github.com/frankferrari/lanomat/internal/websocket"
)

// shutdownTimeout bounds how long in-flight requests get after a stop signal
const shutdownTimeout = 5 * time.Second

// App holds all application dependencies
type App struct {
	cfg       *config.Config
	log       logger.Logger
	repo      *repository.Repository
	nc        *nats.Conn
	hub       *websocket.Hub
	countdown *services.CountdownTimer
	handlers  *handlers.Handlers
	baseURL   string
}

// New wires the repository, services, live feed and HTTP handlers
func New(cfg *config.Config, log logger.Logger, clock clockwork.Clock) (*App, error) {
	repo, err := repository.New(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:     cfg,
		log:     log,
		repo:    repo,
		baseURL: resolveBaseURL(cfg, realNetworkProvider{}),
	}

	// services broadcast through the hub, and the hub reads state from the
	// services, so the broadcast target is set once both exist
	bc := &lateBroadcaster{}

	arena := services.NewArena()
	sessions := services.NewSessionService(log, repo, arena, bc, a.baseURL, cfg.Defaults.Session())
	catalog := services.NewCatalogService(log, repo, arena, bc)
	ledger := services.NewVoteLedger(log, repo, arena, bc, clock)
	a.countdown = services.NewCountdownTimer(log, repo, arena, bc, clock)
	wheel := services.NewWheelCoordinator(log, repo, arena, bc, clock, cfg.SpinLead)
	state := services.NewStateReader(sessions, catalog, a.countdown, wheel, ledger, clock)

	a.hub = websocket.New(log, state, clock)
	fanout := relay.Fanout{a.hub}

	if cfg.NATS.URL != "" {
		rc := relay.DefaultConfig()
		rc.URL = cfg.NATS.URL
		if cfg.NATS.SubjectPrefix != "" {
			rc.SubjectPrefix = cfg.NATS.SubjectPrefix
		}
		nc, err := relay.Connect(rc, log)
		if err != nil {
			repo.Close()
			return nil, err
		}
		a.nc = nc
		fanout = append(fanout, relay.NewNATSPublisher(log, nc, rc.SubjectPrefix, clock))
		log.Info("Relaying session events to NATS", "url", rc.URL, "prefix", rc.SubjectPrefix)
	}
	bc.target = fanout

	sessions.OnEnd(a.hub.CloseSession)
	sessions.OnEnd(a.countdown.Forget)

	playerAuth := auth.New(clock, cfg.CookieSecure)
	a.handlers = handlers.New(sessions, catalog, ledger, a.countdown, wheel, state, playerAuth, a.hub, log)
	a.handlers.Health = repo
	return a, nil
}

// lateBroadcaster forwards to a target set once wiring is complete
type lateBroadcaster struct {
	target services.Broadcaster
}

func (b *lateBroadcaster) BroadcastToSession(sessionID int64, msgType string, payload any) {
	if b.target != nil {
		b.target.BroadcastToSession(sessionID, msgType, payload)
	}
}

// Router returns the configured HTTP router
func (a *App) Router() chi.Router {
	return a.handlers.Router()
}

// BaseURL is the address players use to reach the server
func (a *App) BaseURL() string {
	return a.baseURL
}

// Close releases the database and the NATS connection
func (a *App) Close() {
	if a.nc != nil {
		if err := a.nc.Drain(); err != nil {
			a.log.Warn("Failed to drain NATS connection", "error", err)
		}
	}
	if err := a.repo.Close(); err != nil {
		a.log.Warn("Failed to close database", "error", err)
	}
}

// Run listens on the configured port and serves until ctx is cancelled
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", a.cfg.Port))
	if err != nil {
		return err
	}
	return a.Serve(ctx, ln)
}

// Serve runs the background loops and the HTTP server on ln. Cancelling ctx
// stops everything and waits for in-flight requests.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	a.hub.Start(ctx)
	go a.countdown.Run(ctx)

	srv := &http.Server{
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Serve(ln)
	}()

	a.log.Info("Server starting", "addr", ln.Addr().String(), "url", a.baseURL)

	select {
	case err := <-serverErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	a.log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
