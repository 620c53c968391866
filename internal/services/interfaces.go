package services

import (
	"context"

	"github.com/frankferrari/lanomat/internal/models"
)

// Broadcaster pushes an event to every observer of a session
type Broadcaster interface {
	BroadcastToSession(sessionID int64, msgType string, payload any)
}

// Event types pushed to observers
const (
	EventScoreChanged   = "score_changed"
	EventScores         = "scores"
	EventVotesReset     = "votes_reset"
	EventCountdown      = "countdown"
	EventVotingClosed   = "voting_closed"
	EventWheelSpin      = "wheel_spin"
	EventWheelDismissed = "wheel_dismissed"
	EventSettings       = "settings"
	EventGamesChanged   = "games_changed"
	EventPlayersChanged = "players_changed"
	EventSessionEnded   = "session_ended"
)

// VoteLedgerServicer defines the interface for vote operations
type VoteLedgerServicer interface {
	CastVote(ctx context.Context, sessionID, userID, gameID int64, direction models.Direction) (*VoteResult, error)
	ResetAll(ctx context.Context, sessionID int64) ([]models.ScoreChange, error)
	UserVotes(ctx context.Context, sessionID, userID int64) (*UserVotes, error)
}

// CountdownServicer defines the interface for countdown operations
type CountdownServicer interface {
	Start(ctx context.Context, sessionID int64) (*models.CountdownSnapshot, error)
	Pause(ctx context.Context, sessionID int64) (*models.CountdownSnapshot, error)
	Stop(ctx context.Context, sessionID int64) (*models.CountdownSnapshot, error)
	Snapshot(ctx context.Context, sessionID int64) (*models.CountdownSnapshot, error)
	IsClosed(ctx context.Context, sessionID int64) (bool, error)
	SecondsRemaining(ctx context.Context, sessionID int64) (int, error)
}

// WheelServicer defines the interface for wheel operations
type WheelServicer interface {
	EligibleGames(ctx context.Context, sessionID int64) ([]models.WheelEntry, error)
	CanSpin(ctx context.Context, sessionID int64) (bool, string, error)
	StartSpin(ctx context.Context, sessionID int64) (*models.SpinDescriptor, error)
	DismissSpin(ctx context.Context, sessionID int64) error
	Current(ctx context.Context, sessionID int64) (*models.SpinDescriptor, error)
}

// SessionServicer defines the interface for session and player operations
type SessionServicer interface {
	CreateHost(ctx context.Context, name string) (*models.Session, *models.User, error)
	Join(ctx context.Context, code, name string) (*models.Session, *models.User, error)
	End(ctx context.Context, sessionID int64) error
	Get(ctx context.Context, sessionID int64) (*models.Session, error)
	Identify(ctx context.Context, userID int64) (*models.Session, *models.User, error)
	ListPlayers(ctx context.Context, sessionID int64) ([]models.User, error)
	RenamePlayer(ctx context.Context, sessionID, userID int64, name string) (*models.User, error)
	Promote(ctx context.Context, sessionID, actorID, userID int64) (*models.User, error)
	Demote(ctx context.Context, sessionID, actorID, userID int64) (*models.User, error)
	Moderate(ctx context.Context, sessionID, actorID, userID int64) (*models.User, error)
	RemovePlayer(ctx context.Context, sessionID, actorID, userID int64) error
	UpdateSettings(ctx context.Context, sessionID int64, update SettingsUpdate) (*models.Session, error)
	JoinQR(ctx context.Context, sessionID int64, size int) ([]byte, error)
}

// CatalogServicer defines the interface for game and tag operations
type CatalogServicer interface {
	ListGames(ctx context.Context, sessionID int64, tag string) ([]models.Game, error)
	CreateGame(ctx context.Context, sessionID int64, input GameInput) (*models.Game, error)
	UpdateGame(ctx context.Context, sessionID, gameID int64, input GameInput) (*models.Game, error)
	DeleteGame(ctx context.Context, sessionID, gameID int64) error
	ListTags(ctx context.Context, sessionID int64) ([]models.Tag, error)
	SetPreviousGame(ctx context.Context, sessionID int64, gameID *int64) ([]models.ScoreChange, error)
}

// StateServicer defines the interface for the full client view of a session
type StateServicer interface {
	State(ctx context.Context, sessionID, userID int64) (*SessionState, error)
}

// Ensure concrete types implement interfaces
var (
	_ VoteLedgerServicer = (*VoteLedger)(nil)
	_ CountdownServicer  = (*CountdownTimer)(nil)
	_ WheelServicer      = (*WheelCoordinator)(nil)
	_ SessionServicer    = (*SessionService)(nil)
	_ CatalogServicer    = (*CatalogService)(nil)
	_ StateServicer      = (*StateReader)(nil)
)
