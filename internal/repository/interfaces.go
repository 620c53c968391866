package repository

import (
	"context"

	"github.com/frankferrari/lanomat/internal/models"
)

// SessionRepository defines session data operations
type SessionRepository interface {
	CreateSession(ctx context.Context, code string, s models.Session) (int64, error)
	GetSession(ctx context.Context, id int64) (*models.Session, error)
	GetSessionByCode(ctx context.Context, code string) (*models.Session, error)
	SessionCodeExists(ctx context.Context, code string) (bool, error)
	UpdateSessionSettings(ctx context.Context, id int64, voting models.VotingRules, countdown models.CountdownConfig, wheel models.WheelConfig) error
	SetPreviousGame(ctx context.Context, id int64, gameID *int64) error
	SetCountdownRuntime(ctx context.Context, id int64, rt models.CountdownRuntime) error
	SetWheelRuntime(ctx context.Context, id int64, rt models.WheelRuntime) error
	ListRunningCountdowns(ctx context.Context) ([]models.Session, error)
	DeleteSession(ctx context.Context, id int64) error
}

// UserRepository defines user data operations
type UserRepository interface {
	CreateUser(ctx context.Context, sessionID int64, name string, role models.Role) (int64, error)
	GetUser(ctx context.Context, id int64) (*models.User, error)
	FindUserByName(ctx context.Context, sessionID int64, name string) (*models.User, error)
	ListUsers(ctx context.Context, sessionID int64) ([]models.User, error)
	UpdateUserName(ctx context.Context, id int64, name string) error
	UpdateUserRole(ctx context.Context, id int64, role models.Role) error
	DeleteUser(ctx context.Context, id int64) error
	CountHosts(ctx context.Context, sessionID int64) (int, error)
}

// GameRepository defines game and tag data operations
type GameRepository interface {
	CreateGame(ctx context.Context, sessionID int64, name, price string, maxPlayers *int) (int64, error)
	UpdateGame(ctx context.Context, id int64, name, price string, maxPlayers *int) error
	DeleteGame(ctx context.Context, id int64) error
	GetGame(ctx context.Context, sessionID, id int64) (*models.Game, error)
	ListGames(ctx context.Context, sessionID int64) ([]models.Game, error)
	SetGameScore(ctx context.Context, id int64, score int) error
	FindOrCreateTag(ctx context.Context, sessionID int64, name string) (int64, error)
	SetGameTags(ctx context.Context, gameID int64, tagIDs []int64) error
	GameTags(ctx context.Context, gameID int64) ([]string, error)
	ListTags(ctx context.Context, sessionID int64) ([]models.Tag, error)
	DeleteOrphanTags(ctx context.Context, sessionID int64) (int64, error)
}

// VoteRepository defines vote data operations
type VoteRepository interface {
	GetVote(ctx context.Context, userID, gameID int64) (*models.Vote, error)
	InsertVote(ctx context.Context, userID, gameID int64, weight int) error
	UpdateVoteWeight(ctx context.Context, userID, gameID int64, weight int) error
	DeleteVote(ctx context.Context, userID, gameID int64) error
	UserVoteWeights(ctx context.Context, userID int64) (map[int64]int, error)
	GameVoteWeights(ctx context.Context, gameID int64) ([]int, error)
	DeleteSessionVotes(ctx context.Context, sessionID int64) (int64, error)
	CountSessionVotes(ctx context.Context, sessionID int64) (int, error)
}

// FullRepository combines all repository interfaces
// Use this when a service needs access to multiple domains
type FullRepository interface {
	SessionRepository
	UserRepository
	GameRepository
	VoteRepository
	// InTx runs fn against a repository bound to a single transaction
	InTx(ctx context.Context, fn func(tx FullRepository) error) error
}

// Ensure Repository implements all interfaces
var _ FullRepository = (*Repository)(nil)
