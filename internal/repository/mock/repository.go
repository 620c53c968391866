package mock

import (
	"context"

	"github.com/frankferrari/lanomat/internal/models"
	"github.com/frankferrari/lanomat/internal/repository"
)

// Repository wraps a real repository and allows injecting errors for testing.
// This provides a flexible way to test error paths without complex database manipulation.
//
// Usage:
//
//	realRepo := testutil.NewTestRepository(t)
//	mockRepo := mock.NewRepository(realRepo)
//	mockRepo.InsertVoteError = errors.New("database error")
//	ledger := services.NewVoteLedger(log, mockRepo, arena, hub, clock)
//	_, err := ledger.CastVote(ctx, user, gameID, models.DirectionUp)
//	// err will now contain the injected error
//
// Injected errors also apply inside InTx: the transaction-bound repository
// handed to fn is wrapped with the same error set.
type Repository struct {
	repository.FullRepository

	// ===== Session Errors =====
	CreateSessionError         error
	GetSessionError            error
	GetSessionByCodeError      error
	SessionCodeExistsError     error
	UpdateSessionSettingsError error
	SetPreviousGameError       error
	SetCountdownRuntimeError   error
	SetWheelRuntimeError       error
	ListRunningCountdownsError error
	DeleteSessionError         error

	// ===== User Errors =====
	CreateUserError     error
	GetUserError        error
	FindUserByNameError error
	ListUsersError      error
	UpdateUserNameError error
	UpdateUserRoleError error
	DeleteUserError     error
	CountHostsError     error

	// ===== Game Errors =====
	CreateGameError       error
	UpdateGameError       error
	DeleteGameError       error
	GetGameError          error
	ListGamesError        error
	SetGameScoreError     error
	FindOrCreateTagError  error
	SetGameTagsError      error
	GameTagsError         error
	ListTagsError         error
	DeleteOrphanTagsError error

	// ===== Vote Errors =====
	GetVoteError            error
	InsertVoteError         error
	UpdateVoteWeightError   error
	DeleteVoteError         error
	UserVoteWeightsError    error
	GameVoteWeightsError    error
	DeleteSessionVotesError error
	CountSessionVotesError  error

	// ===== Transaction Errors =====
	InTxError error

	// InsertVoteHook, when set, runs before InsertVote reaches the real
	// repository. Tests use it to simulate a concurrent writer.
	InsertVoteHook func(ctx context.Context, userID, gameID int64) error
}

// NewRepository creates a mock repository wrapping a real one
func NewRepository(real repository.FullRepository) *Repository {
	return &Repository{
		FullRepository: real,
	}
}

// ===== Transaction =====

func (m *Repository) InTx(ctx context.Context, fn func(tx repository.FullRepository) error) error {
	if m.InTxError != nil {
		return m.InTxError
	}
	return m.FullRepository.InTx(ctx, func(tx repository.FullRepository) error {
		bound := *m
		bound.FullRepository = tx
		return fn(&bound)
	})
}

// ===== Session Methods =====

func (m *Repository) CreateSession(ctx context.Context, code string, s models.Session) (int64, error) {
	if m.CreateSessionError != nil {
		return 0, m.CreateSessionError
	}
	return m.FullRepository.CreateSession(ctx, code, s)
}

func (m *Repository) GetSession(ctx context.Context, id int64) (*models.Session, error) {
	if m.GetSessionError != nil {
		return nil, m.GetSessionError
	}
	return m.FullRepository.GetSession(ctx, id)
}

func (m *Repository) GetSessionByCode(ctx context.Context, code string) (*models.Session, error) {
	if m.GetSessionByCodeError != nil {
		return nil, m.GetSessionByCodeError
	}
	return m.FullRepository.GetSessionByCode(ctx, code)
}

func (m *Repository) SessionCodeExists(ctx context.Context, code string) (bool, error) {
	if m.SessionCodeExistsError != nil {
		return false, m.SessionCodeExistsError
	}
	return m.FullRepository.SessionCodeExists(ctx, code)
}

func (m *Repository) UpdateSessionSettings(ctx context.Context, id int64, voting models.VotingRules, countdown models.CountdownConfig, wheel models.WheelConfig) error {
	if m.UpdateSessionSettingsError != nil {
		return m.UpdateSessionSettingsError
	}
	return m.FullRepository.UpdateSessionSettings(ctx, id, voting, countdown, wheel)
}

func (m *Repository) SetPreviousGame(ctx context.Context, id int64, gameID *int64) error {
	if m.SetPreviousGameError != nil {
		return m.SetPreviousGameError
	}
	return m.FullRepository.SetPreviousGame(ctx, id, gameID)
}

func (m *Repository) SetCountdownRuntime(ctx context.Context, id int64, rt models.CountdownRuntime) error {
	if m.SetCountdownRuntimeError != nil {
		return m.SetCountdownRuntimeError
	}
	return m.FullRepository.SetCountdownRuntime(ctx, id, rt)
}

func (m *Repository) SetWheelRuntime(ctx context.Context, id int64, rt models.WheelRuntime) error {
	if m.SetWheelRuntimeError != nil {
		return m.SetWheelRuntimeError
	}
	return m.FullRepository.SetWheelRuntime(ctx, id, rt)
}

func (m *Repository) ListRunningCountdowns(ctx context.Context) ([]models.Session, error) {
	if m.ListRunningCountdownsError != nil {
		return nil, m.ListRunningCountdownsError
	}
	return m.FullRepository.ListRunningCountdowns(ctx)
}

func (m *Repository) DeleteSession(ctx context.Context, id int64) error {
	if m.DeleteSessionError != nil {
		return m.DeleteSessionError
	}
	return m.FullRepository.DeleteSession(ctx, id)
}

// ===== User Methods =====

func (m *Repository) CreateUser(ctx context.Context, sessionID int64, name string, role models.Role) (int64, error) {
	if m.CreateUserError != nil {
		return 0, m.CreateUserError
	}
	return m.FullRepository.CreateUser(ctx, sessionID, name, role)
}

func (m *Repository) GetUser(ctx context.Context, id int64) (*models.User, error) {
	if m.GetUserError != nil {
		return nil, m.GetUserError
	}
	return m.FullRepository.GetUser(ctx, id)
}

func (m *Repository) FindUserByName(ctx context.Context, sessionID int64, name string) (*models.User, error) {
	if m.FindUserByNameError != nil {
		return nil, m.FindUserByNameError
	}
	return m.FullRepository.FindUserByName(ctx, sessionID, name)
}

func (m *Repository) ListUsers(ctx context.Context, sessionID int64) ([]models.User, error) {
	if m.ListUsersError != nil {
		return nil, m.ListUsersError
	}
	return m.FullRepository.ListUsers(ctx, sessionID)
}

func (m *Repository) UpdateUserName(ctx context.Context, id int64, name string) error {
	if m.UpdateUserNameError != nil {
		return m.UpdateUserNameError
	}
	return m.FullRepository.UpdateUserName(ctx, id, name)
}

func (m *Repository) UpdateUserRole(ctx context.Context, id int64, role models.Role) error {
	if m.UpdateUserRoleError != nil {
		return m.UpdateUserRoleError
	}
	return m.FullRepository.UpdateUserRole(ctx, id, role)
}

func (m *Repository) DeleteUser(ctx context.Context, id int64) error {
	if m.DeleteUserError != nil {
		return m.DeleteUserError
	}
	return m.FullRepository.DeleteUser(ctx, id)
}

func (m *Repository) CountHosts(ctx context.Context, sessionID int64) (int, error) {
	if m.CountHostsError != nil {
		return 0, m.CountHostsError
	}
	return m.FullRepository.CountHosts(ctx, sessionID)
}

// ===== Game Methods =====

func (m *Repository) CreateGame(ctx context.Context, sessionID int64, name, price string, maxPlayers *int) (int64, error) {
	if m.CreateGameError != nil {
		return 0, m.CreateGameError
	}
	return m.FullRepository.CreateGame(ctx, sessionID, name, price, maxPlayers)
}

func (m *Repository) UpdateGame(ctx context.Context, id int64, name, price string, maxPlayers *int) error {
	if m.UpdateGameError != nil {
		return m.UpdateGameError
	}
	return m.FullRepository.UpdateGame(ctx, id, name, price, maxPlayers)
}

func (m *Repository) DeleteGame(ctx context.Context, id int64) error {
	if m.DeleteGameError != nil {
		return m.DeleteGameError
	}
	return m.FullRepository.DeleteGame(ctx, id)
}

func (m *Repository) GetGame(ctx context.Context, sessionID, id int64) (*models.Game, error) {
	if m.GetGameError != nil {
		return nil, m.GetGameError
	}
	return m.FullRepository.GetGame(ctx, sessionID, id)
}

func (m *Repository) ListGames(ctx context.Context, sessionID int64) ([]models.Game, error) {
	if m.ListGamesError != nil {
		return nil, m.ListGamesError
	}
	return m.FullRepository.ListGames(ctx, sessionID)
}

func (m *Repository) SetGameScore(ctx context.Context, id int64, score int) error {
	if m.SetGameScoreError != nil {
		return m.SetGameScoreError
	}
	return m.FullRepository.SetGameScore(ctx, id, score)
}

func (m *Repository) FindOrCreateTag(ctx context.Context, sessionID int64, name string) (int64, error) {
	if m.FindOrCreateTagError != nil {
		return 0, m.FindOrCreateTagError
	}
	return m.FullRepository.FindOrCreateTag(ctx, sessionID, name)
}

func (m *Repository) SetGameTags(ctx context.Context, gameID int64, tagIDs []int64) error {
	if m.SetGameTagsError != nil {
		return m.SetGameTagsError
	}
	return m.FullRepository.SetGameTags(ctx, gameID, tagIDs)
}

func (m *Repository) GameTags(ctx context.Context, gameID int64) ([]string, error) {
	if m.GameTagsError != nil {
		return nil, m.GameTagsError
	}
	return m.FullRepository.GameTags(ctx, gameID)
}

func (m *Repository) ListTags(ctx context.Context, sessionID int64) ([]models.Tag, error) {
	if m.ListTagsError != nil {
		return nil, m.ListTagsError
	}
	return m.FullRepository.ListTags(ctx, sessionID)
}

func (m *Repository) DeleteOrphanTags(ctx context.Context, sessionID int64) (int64, error) {
	if m.DeleteOrphanTagsError != nil {
		return 0, m.DeleteOrphanTagsError
	}
	return m.FullRepository.DeleteOrphanTags(ctx, sessionID)
}

// ===== Vote Methods =====

func (m *Repository) GetVote(ctx context.Context, userID, gameID int64) (*models.Vote, error) {
	if m.GetVoteError != nil {
		return nil, m.GetVoteError
	}
	return m.FullRepository.GetVote(ctx, userID, gameID)
}

func (m *Repository) InsertVote(ctx context.Context, userID, gameID int64, weight int) error {
	if m.InsertVoteError != nil {
		return m.InsertVoteError
	}
	if m.InsertVoteHook != nil {
		if err := m.InsertVoteHook(ctx, userID, gameID); err != nil {
			return err
		}
	}
	return m.FullRepository.InsertVote(ctx, userID, gameID, weight)
}

func (m *Repository) UpdateVoteWeight(ctx context.Context, userID, gameID int64, weight int) error {
	if m.UpdateVoteWeightError != nil {
		return m.UpdateVoteWeightError
	}
	return m.FullRepository.UpdateVoteWeight(ctx, userID, gameID, weight)
}

func (m *Repository) DeleteVote(ctx context.Context, userID, gameID int64) error {
	if m.DeleteVoteError != nil {
		return m.DeleteVoteError
	}
	return m.FullRepository.DeleteVote(ctx, userID, gameID)
}

func (m *Repository) UserVoteWeights(ctx context.Context, userID int64) (map[int64]int, error) {
	if m.UserVoteWeightsError != nil {
		return nil, m.UserVoteWeightsError
	}
	return m.FullRepository.UserVoteWeights(ctx, userID)
}

func (m *Repository) GameVoteWeights(ctx context.Context, gameID int64) ([]int, error) {
	if m.GameVoteWeightsError != nil {
		return nil, m.GameVoteWeightsError
	}
	return m.FullRepository.GameVoteWeights(ctx, gameID)
}

func (m *Repository) DeleteSessionVotes(ctx context.Context, sessionID int64) (int64, error) {
	if m.DeleteSessionVotesError != nil {
		return 0, m.DeleteSessionVotesError
	}
	return m.FullRepository.DeleteSessionVotes(ctx, sessionID)
}

func (m *Repository) CountSessionVotes(ctx context.Context, sessionID int64) (int, error) {
	if m.CountSessionVotesError != nil {
		return 0, m.CountSessionVotesError
	}
	return m.FullRepository.CountSessionVotes(ctx, sessionID)
}
