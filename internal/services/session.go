package services

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/skip2/go-qrcode"

	"github.com/frankferrari/lanomat/internal/errors"
	"github.com/frankferrari/lanomat/internal/logger"
	"github.com/frankferrari/lanomat/internal/models"
	"github.com/frankferrari/lanomat/internal/repository"
)

const (
	// CodeLength is the length of a session join code
	CodeLength = 5
	// MaxNameLength bounds player and game names
	MaxNameLength = 40

	codeAlphabet  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeAttempts  = 10
	defaultQRSize = 256
)

// SessionService handles session lifecycle, players and settings
type SessionService struct {
	log         logger.Logger
	repo        repository.FullRepository
	arena       *Arena
	broadcaster Broadcaster
	baseURL     string
	defaults    models.Session
	randReader  io.Reader // for testing: defaults to crypto/rand.Reader
	onEnd       []func(sessionID int64)
}

// NewSessionService creates a new SessionService. defaults supplies the
// settings of newly created sessions.
func NewSessionService(log logger.Logger, repo repository.FullRepository, arena *Arena, broadcaster Broadcaster, baseURL string, defaults models.Session) *SessionService {
	return &SessionService{
		log:         log,
		repo:        repo,
		arena:       arena,
		broadcaster: broadcaster,
		baseURL:     strings.TrimRight(baseURL, "/"),
		defaults:    defaults,
		randReader:  rand.Reader,
	}
}

// DefaultSettings returns the settings a new session starts with
func DefaultSettings() models.Session {
	return models.Session{
		Voting: models.VotingRules{
			BonusVoteBudget:     2,
			AllowDownvotes:      true,
			ExcludePreviousGame: false,
			PreviousGamePenalty: 2,
		},
		Countdown: models.CountdownConfig{Enabled: false, DurationMinutes: 5},
		Wheel: models.WheelConfig{
			Enabled:    false,
			FilterMode: models.FilterTopX,
			TopCount:   5,
		},
	}
}

// SetRandReader sets a custom random reader (for testing)
func (s *SessionService) SetRandReader(reader io.Reader) {
	s.randReader = reader
}

// OnEnd registers a callback run after a session has been ended
func (s *SessionService) OnEnd(fn func(sessionID int64)) {
	s.onEnd = append(s.onEnd, fn)
}

// SettingsUpdate is a partial settings change; nil fields are left alone
type SettingsUpdate struct {
	BonusVoteBudget          *int               `json:"bonus_vote_budget"`
	AllowDownvotes           *bool              `json:"allow_downvotes"`
	ExcludePreviousGame      *bool              `json:"exclude_previous_game"`
	PreviousGamePenalty      *int               `json:"previous_game_penalty"`
	CountdownEnabled         *bool              `json:"countdown_enabled"`
	CountdownDurationMinutes *int               `json:"countdown_duration_minutes"`
	WheelEnabled             *bool              `json:"wheel_enabled"`
	WheelFilterMode          *models.FilterMode `json:"wheel_filter_mode"`
	WheelTopCount            *int               `json:"wheel_top_count"`
	WheelProportional        *bool              `json:"wheel_proportional"`
}

// ValidateSettings checks the ranges of a full settings set
func ValidateSettings(v models.VotingRules, c models.CountdownConfig, w models.WheelConfig) error {
	switch {
	case v.BonusVoteBudget < 0:
		return invalidSettings("bonus vote budget must be 0 or more")
	case v.PreviousGamePenalty < 0:
		return invalidSettings("previous game penalty must be 0 or more")
	case c.DurationMinutes <= 0:
		return invalidSettings("countdown duration must be at least 1 minute")
	case !w.FilterMode.Valid():
		return invalidSettings(fmt.Sprintf("unknown wheel filter mode %q", w.FilterMode))
	case w.TopCount < MinEligibleGames:
		return invalidSettings(fmt.Sprintf("wheel top count must be at least %d", MinEligibleGames))
	}
	return nil
}

// NormalizeName trims a display name and checks its length
func NormalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.Validation("name is required")
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return "", errors.Validationf("name must be at most %d characters", MaxNameLength)
	}
	return name, nil
}

// NormalizeCode trims and upper-cases a join code
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// drawCode reads random bytes until it has CodeLength characters. Bytes at or
// above the largest multiple of the alphabet size are redrawn so every
// character is equally likely.
func (s *SessionService) drawCode() (string, error) {
	limit := 256 - 256%len(codeAlphabet)
	code := make([]byte, 0, CodeLength)
	b := make([]byte, 1)
	for len(code) < CodeLength {
		if _, err := io.ReadFull(s.randReader, b); err != nil {
			return "", fmt.Errorf("failed to generate session code: %w", err)
		}
		if int(b[0]) >= limit {
			continue
		}
		code = append(code, codeAlphabet[int(b[0])%len(codeAlphabet)])
	}
	return string(code), nil
}

func (s *SessionService) generateCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < codeAttempts; attempt++ {
		code, err := s.drawCode()
		if err != nil {
			return "", err
		}
		exists, err := s.repo.SessionCodeExists(ctx, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}
	return "", &errors.Error{Kind: errors.ErrConflict, Code: CodeSessionCodeExhausted, Message: "could not generate a unique session code"}
}

// CreateHost creates a new session with its first host
func (s *SessionService) CreateHost(ctx context.Context, name string) (*models.Session, *models.User, error) {
	name, err := NormalizeName(name)
	if err != nil {
		return nil, nil, err
	}
	code, err := s.generateCode(ctx)
	if err != nil {
		return nil, nil, err
	}

	var sessionID, userID int64
	err = s.repo.InTx(ctx, func(tx repository.FullRepository) error {
		var err error
		sessionID, err = tx.CreateSession(ctx, code, s.defaults)
		if err != nil {
			return err
		}
		userID, err = tx.CreateUser(ctx, sessionID, name, models.RoleHost)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	s.log.Info("Session created", "session_id", sessionID, "code", code, "host", name)
	return s.Identify(ctx, userID)
}

// Join adds a player to the session with the given code. A name already
// taken in that session (ignoring case) logs back in as that user.
func (s *SessionService) Join(ctx context.Context, code, name string) (*models.Session, *models.User, error) {
	name, err := NormalizeName(name)
	if err != nil {
		return nil, nil, err
	}
	code = NormalizeCode(code)
	if code == "" {
		return nil, nil, errors.Validation("session code is required")
	}

	session, err := s.repo.GetSessionByCode(ctx, code)
	if err == repository.ErrNotFound {
		return nil, nil, errors.NotFoundf("no session with code %s", code)
	}
	if err != nil {
		return nil, nil, err
	}

	user, err := s.repo.FindUserByName(ctx, session.ID, name)
	if err == nil {
		s.log.Info("Player rejoined", "session_id", session.ID, "user_id", user.ID)
		return session, user, nil
	}
	if err != repository.ErrNotFound {
		return nil, nil, err
	}

	userID, err := s.repo.CreateUser(ctx, session.ID, name, models.RolePlayer)
	if err == repository.ErrDuplicate {
		// joined concurrently under the same name
		user, err = s.repo.FindUserByName(ctx, session.ID, name)
		if err != nil {
			return nil, nil, err
		}
		return session, user, nil
	}
	if err != nil {
		return nil, nil, err
	}

	user, err = s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	s.log.Info("Player joined", "session_id", session.ID, "user_id", user.ID, "name", user.Name)
	s.broadcaster.BroadcastToSession(session.ID, EventPlayersChanged, user)
	return session, user, nil
}

// End destroys the session and everything it owns
func (s *SessionService) End(ctx context.Context, sessionID int64) error {
	unlock := s.arena.LockSession(sessionID)
	err := s.repo.DeleteSession(ctx, sessionID)
	unlock()
	if err == repository.ErrNotFound {
		return ErrSessionNotFound
	}
	if err != nil {
		return err
	}

	s.log.Info("Session ended", "session_id", sessionID)
	s.broadcaster.BroadcastToSession(sessionID, EventSessionEnded, map[string]any{"session_id": sessionID})
	s.arena.Forget(sessionID)
	for _, fn := range s.onEnd {
		fn(sessionID)
	}
	return nil
}

// Get returns a session by ID
func (s *SessionService) Get(ctx context.Context, sessionID int64) (*models.Session, error) {
	session, err := s.repo.GetSession(ctx, sessionID)
	if err == repository.ErrNotFound {
		return nil, ErrSessionNotFound
	}
	return session, err
}

// Identify resolves a user ID into the user and their session
func (s *SessionService) Identify(ctx context.Context, userID int64) (*models.Session, *models.User, error) {
	user, err := s.repo.GetUser(ctx, userID)
	if err == repository.ErrNotFound {
		return nil, nil, ErrUserNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	session, err := s.Get(ctx, user.SessionID)
	if err != nil {
		return nil, nil, err
	}
	return session, user, nil
}

// ListPlayers returns the users of a session in join order
func (s *SessionService) ListPlayers(ctx context.Context, sessionID int64) ([]models.User, error) {
	users, err := s.repo.ListUsers(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []models.User{}
	}
	return users, nil
}

// memberOf loads a user and checks it belongs to the session
func memberOf(ctx context.Context, repo repository.UserRepository, sessionID, userID int64) (*models.User, error) {
	user, err := repo.GetUser(ctx, userID)
	if err == repository.ErrNotFound || (err == nil && user.SessionID != sessionID) {
		return nil, ErrUserNotFound
	}
	return user, err
}

// RenamePlayer changes a player's display name
func (s *SessionService) RenamePlayer(ctx context.Context, sessionID, userID int64, name string) (*models.User, error) {
	name, err := NormalizeName(name)
	if err != nil {
		return nil, err
	}
	user, err := memberOf(ctx, s.repo, sessionID, userID)
	if err != nil {
		return nil, err
	}

	if err := s.repo.UpdateUserName(ctx, userID, name); err != nil {
		if err == repository.ErrDuplicate {
			return nil, duplicateName("player", name)
		}
		return nil, err
	}
	user.Name = name
	s.broadcaster.BroadcastToSession(sessionID, EventPlayersChanged, user)
	return user, nil
}

// Promote makes a player a host
func (s *SessionService) Promote(ctx context.Context, sessionID, actorID, userID int64) (*models.User, error) {
	return s.setRole(ctx, sessionID, actorID, userID, models.RoleHost)
}

// Demote makes a host a regular player. The last host cannot be demoted and
// hosts cannot demote themselves.
func (s *SessionService) Demote(ctx context.Context, sessionID, actorID, userID int64) (*models.User, error) {
	return s.setRole(ctx, sessionID, actorID, userID, models.RolePlayer)
}

// Moderate lets a player run the voting round without full host rights.
// Demoting a host to moderator follows the same rules as Demote.
func (s *SessionService) Moderate(ctx context.Context, sessionID, actorID, userID int64) (*models.User, error) {
	return s.setRole(ctx, sessionID, actorID, userID, models.RoleModerator)
}

func (s *SessionService) setRole(ctx context.Context, sessionID, actorID, userID int64, role models.Role) (*models.User, error) {
	unlock := s.arena.LockSession(sessionID)
	defer unlock()

	var user *models.User
	err := s.repo.InTx(ctx, func(tx repository.FullRepository) error {
		var err error
		user, err = memberOf(ctx, tx, sessionID, userID)
		if err != nil {
			return err
		}
		if user.Role == role {
			return nil
		}
		if user.IsHost() && role != models.RoleHost {
			if actorID == userID {
				return ErrSelfAction
			}
			hosts, err := tx.CountHosts(ctx, sessionID)
			if err != nil {
				return err
			}
			if hosts <= 1 {
				return ErrLastHost
			}
		}
		if err := tx.UpdateUserRole(ctx, userID, role); err != nil {
			return err
		}
		user.Role = role
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("Player role changed", "session_id", sessionID, "user_id", userID, "role", role)
	s.broadcaster.BroadcastToSession(sessionID, EventPlayersChanged, user)
	return user, nil
}

// RemovePlayer deletes a player and their votes, then recomputes scores
func (s *SessionService) RemovePlayer(ctx context.Context, sessionID, actorID, userID int64) error {
	if actorID == userID {
		return ErrSelfAction
	}

	unlock := s.arena.LockSession(sessionID)
	defer unlock()

	var changes []models.ScoreChange
	err := s.repo.InTx(ctx, func(tx repository.FullRepository) error {
		user, err := memberOf(ctx, tx, sessionID, userID)
		if err != nil {
			return err
		}
		if user.IsHost() {
			hosts, err := tx.CountHosts(ctx, sessionID)
			if err != nil {
				return err
			}
			if hosts <= 1 {
				return ErrLastHost
			}
		}
		if err := tx.DeleteUser(ctx, userID); err != nil {
			return err
		}
		session, err := tx.GetSession(ctx, sessionID)
		if err != nil {
			return err
		}
		changes, err = recomputeSession(ctx, tx, session)
		return err
	})
	if err != nil {
		return err
	}

	s.arena.ForgetUser(sessionID, userID)
	s.log.Info("Player removed", "session_id", sessionID, "user_id", userID)
	s.broadcaster.BroadcastToSession(sessionID, EventPlayersChanged, map[string]any{"removed_id": userID})
	s.broadcaster.BroadcastToSession(sessionID, EventScores, changes)
	return nil
}

// UpdateSettings applies a partial settings change. Changing the penalty
// recomputes every score; disabling the countdown returns it to Idle.
func (s *SessionService) UpdateSettings(ctx context.Context, sessionID int64, update SettingsUpdate) (*models.Session, error) {
	unlock := s.arena.LockSession(sessionID)
	defer unlock()

	var session *models.Session
	var changes []models.ScoreChange
	err := s.repo.InTx(ctx, func(tx repository.FullRepository) error {
		var err error
		session, err = tx.GetSession(ctx, sessionID)
		if err == repository.ErrNotFound {
			return ErrSessionNotFound
		}
		if err != nil {
			return err
		}

		before := *session
		applySettings(session, update)
		if err := ValidateSettings(session.Voting, session.Countdown, session.Wheel); err != nil {
			return err
		}

		if err := tx.UpdateSessionSettings(ctx, sessionID, session.Voting, session.Countdown, session.Wheel); err != nil {
			return err
		}
		if before.Countdown.Enabled && !session.Countdown.Enabled {
			session.CountdownState = models.CountdownRuntime{}
			if err := tx.SetCountdownRuntime(ctx, sessionID, session.CountdownState); err != nil {
				return err
			}
		}
		if before.Voting.PreviousGamePenalty != session.Voting.PreviousGamePenalty {
			changes, err = recomputeSession(ctx, tx, session)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("Settings updated", "session_id", sessionID)
	s.broadcaster.BroadcastToSession(sessionID, EventSettings, session)
	if changes != nil {
		s.broadcaster.BroadcastToSession(sessionID, EventScores, changes)
	}
	return session, nil
}

func applySettings(s *models.Session, u SettingsUpdate) {
	if u.BonusVoteBudget != nil {
		s.Voting.BonusVoteBudget = *u.BonusVoteBudget
	}
	if u.AllowDownvotes != nil {
		s.Voting.AllowDownvotes = *u.AllowDownvotes
	}
	if u.ExcludePreviousGame != nil {
		s.Voting.ExcludePreviousGame = *u.ExcludePreviousGame
	}
	if u.PreviousGamePenalty != nil {
		s.Voting.PreviousGamePenalty = *u.PreviousGamePenalty
	}
	if u.CountdownEnabled != nil {
		s.Countdown.Enabled = *u.CountdownEnabled
	}
	if u.CountdownDurationMinutes != nil {
		s.Countdown.DurationMinutes = *u.CountdownDurationMinutes
	}
	if u.WheelEnabled != nil {
		s.Wheel.Enabled = *u.WheelEnabled
	}
	if u.WheelFilterMode != nil {
		s.Wheel.FilterMode = *u.WheelFilterMode
	}
	if u.WheelTopCount != nil {
		s.Wheel.TopCount = *u.WheelTopCount
	}
	if u.WheelProportional != nil {
		s.Wheel.Proportional = *u.WheelProportional
	}
}

// JoinURL returns the link players open to join a session
func (s *SessionService) JoinURL(code string) string {
	return s.baseURL + "/join?code=" + url.QueryEscape(code)
}

// JoinQR renders the session's join link as a PNG QR code
func (s *SessionService) JoinQR(ctx context.Context, sessionID int64, size int) ([]byte, error) {
	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		size = defaultQRSize
	}
	return qrcode.Encode(s.JoinURL(session.Code), qrcode.Medium, size)
}
