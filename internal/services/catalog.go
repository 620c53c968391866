package services

import (
	"context"
	"strings"

	"github.com/frankferrari/lanomat/internal/errors"
	"github.com/frankferrari/lanomat/internal/logger"
	"github.com/frankferrari/lanomat/internal/models"
	"github.com/frankferrari/lanomat/internal/repository"
)

// CatalogService manages the games and tags of a session
type CatalogService struct {
	log         logger.Logger
	repo        repository.FullRepository
	arena       *Arena
	broadcaster Broadcaster
}

// NewCatalogService creates a new CatalogService
func NewCatalogService(log logger.Logger, repo repository.FullRepository, arena *Arena, broadcaster Broadcaster) *CatalogService {
	return &CatalogService{
		log:         log,
		repo:        repo,
		arena:       arena,
		broadcaster: broadcaster,
	}
}

// GameInput is the editable part of a game
type GameInput struct {
	Name       string   `json:"name"`
	Price      string   `json:"price"`
	MaxPlayers *int     `json:"max_players"`
	Tags       []string `json:"tags"`
}

func (in GameInput) normalize() (GameInput, error) {
	name, err := NormalizeName(in.Name)
	if err != nil {
		return in, err
	}
	in.Name = name
	in.Price = strings.TrimSpace(in.Price)
	if in.MaxPlayers != nil && *in.MaxPlayers < 1 {
		return in, errors.Validation("max players must be at least 1")
	}

	// trim and drop blank or repeated tags
	seen := make(map[string]bool, len(in.Tags))
	tags := make([]string, 0, len(in.Tags))
	for _, t := range in.Tags {
		t = strings.TrimSpace(t)
		key := models.NameKey(t)
		if t == "" || seen[key] {
			continue
		}
		if len(t) > MaxNameLength {
			return in, errors.Validationf("tag %q is too long", t)
		}
		seen[key] = true
		tags = append(tags, t)
	}
	in.Tags = tags
	return in, nil
}

// ListGames returns the games of a session by score then name, optionally
// only those carrying tag (ignoring case)
func (c *CatalogService) ListGames(ctx context.Context, sessionID int64, tag string) ([]models.Game, error) {
	games, err := c.repo.ListGames(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	tag = models.NameKey(tag)
	if tag == "" {
		if games == nil {
			games = []models.Game{}
		}
		return games, nil
	}

	filtered := []models.Game{}
	for _, g := range games {
		for _, t := range g.Tags {
			if models.NameKey(t) == tag {
				filtered = append(filtered, g)
				break
			}
		}
	}
	return filtered, nil
}

func attachTags(ctx context.Context, tx repository.FullRepository, sessionID, gameID int64, tags []string) error {
	ids := make([]int64, 0, len(tags))
	for _, t := range tags {
		id, err := tx.FindOrCreateTag(ctx, sessionID, t)
		if err != nil {
			return err
		}
		ids = append(ids, id)
	}
	return tx.SetGameTags(ctx, gameID, ids)
}

// CreateGame adds a game to the session's catalog
func (c *CatalogService) CreateGame(ctx context.Context, sessionID int64, input GameInput) (*models.Game, error) {
	input, err := input.normalize()
	if err != nil {
		return nil, err
	}

	unlock := c.arena.LockSession(sessionID)
	defer unlock()

	var game *models.Game
	err = c.repo.InTx(ctx, func(tx repository.FullRepository) error {
		session, err := tx.GetSession(ctx, sessionID)
		if err == repository.ErrNotFound {
			return ErrSessionNotFound
		}
		if err != nil {
			return err
		}

		id, err := tx.CreateGame(ctx, sessionID, input.Name, input.Price, input.MaxPlayers)
		if err == repository.ErrDuplicate {
			return duplicateName("game", input.Name)
		}
		if err != nil {
			return err
		}
		if err := attachTags(ctx, tx, sessionID, id, input.Tags); err != nil {
			return err
		}
		// a new game may already carry the previous game's penalty
		if _, err := recomputeGame(ctx, tx, session, id, input.Tags); err != nil {
			return err
		}
		game, err = tx.GetGame(ctx, sessionID, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	c.log.Info("Game created", "session_id", sessionID, "game_id", game.ID, "name", game.Name)
	c.broadcaster.BroadcastToSession(sessionID, EventGamesChanged, map[string]any{"action": "created", "game": game})
	return game, nil
}

// UpdateGame edits a game. Its tags may change which games share a tag with
// the previous game, so every score is recomputed.
func (c *CatalogService) UpdateGame(ctx context.Context, sessionID, gameID int64, input GameInput) (*models.Game, error) {
	input, err := input.normalize()
	if err != nil {
		return nil, err
	}

	unlock := c.arena.LockSession(sessionID)
	defer unlock()

	var game *models.Game
	var changes []models.ScoreChange
	err = c.repo.InTx(ctx, func(tx repository.FullRepository) error {
		session, err := tx.GetSession(ctx, sessionID)
		if err == repository.ErrNotFound {
			return ErrSessionNotFound
		}
		if err != nil {
			return err
		}
		if _, err := tx.GetGame(ctx, sessionID, gameID); err == repository.ErrNotFound {
			return ErrGameNotFound
		} else if err != nil {
			return err
		}

		err = tx.UpdateGame(ctx, gameID, input.Name, input.Price, input.MaxPlayers)
		if err == repository.ErrDuplicate {
			return duplicateName("game", input.Name)
		}
		if err != nil {
			return err
		}
		if err := attachTags(ctx, tx, sessionID, gameID, input.Tags); err != nil {
			return err
		}
		if _, err := tx.DeleteOrphanTags(ctx, sessionID); err != nil {
			return err
		}
		if changes, err = recomputeSession(ctx, tx, session); err != nil {
			return err
		}
		game, err = tx.GetGame(ctx, sessionID, gameID)
		return err
	})
	if err != nil {
		return nil, err
	}

	c.log.Info("Game updated", "session_id", sessionID, "game_id", gameID)
	c.broadcaster.BroadcastToSession(sessionID, EventGamesChanged, map[string]any{"action": "updated", "game": game})
	c.broadcaster.BroadcastToSession(sessionID, EventScores, changes)
	return game, nil
}

// DeleteGame removes a game with its votes. A spin showing the game is
// dismissed, the previous-game pointer is cleared if it referenced it, and
// unused tags are garbage-collected.
func (c *CatalogService) DeleteGame(ctx context.Context, sessionID, gameID int64) error {
	unlock := c.arena.LockSession(sessionID)
	defer unlock()

	var dismissed bool
	var changes []models.ScoreChange
	err := c.repo.InTx(ctx, func(tx repository.FullRepository) error {
		session, err := tx.GetSession(ctx, sessionID)
		if err == repository.ErrNotFound {
			return ErrSessionNotFound
		}
		if err != nil {
			return err
		}
		if _, err := tx.GetGame(ctx, sessionID, gameID); err == repository.ErrNotFound {
			return ErrGameNotFound
		} else if err != nil {
			return err
		}

		if spinShows(session.WheelState, gameID) {
			if err := tx.SetWheelRuntime(ctx, sessionID, models.WheelRuntime{}); err != nil {
				return err
			}
			dismissed = true
		}

		wasPrevious := session.PreviousGameID != nil && *session.PreviousGameID == gameID
		if err := tx.DeleteGame(ctx, gameID); err != nil {
			return err
		}
		if _, err := tx.DeleteOrphanTags(ctx, sessionID); err != nil {
			return err
		}
		if wasPrevious {
			session.PreviousGameID = nil
			changes, err = recomputeSession(ctx, tx, session)
		}
		return err
	})
	if err != nil {
		return err
	}

	c.log.Info("Game deleted", "session_id", sessionID, "game_id", gameID)
	c.broadcaster.BroadcastToSession(sessionID, EventGamesChanged, map[string]any{"action": "deleted", "game_id": gameID})
	if dismissed {
		c.broadcaster.BroadcastToSession(sessionID, EventWheelDismissed, map[string]any{})
	}
	if changes != nil {
		c.broadcaster.BroadcastToSession(sessionID, EventScores, changes)
	}
	return nil
}

func spinShows(rt models.WheelRuntime, gameID int64) bool {
	if !rt.Active() {
		return false
	}
	if *rt.WinnerGameID == gameID {
		return true
	}
	for _, e := range rt.Games {
		if e.GameID == gameID {
			return true
		}
	}
	return false
}

// ListTags returns the tags in use in the session
func (c *CatalogService) ListTags(ctx context.Context, sessionID int64) ([]models.Tag, error) {
	tags, err := c.repo.ListTags(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if tags == nil {
		tags = []models.Tag{}
	}
	return tags, nil
}

// SetPreviousGame sets (or with nil clears) the game played last and
// recomputes every score against the new penalty rule
func (c *CatalogService) SetPreviousGame(ctx context.Context, sessionID int64, gameID *int64) ([]models.ScoreChange, error) {
	unlock := c.arena.LockSession(sessionID)
	defer unlock()

	var changes []models.ScoreChange
	err := c.repo.InTx(ctx, func(tx repository.FullRepository) error {
		session, err := tx.GetSession(ctx, sessionID)
		if err == repository.ErrNotFound {
			return ErrSessionNotFound
		}
		if err != nil {
			return err
		}
		if gameID != nil {
			if _, err := tx.GetGame(ctx, sessionID, *gameID); err == repository.ErrNotFound {
				return ErrGameNotFound
			} else if err != nil {
				return err
			}
		}
		if err := tx.SetPreviousGame(ctx, sessionID, gameID); err != nil {
			return err
		}
		session.PreviousGameID = gameID
		changes, err = recomputeSession(ctx, tx, session)
		return err
	})
	if err != nil {
		return nil, err
	}

	c.log.Info("Previous game set", "session_id", sessionID, "game_id", gameID)
	c.broadcaster.BroadcastToSession(sessionID, EventScores, changes)
	return changes, nil
}
