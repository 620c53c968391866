package services

import (
	"context"
	stderrors "errors"

	"github.com/jonboulle/clockwork"

	"github.com/frankferrari/lanomat/internal/errors"
	"github.com/frankferrari/lanomat/internal/logger"
	"github.com/frankferrari/lanomat/internal/models"
	"github.com/frankferrari/lanomat/internal/repository"
	"github.com/frankferrari/lanomat/internal/scoring"
)

// VoteLedger owns the weighted votes of every user and keeps game scores in
// step with them
type VoteLedger struct {
	log         logger.Logger
	repo        repository.FullRepository
	arena       *Arena
	broadcaster Broadcaster
	clock       clockwork.Clock
}

// NewVoteLedger creates a new VoteLedger
func NewVoteLedger(log logger.Logger, repo repository.FullRepository, arena *Arena, broadcaster Broadcaster, clock clockwork.Clock) *VoteLedger {
	return &VoteLedger{
		log:         log,
		repo:        repo,
		arena:       arena,
		broadcaster: broadcaster,
		clock:       clock,
	}
}

// VoteResult is the state of one (user, game) pair after a vote action
type VoteResult struct {
	GameID         int64 `json:"game_id"`
	Weight         int   `json:"weight"`
	Score          int   `json:"score"`
	BonusUsed      int   `json:"bonus_used"`
	BonusRemaining int   `json:"bonus_remaining"`
	Changed        bool  `json:"changed"`
}

// UserVotes is a user's view of their own ballot
type UserVotes struct {
	Votes          map[int64]int `json:"votes"`
	BonusBudget    int           `json:"bonus_budget"`
	BonusUsed      int           `json:"bonus_used"`
	BonusRemaining int           `json:"bonus_remaining"`
}

// nextWeight applies a vote action to the current weight (0 when there is no
// vote). A result of 0 means the vote row is deleted.
func nextWeight(current int, direction models.Direction, allowDownvotes bool) (int, error) {
	switch direction {
	case models.DirectionUp:
		// from -1 this lands on 0, which deletes the vote
		return current + 1, nil
	case models.DirectionDown:
		if !allowDownvotes && current <= 0 {
			return current, ErrDownvotesDisabled
		}
		switch {
		case current > 0:
			return current - 1, nil
		case current == 0:
			return -1, nil
		default:
			// floor at -1
			return current, nil
		}
	default:
		return current, ErrInvalidDirection
	}
}

// CastVote applies an up or down action by a user on a game
func (l *VoteLedger) CastVote(ctx context.Context, sessionID, userID, gameID int64, direction models.Direction) (*VoteResult, error) {
	if direction != models.DirectionUp && direction != models.DirectionDown {
		return nil, ErrInvalidDirection
	}

	unlock := l.arena.LockUser(sessionID, userID)
	defer unlock()

	result, err := l.castOnce(ctx, sessionID, userID, gameID, direction)
	if stderrors.Is(err, repository.ErrDuplicate) {
		// Another writer created the row between our read and insert
		l.log.Warn("Vote conflict, retrying", "session_id", sessionID, "user_id", userID, "game_id", gameID)
		result, err = l.castOnce(ctx, sessionID, userID, gameID, direction)
		if stderrors.Is(err, repository.ErrDuplicate) {
			return nil, ErrVoteConflict
		}
	}
	if err != nil {
		return nil, err
	}

	if result.Changed {
		l.broadcaster.BroadcastToSession(sessionID, EventScoreChanged, models.ScoreChange{
			GameID: gameID,
			Score:  result.Score,
		})
	}
	return result, nil
}

func (l *VoteLedger) castOnce(ctx context.Context, sessionID, userID, gameID int64, direction models.Direction) (*VoteResult, error) {
	var result *VoteResult
	err := l.repo.InTx(ctx, func(tx repository.FullRepository) error {
		session, err := tx.GetSession(ctx, sessionID)
		if err == repository.ErrNotFound {
			return ErrSessionNotFound
		}
		if err != nil {
			return err
		}

		if EvaluateCountdown(session, l.clock.Now()).Closed {
			return ErrVotingClosed
		}

		game, err := tx.GetGame(ctx, sessionID, gameID)
		if err == repository.ErrNotFound {
			return ErrGameNotFound
		}
		if err != nil {
			return err
		}

		if session.Voting.ExcludePreviousGame && session.PreviousGameID != nil && *session.PreviousGameID == gameID {
			return ErrPreviousGameExcluded
		}

		weights, err := tx.UserVoteWeights(ctx, userID)
		if err != nil {
			return err
		}
		current := weights[gameID]

		next, err := nextWeight(current, direction, session.Voting.AllowDownvotes)
		if err != nil {
			return err
		}

		if next != 0 {
			weights[gameID] = next
		} else {
			delete(weights, gameID)
		}
		used := bonusSpend(weights)

		// The budget only blocks growth; shrinking an over-budget ballot is fine
		if next > current && next > 1 && used > session.Voting.BonusVoteBudget {
			return ErrBonusBudgetExceeded
		}

		result = &VoteResult{
			GameID:         gameID,
			Weight:         next,
			BonusUsed:      used,
			BonusRemaining: max(session.Voting.BonusVoteBudget-used, 0),
			Changed:        next != current,
		}

		if !result.Changed {
			result.Score = game.Score
			return nil
		}

		switch {
		case current == 0:
			err = tx.InsertVote(ctx, userID, gameID, next)
		case next == 0:
			err = tx.DeleteVote(ctx, userID, gameID)
		default:
			err = tx.UpdateVoteWeight(ctx, userID, gameID, next)
		}
		if err != nil {
			return err
		}

		result.Score, err = recomputeGame(ctx, tx, session, gameID, game.Tags)
		return err
	})
	if err != nil {
		return nil, err
	}

	l.log.Debug("Vote cast",
		"session_id", sessionID,
		"user_id", userID,
		"game_id", gameID,
		"direction", direction,
		"weight", result.Weight,
		"score", result.Score)
	return result, nil
}

// ResetAll deletes every vote in the session and recomputes all scores in
// one transaction, then emits a single votes_reset event
func (l *VoteLedger) ResetAll(ctx context.Context, sessionID int64) ([]models.ScoreChange, error) {
	unlock := l.arena.LockSession(sessionID)
	defer unlock()

	var changes []models.ScoreChange
	var removed int64
	err := l.repo.InTx(ctx, func(tx repository.FullRepository) error {
		session, err := tx.GetSession(ctx, sessionID)
		if err == repository.ErrNotFound {
			return ErrSessionNotFound
		}
		if err != nil {
			return err
		}

		removed, err = tx.DeleteSessionVotes(ctx, sessionID)
		if err != nil {
			return err
		}

		changes, err = recomputeSession(ctx, tx, session)
		return err
	})
	if err != nil {
		return nil, err
	}

	l.log.Info("Votes reset", "session_id", sessionID, "votes_removed", removed)
	l.broadcaster.BroadcastToSession(sessionID, EventVotesReset, map[string]any{
		"scores": changes,
	})
	return changes, nil
}

// UserVotes returns a user's weights and bonus spend
func (l *VoteLedger) UserVotes(ctx context.Context, sessionID, userID int64) (*UserVotes, error) {
	session, err := l.repo.GetSession(ctx, sessionID)
	if err == repository.ErrNotFound {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, errors.Internal(err)
	}

	weights, err := l.repo.UserVoteWeights(ctx, userID)
	if err != nil {
		return nil, errors.Internal(err)
	}

	used := bonusSpend(weights)
	return &UserVotes{
		Votes:          weights,
		BonusBudget:    session.Voting.BonusVoteBudget,
		BonusUsed:      used,
		BonusRemaining: max(session.Voting.BonusVoteBudget-used, 0),
	}, nil
}

func bonusSpend(weights map[int64]int) int {
	list := make([]int, 0, len(weights))
	for _, w := range weights {
		list = append(list, w)
	}
	return scoring.BonusSpend(list)
}
