package services

import (
	"context"

	"github.com/frankferrari/lanomat/internal/models"
	"github.com/frankferrari/lanomat/internal/repository"
	"github.com/frankferrari/lanomat/internal/scoring"
)

// penaltyRule is the part of a session the score of every game depends on
type penaltyRule struct {
	hasPrevious  bool
	previousTags []string
	penalty      int
}

func loadPenaltyRule(ctx context.Context, repo repository.GameRepository, s *models.Session) (penaltyRule, error) {
	rule := penaltyRule{penalty: s.Voting.PreviousGamePenalty}
	if s.PreviousGameID == nil {
		return rule, nil
	}
	tags, err := repo.GameTags(ctx, *s.PreviousGameID)
	if err != nil {
		return rule, err
	}
	rule.hasPrevious = true
	rule.previousTags = tags
	return rule, nil
}

func (p penaltyRule) score(weights []int, tags []string) int {
	return scoring.Score(scoring.Input{
		Weights:          weights,
		Tags:             tags,
		PreviousGameTags: p.previousTags,
		HasPreviousGame:  p.hasPrevious,
		Penalty:          p.penalty,
	})
}

// recomputeGame recalculates one game's score from its vote rows and stores it
func recomputeGame(ctx context.Context, repo repository.FullRepository, s *models.Session, gameID int64, tags []string) (int, error) {
	rule, err := loadPenaltyRule(ctx, repo, s)
	if err != nil {
		return 0, err
	}
	weights, err := repo.GameVoteWeights(ctx, gameID)
	if err != nil {
		return 0, err
	}
	score := rule.score(weights, tags)
	if err := repo.SetGameScore(ctx, gameID, score); err != nil {
		return 0, err
	}
	return score, nil
}

// recomputeSession recalculates every game's score in the session
func recomputeSession(ctx context.Context, repo repository.FullRepository, s *models.Session) ([]models.ScoreChange, error) {
	rule, err := loadPenaltyRule(ctx, repo, s)
	if err != nil {
		return nil, err
	}
	games, err := repo.ListGames(ctx, s.ID)
	if err != nil {
		return nil, err
	}

	changes := make([]models.ScoreChange, 0, len(games))
	for _, g := range games {
		weights, err := repo.GameVoteWeights(ctx, g.ID)
		if err != nil {
			return nil, err
		}
		score := rule.score(weights, g.Tags)
		if err := repo.SetGameScore(ctx, g.ID, score); err != nil {
			return nil, err
		}
		changes = append(changes, models.ScoreChange{GameID: g.ID, Score: score})
	}
	return changes, nil
}
