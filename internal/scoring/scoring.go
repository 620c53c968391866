// Package scoring computes a game's ranking score from its votes.
//
// The score stored on a game is only a cache of Score; every write of that
// cache must come from here.
package scoring

import "github.com/frankferrari/lanomat/internal/models"

// Input is everything the score of one game depends on
type Input struct {
	// Weights of every vote cast for the game
	Weights []int
	// Tags of the game
	Tags []string
	// PreviousGameTags are the tags of the session's previous game. Nil when
	// the session has no previous game.
	PreviousGameTags []string
	// HasPreviousGame is true when the session points at a previous game
	HasPreviousGame bool
	// Penalty subtracted when the game shares a tag with the previous game
	Penalty int
}

// Score returns Σ weight, minus Penalty when the game shares at least one tag
// with the previous game. The result is not floored.
func Score(in Input) int {
	raw := RawScore(in.Weights)
	if in.HasPreviousGame && in.Penalty != 0 && SharesTag(in.Tags, in.PreviousGameTags) {
		return raw - in.Penalty
	}
	return raw
}

// RawScore sums vote weights
func RawScore(weights []int) int {
	total := 0
	for _, w := range weights {
		total += w
	}
	return total
}

// SharesTag reports whether a and b have a tag in common, ignoring case and
// surrounding whitespace.
func SharesTag(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	seen := make(map[string]struct{}, len(a))
	for _, t := range a {
		seen[normalize(t)] = struct{}{}
	}
	for _, t := range b {
		if _, ok := seen[normalize(t)]; ok {
			return true
		}
	}
	return false
}

// BonusSpend is Σ max(weight-1, 0): the bonus votes a user has used
func BonusSpend(weights []int) int {
	spend := 0
	for _, w := range weights {
		if w > 1 {
			spend += w - 1
		}
	}
	return spend
}

func normalize(tag string) string {
	return models.NameKey(tag)
}
