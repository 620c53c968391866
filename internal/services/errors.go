package services

import (
	"github.com/frankferrari/lanomat/internal/errors"
)

// Rejection codes surfaced to clients
const (
	CodeVotingClosed         = "VOTING_CLOSED"
	CodeDownvotesDisabled    = "DOWNVOTES_DISABLED"
	CodePreviousGameExcluded = "PREVIOUS_GAME_EXCLUDED"
	CodeSpinNotAllowed       = "SPIN_NOT_ALLOWED"
	CodeCountdownDisabled    = "COUNTDOWN_DISABLED"
	CodeCountdownNotRunning  = "COUNTDOWN_NOT_RUNNING"
	CodeLastHost             = "LAST_HOST"
	CodeSelfAction           = "SELF_ACTION"
	CodeBonusBudgetExceeded  = "BONUS_BUDGET_EXCEEDED"
	CodeVoteConflict         = "VOTE_CONFLICT"
	CodeDuplicateName        = "DUPLICATE_NAME"
	CodeInvalidSettings      = "INVALID_SETTINGS"
	CodeInvalidDirection     = "INVALID_DIRECTION"
	CodeSessionCodeExhausted = "SESSION_CODE_EXHAUSTED"
)

// Service errors
var (
	ErrVotingClosed         = errors.Rejected(CodeVotingClosed, "voting closed")
	ErrDownvotesDisabled    = errors.Rejected(CodeDownvotesDisabled, "downvoting disabled")
	ErrPreviousGameExcluded = errors.Rejected(CodePreviousGameExcluded, "previous game is excluded from voting")
	ErrCountdownDisabled    = errors.Rejected(CodeCountdownDisabled, "countdown disabled")
	ErrCountdownNotRunning  = errors.Rejected(CodeCountdownNotRunning, "countdown not running")
	ErrLastHost             = errors.Rejected(CodeLastHost, "a session needs at least one host")
	ErrSelfAction           = errors.Rejected(CodeSelfAction, "hosts cannot do this to themselves")

	ErrBonusBudgetExceeded = &errors.Error{Kind: errors.ErrValidation, Code: CodeBonusBudgetExceeded, Message: "bonus vote budget exceeded"}
	ErrVoteConflict        = &errors.Error{Kind: errors.ErrValidation, Code: CodeVoteConflict, Message: "vote changed concurrently, try again"}
	ErrInvalidDirection    = &errors.Error{Kind: errors.ErrInvalidInput, Code: CodeInvalidDirection, Message: "direction must be up or down"}

	ErrSessionNotFound = errors.NotFound("session not found")
	ErrUserNotFound    = errors.NotFound("player not found")
	ErrGameNotFound    = errors.NotFound("game not found")
)

// ErrSpinNotAllowed wraps the reason a spin cannot start
func ErrSpinNotAllowed(reason string) *errors.Error {
	return errors.Rejected(CodeSpinNotAllowed, reason)
}

// duplicateName reports a case-insensitive name clash
func duplicateName(what, name string) *errors.Error {
	return &errors.Error{Kind: errors.ErrValidation, Code: CodeDuplicateName, Message: what + " \"" + name + "\" already exists"}
}

// invalidSettings reports a settings validation failure
func invalidSettings(msg string) *errors.Error {
	return &errors.Error{Kind: errors.ErrValidation, Code: CodeInvalidSettings, Message: msg}
}
