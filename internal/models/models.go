package models

import "time"

// Role of a user within a session
type Role string

const (
	RolePlayer    Role = "player"
	RoleHost      Role = "host"
	RoleModerator Role = "moderator"
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	return r == RolePlayer || r == RoleHost || r == RoleModerator
}

// FilterMode selects which games the wheel may land on
type FilterMode string

const (
	FilterTopX        FilterMode = "top_x"
	FilterAll         FilterMode = "all"
	FilterTiedWinners FilterMode = "tied_winners"
)

// Valid reports whether m is a known filter mode
func (m FilterMode) Valid() bool {
	return m == FilterTopX || m == FilterAll || m == FilterTiedWinners
}

// Direction of a vote action
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// VotingRules are the per-session voting settings
type VotingRules struct {
	BonusVoteBudget     int  `json:"bonus_vote_budget"`
	AllowDownvotes      bool `json:"allow_downvotes"`
	ExcludePreviousGame bool `json:"exclude_previous_game"`
	PreviousGamePenalty int  `json:"previous_game_penalty"`
}

// CountdownConfig configures the voting window
type CountdownConfig struct {
	Enabled         bool `json:"enabled"`
	DurationMinutes int  `json:"duration_minutes"`
}

// WheelConfig configures the wheel of fortune
type WheelConfig struct {
	Enabled      bool       `json:"enabled"`
	FilterMode   FilterMode `json:"filter_mode"`
	TopCount     int        `json:"top_count"`
	Proportional bool       `json:"proportional"`
}

// CountdownRuntime is the stored countdown state. At most one field is set:
// EndsAt while running, RemainingSeconds while paused, neither while idle.
type CountdownRuntime struct {
	EndsAt           *time.Time `json:"ends_at,omitempty"`
	RemainingSeconds *int       `json:"remaining_seconds,omitempty"`
}

// WheelRuntime is the stored state of the current spin, if any
type WheelRuntime struct {
	SpinID       string       `json:"spin_id,omitempty"`
	StartAt      *time.Time   `json:"start_at,omitempty"`
	WinnerGameID *int64       `json:"winner_id,omitempty"`
	Games        []WheelEntry `json:"games,omitempty"`
	Proportional bool         `json:"proportional"`
}

// Active reports whether a spin is in progress
func (w WheelRuntime) Active() bool {
	return w.SpinID != "" && w.StartAt != nil && w.WinnerGameID != nil
}

// Session is one physical gathering
type Session struct {
	ID             int64            `json:"id"`
	Code           string           `json:"code"`
	Voting         VotingRules      `json:"voting"`
	Countdown      CountdownConfig  `json:"countdown"`
	Wheel          WheelConfig      `json:"wheel"`
	PreviousGameID *int64           `json:"previous_game_id"`
	CountdownState CountdownRuntime `json:"-"`
	WheelState     WheelRuntime     `json:"-"`
	CreatedAt      time.Time        `json:"created_at"`
}

// User is an identity within exactly one session
type User struct {
	ID        int64     `json:"id"`
	SessionID int64     `json:"session_id"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// IsHost reports whether the user may run host actions
func (u *User) IsHost() bool {
	return u != nil && u.Role == RoleHost
}

// CanRunRound reports whether u may drive the voting round: countdown,
// wheel and vote reset. Hosts and moderators can.
func (u *User) CanRunRound() bool {
	return u != nil && (u.Role == RoleHost || u.Role == RoleModerator)
}

// Game is a candidate title. Score is a cache maintained by the vote ledger.
type Game struct {
	ID         int64    `json:"id"`
	SessionID  int64    `json:"session_id"`
	Name       string   `json:"name"`
	Price      string   `json:"price,omitempty"`
	MaxPlayers *int     `json:"max_players,omitempty"`
	Score      int      `json:"score"`
	Tags       []string `json:"tags"`
}

// Tag is a label shared by games in a session
type Tag struct {
	ID        int64  `json:"id"`
	SessionID int64  `json:"session_id"`
	Name      string `json:"name"`
	GameCount int    `json:"game_count"`
}

// Vote is a weighted preference of one user for one game. Weight is never 0.
type Vote struct {
	UserID int64 `json:"user_id"`
	GameID int64 `json:"game_id"`
	Weight int   `json:"weight"`
}

// CountdownStatus names the countdown state
type CountdownStatus string

const (
	CountdownIdle    CountdownStatus = "idle"
	CountdownRunning CountdownStatus = "running"
	CountdownPaused  CountdownStatus = "paused"
)

// CountdownSnapshot is what clients need to render the countdown badge
type CountdownSnapshot struct {
	State            CountdownStatus `json:"state"`
	Enabled          bool            `json:"enabled"`
	EndsAt           *time.Time      `json:"ends_at,omitempty"`
	SecondsRemaining int             `json:"seconds_remaining"`
	Closed           bool            `json:"closed"`
	DurationMinutes  int             `json:"duration_minutes"`
}

// WheelEntry is one slice of the wheel
type WheelEntry struct {
	GameID int64  `json:"id"`
	Name   string `json:"name"`
	Score  int    `json:"score"`
}

// SpinDescriptor is published once per draw. Every client derives the same
// animation from it.
type SpinDescriptor struct {
	SpinID       string       `json:"spin_id"`
	StartAt      time.Time    `json:"start_at"`
	WinnerGameID int64        `json:"winner_id"`
	Games        []WheelEntry `json:"games"`
	Proportional bool         `json:"proportional"`
}

// ScoreChange is emitted whenever a game's cached score is recomputed
type ScoreChange struct {
	GameID int64 `json:"game_id"`
	Score  int   `json:"score"`
}

// WSMessage represents a WebSocket message
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}
