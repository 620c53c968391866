package services

import (
	"context"

	"github.com/jonboulle/clockwork"

	"github.com/frankferrari/lanomat/internal/models"
)

// SessionState is everything a client needs to render a session from scratch
type SessionState struct {
	Session    *models.Session           `json:"session"`
	Me         *models.User              `json:"me"`
	Players    []models.User             `json:"players"`
	Games      []models.Game             `json:"games"`
	Tags       []models.Tag              `json:"tags"`
	Countdown  *models.CountdownSnapshot `json:"countdown"`
	Spin       *models.SpinDescriptor    `json:"spin"`
	CanSpin    bool                      `json:"can_spin"`
	MyVotes    *UserVotes                `json:"my_votes"`
	JoinURL    string                    `json:"join_url"`
	ServerTime int64                     `json:"server_time"`
}

// StateReader assembles SessionState from the individual services
type StateReader struct {
	sessions  *SessionService
	catalog   *CatalogService
	countdown *CountdownTimer
	wheel     *WheelCoordinator
	ledger    *VoteLedger
	arena     *Arena
	clock     clockwork.Clock
}

// NewStateReader creates a new StateReader
func NewStateReader(sessions *SessionService, catalog *CatalogService, countdown *CountdownTimer, wheel *WheelCoordinator, ledger *VoteLedger, clock clockwork.Clock) *StateReader {
	return &StateReader{
		sessions:  sessions,
		catalog:   catalog,
		countdown: countdown,
		wheel:     wheel,
		ledger:    ledger,
		arena:     sessions.arena,
		clock:     clock,
	}
}

// State returns the session as seen by userID. A spin in progress is
// included so late joiners replay it from the stored descriptor. The
// session read lock keeps the parts consistent with each other: no reset,
// spin or settings change lands halfway through.
func (r *StateReader) State(ctx context.Context, sessionID, userID int64) (*SessionState, error) {
	unlock := r.arena.RLockSession(sessionID)
	defer unlock()

	session, me, err := r.sessions.Identify(ctx, userID)
	if err != nil {
		return nil, err
	}
	if session.ID != sessionID {
		return nil, ErrUserNotFound
	}

	st := &SessionState{
		Session:    session,
		Me:         me,
		JoinURL:    r.sessions.JoinURL(session.Code),
		ServerTime: r.clock.Now().UnixMilli(),
	}
	if st.Players, err = r.sessions.ListPlayers(ctx, sessionID); err != nil {
		return nil, err
	}
	if st.Games, err = r.catalog.ListGames(ctx, sessionID, ""); err != nil {
		return nil, err
	}
	if st.Tags, err = r.catalog.ListTags(ctx, sessionID); err != nil {
		return nil, err
	}
	if st.Countdown, err = r.countdown.Snapshot(ctx, sessionID); err != nil {
		return nil, err
	}
	if st.Spin, err = r.wheel.Current(ctx, sessionID); err != nil {
		return nil, err
	}
	if st.CanSpin, _, err = r.wheel.CanSpin(ctx, sessionID); err != nil {
		return nil, err
	}
	if st.MyVotes, err = r.ledger.UserVotes(ctx, sessionID, userID); err != nil {
		return nil, err
	}
	return st, nil
}
