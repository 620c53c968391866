package services

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/frankferrari/lanomat/internal/logger"
	"github.com/frankferrari/lanomat/internal/models"
	"github.com/frankferrari/lanomat/internal/repository"
)

// CountdownTimer drives the per-session voting window.
// Idle -> Running -> Paused -> Running ... -> Idle. Expiry is derived, not stored.
type CountdownTimer struct {
	log         logger.Logger
	repo        repository.FullRepository
	arena       *Arena
	broadcaster Broadcaster
	clock       clockwork.Clock

	mu        sync.Mutex
	announced map[int64]bool // sessions whose voting_closed event went out
}

// NewCountdownTimer creates a new CountdownTimer
func NewCountdownTimer(log logger.Logger, repo repository.FullRepository, arena *Arena, broadcaster Broadcaster, clock clockwork.Clock) *CountdownTimer {
	return &CountdownTimer{
		log:         log,
		repo:        repo,
		arena:       arena,
		broadcaster: broadcaster,
		clock:       clock,
		announced:   make(map[int64]bool),
	}
}

// EvaluateCountdown derives the countdown snapshot of a session at now.
// A disabled countdown never closes voting.
func EvaluateCountdown(s *models.Session, now time.Time) models.CountdownSnapshot {
	snap := models.CountdownSnapshot{
		State:           models.CountdownIdle,
		Enabled:         s.Countdown.Enabled,
		DurationMinutes: s.Countdown.DurationMinutes,
	}

	switch {
	case s.CountdownState.EndsAt != nil:
		endsAt := *s.CountdownState.EndsAt
		snap.State = models.CountdownRunning
		snap.EndsAt = &endsAt
		snap.SecondsRemaining = max(int(endsAt.Sub(now)/time.Second), 0)
		snap.Closed = now.After(endsAt)
	case s.CountdownState.RemainingSeconds != nil:
		snap.State = models.CountdownPaused
		snap.SecondsRemaining = max(*s.CountdownState.RemainingSeconds, 0)
		snap.Closed = *s.CountdownState.RemainingSeconds <= 0
	default:
		snap.SecondsRemaining = s.Countdown.DurationMinutes * 60
	}

	if !s.Countdown.Enabled {
		snap.SecondsRemaining = 0
		snap.Closed = false
	}
	return snap
}

func (c *CountdownTimer) load(ctx context.Context, sessionID int64) (*models.Session, error) {
	session, err := c.repo.GetSession(ctx, sessionID)
	if err == repository.ErrNotFound {
		return nil, ErrSessionNotFound
	}
	return session, err
}

// Snapshot returns the current countdown state
func (c *CountdownTimer) Snapshot(ctx context.Context, sessionID int64) (*models.CountdownSnapshot, error) {
	session, err := c.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	snap := EvaluateCountdown(session, c.clock.Now())
	return &snap, nil
}

// IsClosed reports whether voting is closed by the countdown
func (c *CountdownTimer) IsClosed(ctx context.Context, sessionID int64) (bool, error) {
	snap, err := c.Snapshot(ctx, sessionID)
	if err != nil {
		return false, err
	}
	return snap.Closed, nil
}

// SecondsRemaining returns the live, frozen or full remaining time
func (c *CountdownTimer) SecondsRemaining(ctx context.Context, sessionID int64) (int, error) {
	snap, err := c.Snapshot(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	return snap.SecondsRemaining, nil
}

// Start starts the countdown from Idle, resumes it from Paused, or
// rebroadcasts the current state when already Running. A countdown that
// has already run out starts over with the full duration.
func (c *CountdownTimer) Start(ctx context.Context, sessionID int64) (*models.CountdownSnapshot, error) {
	unlock := c.arena.LockSession(sessionID)
	defer unlock()

	session, err := c.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.Countdown.Enabled {
		return nil, ErrCountdownDisabled
	}

	now := c.clock.Now()
	rt := session.CountdownState
	switch {
	case rt.EndsAt != nil && !now.After(*rt.EndsAt):
		// already running
	case rt.RemainingSeconds != nil && *rt.RemainingSeconds > 0:
		endsAt := now.Add(time.Duration(*rt.RemainingSeconds) * time.Second)
		rt = models.CountdownRuntime{EndsAt: &endsAt}
	default:
		endsAt := now.Add(time.Duration(session.Countdown.DurationMinutes) * time.Minute)
		rt = models.CountdownRuntime{EndsAt: &endsAt}
	}

	if rt != session.CountdownState {
		if err := c.repo.SetCountdownRuntime(ctx, sessionID, rt); err != nil {
			return nil, err
		}
		session.CountdownState = rt
		c.clearAnnounced(sessionID)
		c.log.Info("Countdown started", "session_id", sessionID, "ends_at", rt.EndsAt)
	}

	return c.publish(session, now), nil
}

// Pause freezes a running countdown
func (c *CountdownTimer) Pause(ctx context.Context, sessionID int64) (*models.CountdownSnapshot, error) {
	unlock := c.arena.LockSession(sessionID)
	defer unlock()

	session, err := c.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.CountdownState.EndsAt == nil {
		return nil, ErrCountdownNotRunning
	}

	now := c.clock.Now()
	remaining := max(int(session.CountdownState.EndsAt.Sub(now)/time.Second), 0)
	rt := models.CountdownRuntime{RemainingSeconds: &remaining}
	if err := c.repo.SetCountdownRuntime(ctx, sessionID, rt); err != nil {
		return nil, err
	}
	session.CountdownState = rt
	c.log.Info("Countdown paused", "session_id", sessionID, "remaining_seconds", remaining)

	return c.publish(session, now), nil
}

// Stop returns the countdown to Idle from any state
func (c *CountdownTimer) Stop(ctx context.Context, sessionID int64) (*models.CountdownSnapshot, error) {
	unlock := c.arena.LockSession(sessionID)
	defer unlock()

	session, err := c.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := c.repo.SetCountdownRuntime(ctx, sessionID, models.CountdownRuntime{}); err != nil {
		return nil, err
	}
	session.CountdownState = models.CountdownRuntime{}
	c.clearAnnounced(sessionID)
	c.log.Info("Countdown stopped", "session_id", sessionID)

	return c.publish(session, c.clock.Now()), nil
}

func (c *CountdownTimer) publish(session *models.Session, now time.Time) *models.CountdownSnapshot {
	snap := EvaluateCountdown(session, now)
	c.broadcaster.BroadcastToSession(session.ID, EventCountdown, snap)
	return &snap
}

func (c *CountdownTimer) clearAnnounced(sessionID int64) {
	c.mu.Lock()
	delete(c.announced, sessionID)
	c.mu.Unlock()
}

// markAnnounced returns true the first time it is called for a session
// since the countdown was last started or stopped
func (c *CountdownTimer) markAnnounced(sessionID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.announced[sessionID] {
		return false
	}
	c.announced[sessionID] = true
	return true
}

// Tick broadcasts a countdown tick for every running session, and a single
// voting_closed event for each session whose window has just expired
func (c *CountdownTimer) Tick(ctx context.Context) {
	sessions, err := c.repo.ListRunningCountdowns(ctx)
	if err != nil {
		c.log.Error("Failed to list running countdowns", "error", err)
		return
	}

	now := c.clock.Now()
	for i := range sessions {
		s := &sessions[i]
		snap := EvaluateCountdown(s, now)
		if !snap.Enabled {
			continue
		}
		if snap.Closed {
			if c.markAnnounced(s.ID) {
				c.log.Info("Voting closed by countdown", "session_id", s.ID)
				c.broadcaster.BroadcastToSession(s.ID, EventVotingClosed, snap)
			}
			continue
		}
		c.broadcaster.BroadcastToSession(s.ID, EventCountdown, snap)
	}
}

// Run calls Tick once a second until ctx is cancelled
func (c *CountdownTimer) Run(ctx context.Context) {
	ticker := c.clock.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.log.Info("Voting countdown stopped")
			return
		case <-ticker.Chan():
			c.Tick(ctx)
		}
	}
}

// Forget drops per-session bookkeeping of an ended session
func (c *CountdownTimer) Forget(sessionID int64) {
	c.clearAnnounced(sessionID)
}
