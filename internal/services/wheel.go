package services

import (
	"cmp"
	"context"
	"math"
	"math/rand/v2"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/frankferrari/lanomat/internal/logger"
	"github.com/frankferrari/lanomat/internal/models"
	"github.com/frankferrari/lanomat/internal/repository"
)

// DefaultSpinLead is how far in the future a spin animation starts, so every
// client has received the descriptor before it must begin
const DefaultSpinLead = 5 * time.Second

// MinEligibleGames is the smallest wheel that may be spun
const MinEligibleGames = 2

// Picker returns a uniformly random index in [0, n)
type Picker func(n int) int

// WheelCoordinator draws a winner among eligible games and publishes the
// spin descriptor every client animates from
type WheelCoordinator struct {
	log         logger.Logger
	repo        repository.FullRepository
	arena       *Arena
	broadcaster Broadcaster
	clock       clockwork.Clock
	lead        time.Duration
	pick        Picker
}

// NewWheelCoordinator creates a new WheelCoordinator. A lead of zero uses
// DefaultSpinLead.
func NewWheelCoordinator(log logger.Logger, repo repository.FullRepository, arena *Arena, broadcaster Broadcaster, clock clockwork.Clock, lead time.Duration) *WheelCoordinator {
	if lead <= 0 {
		lead = DefaultSpinLead
	}
	return &WheelCoordinator{
		log:         log,
		repo:        repo,
		arena:       arena,
		broadcaster: broadcaster,
		clock:       clock,
		lead:        lead,
		pick:        rand.IntN,
	}
}

// SetPicker replaces the random source used for draws
func (w *WheelCoordinator) SetPicker(p Picker) {
	w.pick = p
}

// SelectEligible orders games by score desc then name, drops the previous
// game when it is excluded, and applies the session's filter mode
func SelectEligible(s *models.Session, games []models.Game) []models.WheelEntry {
	ordered := make([]models.Game, 0, len(games))
	for _, g := range games {
		if s.Voting.ExcludePreviousGame && s.PreviousGameID != nil && *s.PreviousGameID == g.ID {
			continue
		}
		ordered = append(ordered, g)
	}
	slices.SortStableFunc(ordered, func(a, b models.Game) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		if c := strings.Compare(models.NameKey(a.Name), models.NameKey(b.Name)); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	var picked []models.Game
	switch s.Wheel.FilterMode {
	case models.FilterAll:
		picked = ordered
	case models.FilterTiedWinners:
		if len(ordered) > 0 {
			top := ordered[0].Score
			for _, g := range ordered {
				if g.Score != top {
					break
				}
				picked = append(picked, g)
			}
		}
	default:
		for _, g := range ordered {
			if g.Score <= 0 || len(picked) >= s.Wheel.TopCount {
				break
			}
			picked = append(picked, g)
		}
	}

	entries := make([]models.WheelEntry, 0, len(picked))
	for _, g := range picked {
		entries = append(entries, models.WheelEntry{GameID: g.ID, Name: g.Name, Score: g.Score})
	}
	return entries
}

// spinBlocker explains why a spin cannot start, or returns "" when it can
func spinBlocker(s *models.Session, eligible []models.WheelEntry) string {
	switch {
	case !s.Wheel.Enabled:
		return "wheel is disabled"
	case s.WheelState.Active():
		return "a spin is already active"
	case len(eligible) < MinEligibleGames:
		return "at least 2 eligible games are required"
	}
	return ""
}

func (w *WheelCoordinator) load(ctx context.Context, sessionID int64) (*models.Session, []models.WheelEntry, error) {
	session, err := w.repo.GetSession(ctx, sessionID)
	if err == repository.ErrNotFound {
		return nil, nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	games, err := w.repo.ListGames(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	return session, SelectEligible(session, games), nil
}

// EligibleGames returns the games the wheel may currently land on
func (w *WheelCoordinator) EligibleGames(ctx context.Context, sessionID int64) ([]models.WheelEntry, error) {
	_, eligible, err := w.load(ctx, sessionID)
	return eligible, err
}

// CanSpin reports whether a spin may start, with the reason when it may not
func (w *WheelCoordinator) CanSpin(ctx context.Context, sessionID int64) (bool, string, error) {
	session, eligible, err := w.load(ctx, sessionID)
	if err != nil {
		return false, "", err
	}
	reason := spinBlocker(session, eligible)
	return reason == "", reason, nil
}

// StartSpin draws a winner uniformly at random and publishes the descriptor.
// Slice sizing never affects the draw.
func (w *WheelCoordinator) StartSpin(ctx context.Context, sessionID int64) (*models.SpinDescriptor, error) {
	unlock := w.arena.LockSession(sessionID)
	defer unlock()

	session, eligible, err := w.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if reason := spinBlocker(session, eligible); reason != "" {
		return nil, ErrSpinNotAllowed(reason)
	}

	winner := eligible[w.pick(len(eligible))]
	startAt := w.clock.Now().Add(w.lead).UTC().Truncate(time.Millisecond)
	rt := models.WheelRuntime{
		SpinID:       uuid.NewString(),
		StartAt:      &startAt,
		WinnerGameID: &winner.GameID,
		Games:        eligible,
		Proportional: session.Wheel.Proportional,
	}
	if err := w.repo.SetWheelRuntime(ctx, sessionID, rt); err != nil {
		return nil, err
	}

	desc := descriptorOf(rt)
	w.log.Info("Wheel spin started",
		"session_id", sessionID,
		"spin_id", desc.SpinID,
		"winner_id", desc.WinnerGameID,
		"eligible", len(eligible))
	w.broadcaster.BroadcastToSession(sessionID, EventWheelSpin, desc)
	return desc, nil
}

// DismissSpin clears the active spin. Dismissing an idle wheel is a no-op
// that still broadcasts the idle state.
func (w *WheelCoordinator) DismissSpin(ctx context.Context, sessionID int64) error {
	unlock := w.arena.LockSession(sessionID)
	defer unlock()

	err := w.repo.SetWheelRuntime(ctx, sessionID, models.WheelRuntime{})
	if err == repository.ErrNotFound {
		return ErrSessionNotFound
	}
	if err != nil {
		return err
	}

	w.log.Debug("Wheel spin dismissed", "session_id", sessionID)
	w.broadcaster.BroadcastToSession(sessionID, EventWheelDismissed, map[string]any{})
	return nil
}

// Current returns the active spin for late joiners, or nil when idle. The
// stored winner and slices are authoritative; nothing is recomputed.
func (w *WheelCoordinator) Current(ctx context.Context, sessionID int64) (*models.SpinDescriptor, error) {
	session, err := w.repo.GetSession(ctx, sessionID)
	if err == repository.ErrNotFound {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	if !session.WheelState.Active() {
		return nil, nil
	}
	return descriptorOf(session.WheelState), nil
}

func descriptorOf(rt models.WheelRuntime) *models.SpinDescriptor {
	return &models.SpinDescriptor{
		SpinID:       rt.SpinID,
		StartAt:      *rt.StartAt,
		WinnerGameID: *rt.WinnerGameID,
		Games:        rt.Games,
		Proportional: rt.Proportional,
	}
}

// sliceWeight is the relative size of a slice on a proportional wheel.
// Games without a positive score still get a minimal slice.
func sliceWeight(e models.WheelEntry, proportional bool) float64 {
	if !proportional || e.Score < 1 {
		return 1
	}
	return float64(e.Score)
}

// FinalTarget returns the index of the winning slice and the angle, in
// radians measured from the wheel's zero mark, at the centre of that slice.
// A renderer rotates the wheel so this angle sits under its pointer at the
// end of the animation. ok is false when the winner is not on the wheel.
func FinalTarget(d models.SpinDescriptor) (index int, angle float64, ok bool) {
	index = -1
	total := 0.0
	for i, e := range d.Games {
		if e.GameID == d.WinnerGameID {
			index = i
		}
		total += sliceWeight(e, d.Proportional)
	}
	if index < 0 || total == 0 {
		return -1, 0, false
	}

	before := 0.0
	for _, e := range d.Games[:index] {
		before += sliceWeight(e, d.Proportional)
	}
	centre := before + sliceWeight(d.Games[index], d.Proportional)/2
	return index, 2 * math.Pi * centre / total, true
}
