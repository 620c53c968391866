package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/frankferrari/lanomat/internal/logger"
	"github.com/frankferrari/lanomat/internal/models"
	"github.com/frankferrari/lanomat/internal/repository"
	"github.com/frankferrari/lanomat/internal/services"
	"github.com/frankferrari/lanomat/internal/testutil"
)

type fakeClock interface {
	clockwork.Clock
	Advance(d time.Duration)
}

var epoch = time.Date(2026, 3, 14, 19, 0, 0, 0, time.UTC)

// testEnv bundles every service over one in-memory database
type testEnv struct {
	repo        repository.FullRepository
	broadcaster *testutil.RecordingBroadcaster
	clock       fakeClock
	arena       *services.Arena
	ledger      *services.VoteLedger
	countdown   *services.CountdownTimer
	wheel       *services.WheelCoordinator
	sessions    *services.SessionService
	catalog     *services.CatalogService
	fixture     testutil.Fixture
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithRepo(t, testutil.NewTestRepository(t))
}

func newTestEnvWithRepo(t *testing.T, repo repository.FullRepository) *testEnv {
	t.Helper()
	log := logger.Discard()
	bc := &testutil.RecordingBroadcaster{}
	clock := clockwork.NewFakeClockAt(epoch)
	arena := services.NewArena()

	env := &testEnv{
		repo:        repo,
		broadcaster: bc,
		clock:       clock,
		arena:       arena,
		ledger:      services.NewVoteLedger(log, repo, arena, bc, clock),
		countdown:   services.NewCountdownTimer(log, repo, arena, bc, clock),
		wheel:       services.NewWheelCoordinator(log, repo, arena, bc, clock, 0),
		sessions:    services.NewSessionService(log, repo, arena, bc, "http://lan.party:8080/", services.DefaultSettings()),
		catalog:     services.NewCatalogService(log, repo, arena, bc),
	}
	env.fixture = testutil.SeedSession(t, repo, "LANPY")
	return env
}

func (e *testEnv) sessionID() int64 { return e.fixture.Session.ID }
func (e *testEnv) hostID() int64    { return e.fixture.Host.ID }

func (e *testEnv) session(t *testing.T) *models.Session {
	t.Helper()
	s, err := e.repo.GetSession(context.Background(), e.sessionID())
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	return s
}

func (e *testEnv) game(t *testing.T, id int64) *models.Game {
	t.Helper()
	g, err := e.repo.GetGame(context.Background(), e.sessionID(), id)
	if err != nil {
		t.Fatalf("GetGame(%d) failed: %v", id, err)
	}
	return g
}

func (e *testEnv) vote(t *testing.T, userID, gameID int64, dir models.Direction) *services.VoteResult {
	t.Helper()
	res, err := e.ledger.CastVote(context.Background(), e.sessionID(), userID, gameID, dir)
	if err != nil {
		t.Fatalf("CastVote(%s) failed: %v", dir, err)
	}
	return res
}

func (e *testEnv) updateSettings(t *testing.T, u services.SettingsUpdate) *models.Session {
	t.Helper()
	s, err := e.sessions.UpdateSettings(context.Background(), e.sessionID(), u)
	if err != nil {
		t.Fatalf("UpdateSettings failed: %v", err)
	}
	return s
}

// setScore casts n up votes from fresh players so the game's score is n
func (e *testEnv) setScore(t *testing.T, gameID int64, n int, prefix string) {
	t.Helper()
	for i := 0; i < n; i++ {
		p := testutil.AddPlayer(t, e.repo, e.sessionID(), prefix+string(rune('a'+i)))
		e.vote(t, p.ID, gameID, models.DirectionUp)
	}
}

func intPtr(v int) *int       { return &v }
func boolPtr(v bool) *bool    { return &v }
func int64Ptr(v int64) *int64 { return &v }
