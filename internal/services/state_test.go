package services_test

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/frankferrari/lanomat/internal/models"
	"github.com/frankferrari/lanomat/internal/services"
	"github.com/frankferrari/lanomat/internal/testutil"
)

func newStateReader(env *testEnv) *services.StateReader {
	return services.NewStateReader(env.sessions, env.catalog, env.countdown, env.wheel, env.ledger, env.clock)
}

func TestStateReader_State(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	game := testutil.AddGame(t, env.repo, env.sessionID(), "Factorio", "Factory")
	testutil.AddGame(t, env.repo, env.sessionID(), "Rimworld")
	env.vote(t, env.hostID(), game, models.DirectionUp)
	env.vote(t, env.hostID(), game, models.DirectionUp)

	st, err := newStateReader(env).State(ctx, env.sessionID(), env.hostID())
	if err != nil {
		t.Fatalf("State failed: %v", err)
	}
	if st.Session.Code != "LANPY" || st.Me.ID != env.hostID() {
		t.Errorf("unexpected identity %+v %+v", st.Session, st.Me)
	}
	if len(st.Players) != 1 || len(st.Games) != 2 || len(st.Tags) != 1 {
		t.Errorf("players=%d games=%d tags=%d", len(st.Players), len(st.Games), len(st.Tags))
	}
	if st.Games[0].ID != game || st.Games[0].Score != 2 {
		t.Errorf("expected Factorio first with score 2, got %+v", st.Games[0])
	}
	if st.MyVotes.Votes[game] != 2 || st.MyVotes.BonusRemaining != 1 {
		t.Errorf("unexpected votes %+v", st.MyVotes)
	}
	if st.Countdown == nil || st.Countdown.State != models.CountdownIdle {
		t.Errorf("unexpected countdown %+v", st.Countdown)
	}
	if st.Spin != nil || st.CanSpin {
		t.Errorf("wheel is disabled, got spin %+v can_spin %v", st.Spin, st.CanSpin)
	}
	if st.JoinURL != "http://lan.party:8080/join?code=LANPY" {
		t.Errorf("join url = %q", st.JoinURL)
	}
	if st.ServerTime != epoch.UnixMilli() {
		t.Errorf("server time = %d, want %d", st.ServerTime, epoch.UnixMilli())
	}
}

func TestStateReader_IncludesActiveSpin(t *testing.T) {
	env, _ := setupSpinnable(t)
	ctx := context.Background()
	desc, err := env.wheel.StartSpin(ctx, env.sessionID())
	if err != nil {
		t.Fatalf("StartSpin failed: %v", err)
	}

	st, err := newStateReader(env).State(ctx, env.sessionID(), env.hostID())
	if err != nil {
		t.Fatalf("State failed: %v", err)
	}
	if st.Spin == nil || st.Spin.SpinID != desc.SpinID {
		t.Errorf("expected active spin %s, got %+v", desc.SpinID, st.Spin)
	}
	if st.CanSpin {
		t.Error("no second spin while one is active")
	}
}

func TestStateReader_WrongSession(t *testing.T) {
	env := newTestEnv(t)
	other := testutil.SeedSession(t, env.repo, "OTHER")

	_, err := newStateReader(env).State(context.Background(), env.sessionID(), other.Host.ID)
	if !stderrors.Is(err, services.ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}

func TestStateReader_WaitsForSessionWriters(t *testing.T) {
	env := newTestEnv(t)
	reader := newStateReader(env)

	unlock := env.arena.LockSession(env.sessionID())
	done := make(chan error, 1)
	go func() {
		_, err := reader.State(context.Background(), env.sessionID(), env.hostID())
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("State ran while the session was write-locked")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("State failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("State did not finish after the lock was released")
	}
}
