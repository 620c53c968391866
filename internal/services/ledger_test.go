package services_test

import (
	"context"
	stderrors "errors"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/frankferrari/lanomat/internal/errors"
	"github.com/frankferrari/lanomat/internal/models"
	"github.com/frankferrari/lanomat/internal/repository"
	"github.com/frankferrari/lanomat/internal/repository/mock"
	"github.com/frankferrari/lanomat/internal/services"
	"github.com/frankferrari/lanomat/internal/testutil"
)

// TestCastVote_BonusBudget walks a user up to the default budget of 2
func TestCastVote_BonusBudget(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	game := testutil.AddGame(t, env.repo, env.sessionID(), "Factorio")
	user := testutil.AddPlayer(t, env.repo, env.sessionID(), "Bob")

	wantWeights := []int{1, 2, 3}
	for i, want := range wantWeights {
		res := env.vote(t, user.ID, game, models.DirectionUp)
		if res.Weight != want {
			t.Fatalf("vote %d: weight = %d, want %d", i+1, res.Weight, want)
		}
		if res.Score != want {
			t.Errorf("vote %d: score = %d, want %d", i+1, res.Score, want)
		}
	}

	_, err := env.ledger.CastVote(ctx, env.sessionID(), user.ID, game, models.DirectionUp)
	if !stderrors.Is(err, services.ErrBonusBudgetExceeded) {
		t.Fatalf("expected ErrBonusBudgetExceeded, got %v", err)
	}
	if errors.KindOf(err) != errors.ErrValidation {
		t.Errorf("expected validation kind, got %v", errors.KindOf(err))
	}

	// no partial write
	if g := env.game(t, game); g.Score != 3 {
		t.Errorf("score after rejection = %d, want 3", g.Score)
	}
	v, _ := env.repo.GetVote(ctx, user.ID, game)
	if v.Weight != 3 {
		t.Errorf("weight after rejection = %d, want 3", v.Weight)
	}
}

func TestCastVote_BudgetSpansGames(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := testutil.AddGame(t, env.repo, env.sessionID(), "A")
	b := testutil.AddGame(t, env.repo, env.sessionID(), "B")
	user := testutil.AddPlayer(t, env.repo, env.sessionID(), "Bob")

	env.vote(t, user.ID, a, models.DirectionUp)
	env.vote(t, user.ID, a, models.DirectionUp) // bonus 1
	env.vote(t, user.ID, b, models.DirectionUp)
	res := env.vote(t, user.ID, b, models.DirectionUp) // bonus 2
	if res.BonusUsed != 2 || res.BonusRemaining != 0 {
		t.Errorf("bonus used/remaining = %d/%d, want 2/0", res.BonusUsed, res.BonusRemaining)
	}

	if _, err := env.ledger.CastVote(ctx, env.sessionID(), user.ID, a, models.DirectionUp); !stderrors.Is(err, services.ErrBonusBudgetExceeded) {
		t.Errorf("expected budget rejection, got %v", err)
	}

	// freeing bonus on b makes room on a
	env.vote(t, user.ID, b, models.DirectionDown)
	res = env.vote(t, user.ID, a, models.DirectionUp)
	if res.Weight != 3 {
		t.Errorf("weight = %d, want 3", res.Weight)
	}
}

func TestCastVote_ZeroBudgetAllowsSingleVotes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.updateSettings(t, services.SettingsUpdate{BonusVoteBudget: intPtr(0)})
	game := testutil.AddGame(t, env.repo, env.sessionID(), "A")

	env.vote(t, env.hostID(), game, models.DirectionUp)
	if _, err := env.ledger.CastVote(ctx, env.sessionID(), env.hostID(), game, models.DirectionUp); !stderrors.Is(err, services.ErrBonusBudgetExceeded) {
		t.Errorf("expected budget rejection, got %v", err)
	}
}

// TestCastVote_DownvotesDisabledNoVote: down with no vote is rejected
func TestCastVote_DownvotesDisabledNoVote(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.updateSettings(t, services.SettingsUpdate{AllowDownvotes: boolPtr(false)})
	game := testutil.AddGame(t, env.repo, env.sessionID(), "Factorio")
	env.setScore(t, game, 2, "fan")
	env.broadcaster.Reset()

	_, err := env.ledger.CastVote(ctx, env.sessionID(), env.hostID(), game, models.DirectionDown)
	if !stderrors.Is(err, services.ErrDownvotesDisabled) {
		t.Fatalf("expected ErrDownvotesDisabled, got %v", err)
	}
	if !errors.IsRejected(err) {
		t.Error("expected a policy rejection")
	}
	if g := env.game(t, game); g.Score != 2 {
		t.Errorf("score = %d, want unchanged 2", g.Score)
	}
	if n := len(env.broadcaster.Messages()); n != 0 {
		t.Errorf("expected no broadcasts, got %d", n)
	}
}

// TestCastVote_DownvotesDisabledUndo: down on weight 1 deletes the vote
func TestCastVote_DownvotesDisabledUndo(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.updateSettings(t, services.SettingsUpdate{AllowDownvotes: boolPtr(false)})
	game := testutil.AddGame(t, env.repo, env.sessionID(), "Factorio")
	env.setScore(t, game, 1, "fan")

	env.vote(t, env.hostID(), game, models.DirectionUp)
	if g := env.game(t, game); g.Score != 2 {
		t.Fatalf("score = %d, want 2", g.Score)
	}

	res := env.vote(t, env.hostID(), game, models.DirectionDown)
	if res.Weight != 0 || res.Score != 1 {
		t.Errorf("got weight %d score %d, want 0 and 1", res.Weight, res.Score)
	}
	if _, err := env.repo.GetVote(ctx, env.hostID(), game); err != repository.ErrNotFound {
		t.Errorf("expected vote deleted, got %v", err)
	}

	// a second down would now create a downvote, which is not allowed
	if _, err := env.ledger.CastVote(ctx, env.sessionID(), env.hostID(), game, models.DirectionDown); !stderrors.Is(err, services.ErrDownvotesDisabled) {
		t.Errorf("expected ErrDownvotesDisabled, got %v", err)
	}
}

func TestCastVote_DownvotesDisabledDecrementsBonus(t *testing.T) {
	env := newTestEnv(t)
	env.updateSettings(t, services.SettingsUpdate{AllowDownvotes: boolPtr(false)})
	game := testutil.AddGame(t, env.repo, env.sessionID(), "A")

	env.vote(t, env.hostID(), game, models.DirectionUp)
	env.vote(t, env.hostID(), game, models.DirectionUp)
	res := env.vote(t, env.hostID(), game, models.DirectionDown)
	if res.Weight != 1 {
		t.Errorf("weight = %d, want 1", res.Weight)
	}
}

func TestCastVote_DownvoteTransitions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	game := testutil.AddGame(t, env.repo, env.sessionID(), "A")
	host := env.hostID()

	res := env.vote(t, host, game, models.DirectionDown)
	if res.Weight != -1 || res.Score != -1 {
		t.Fatalf("got weight %d score %d, want -1/-1", res.Weight, res.Score)
	}

	// floor at -1
	res = env.vote(t, host, game, models.DirectionDown)
	if res.Weight != -1 || res.Changed {
		t.Errorf("expected unchanged -1, got %+v", res)
	}

	// up from -1 returns to neutral
	res = env.vote(t, host, game, models.DirectionUp)
	if res.Weight != 0 || res.Score != 0 {
		t.Errorf("got weight %d score %d, want 0/0", res.Weight, res.Score)
	}
	if _, err := env.repo.GetVote(ctx, host, game); err != repository.ErrNotFound {
		t.Errorf("expected no vote row, got %v", err)
	}

	// weight 3 -> 2 -> 1 -> neutral
	env.vote(t, host, game, models.DirectionUp)
	env.vote(t, host, game, models.DirectionUp)
	env.vote(t, host, game, models.DirectionUp)
	for _, want := range []int{2, 1, 0} {
		if res := env.vote(t, host, game, models.DirectionDown); res.Weight != want {
			t.Errorf("weight = %d, want %d", res.Weight, want)
		}
	}
}

func TestCastVote_EmitsScoreChanged(t *testing.T) {
	env := newTestEnv(t)
	game := testutil.AddGame(t, env.repo, env.sessionID(), "A")
	env.broadcaster.Reset()

	env.vote(t, env.hostID(), game, models.DirectionUp)

	msgs := env.broadcaster.OfType(services.EventScoreChanged)
	if len(msgs) != 1 {
		t.Fatalf("expected 1 score_changed, got %d", len(msgs))
	}
	change, ok := msgs[0].Payload.(models.ScoreChange)
	if !ok || change.GameID != game || change.Score != 1 {
		t.Errorf("unexpected payload %#v", msgs[0].Payload)
	}
	if msgs[0].SessionID != env.sessionID() {
		t.Errorf("broadcast to session %d, want %d", msgs[0].SessionID, env.sessionID())
	}
}

func TestCastVote_VotingClosed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	game := testutil.AddGame(t, env.repo, env.sessionID(), "A")
	env.updateSettings(t, services.SettingsUpdate{CountdownEnabled: boolPtr(true), CountdownDurationMinutes: intPtr(1)})

	if _, err := env.countdown.Start(ctx, env.sessionID()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	env.vote(t, env.hostID(), game, models.DirectionUp) // still open

	env.clock.Advance(61 * time.Second)
	_, err := env.ledger.CastVote(ctx, env.sessionID(), env.hostID(), game, models.DirectionUp)
	if !stderrors.Is(err, services.ErrVotingClosed) {
		t.Fatalf("expected ErrVotingClosed, got %v", err)
	}
	if g := env.game(t, game); g.Score != 1 {
		t.Errorf("score = %d, want 1", g.Score)
	}
}

func TestCastVote_NotFound(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.ledger.CastVote(ctx, env.sessionID(), env.hostID(), 999, models.DirectionUp)
	if !errors.IsNotFound(err) {
		t.Errorf("expected not found for unknown game, got %v", err)
	}

	_, err = env.ledger.CastVote(ctx, 999, env.hostID(), 1, models.DirectionUp)
	if !errors.IsNotFound(err) {
		t.Errorf("expected not found for unknown session, got %v", err)
	}
}

func TestCastVote_GameFromOtherSession(t *testing.T) {
	env := newTestEnv(t)
	other := testutil.SeedSession(t, env.repo, "OTHER")
	foreign := testutil.AddGame(t, env.repo, other.Session.ID, "Chess")

	_, err := env.ledger.CastVote(context.Background(), env.sessionID(), env.hostID(), foreign, models.DirectionUp)
	if !errors.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestCastVote_InvalidDirection(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.ledger.CastVote(context.Background(), env.sessionID(), env.hostID(), 1, "sideways")
	if !stderrors.Is(err, services.ErrInvalidDirection) {
		t.Errorf("expected ErrInvalidDirection, got %v", err)
	}
}

func TestCastVote_PreviousGameExcluded(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	prev := testutil.AddGame(t, env.repo, env.sessionID(), "Played")
	if _, err := env.catalog.SetPreviousGame(ctx, env.sessionID(), &prev); err != nil {
		t.Fatalf("SetPreviousGame failed: %v", err)
	}
	env.updateSettings(t, services.SettingsUpdate{ExcludePreviousGame: boolPtr(true)})

	_, err := env.ledger.CastVote(ctx, env.sessionID(), env.hostID(), prev, models.DirectionUp)
	if !stderrors.Is(err, services.ErrPreviousGameExcluded) {
		t.Errorf("expected ErrPreviousGameExcluded, got %v", err)
	}
}

// TestCastVote_ScoreIncludesPenalty: raw 5, shared tag, penalty 2 gives 3
func TestCastVote_ScoreIncludesPenalty(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	prev := testutil.AddGame(t, env.repo, env.sessionID(), "Valheim", "Survival")
	target := testutil.AddGame(t, env.repo, env.sessionID(), "Rust", "survival", "PvP")
	if _, err := env.catalog.SetPreviousGame(ctx, env.sessionID(), &prev); err != nil {
		t.Fatalf("SetPreviousGame failed: %v", err)
	}

	env.setScore(t, target, 4, "p")
	res := env.vote(t, env.hostID(), target, models.DirectionUp)
	if res.Score != 3 {
		t.Errorf("score = %d, want 3", res.Score)
	}
	if g := env.game(t, target); g.Score != 3 {
		t.Errorf("stored score = %d, want 3", g.Score)
	}
}

func TestCastVote_RetriesLostUpdateOnce(t *testing.T) {
	real := testutil.NewTestRepository(t)
	repo := mock.NewRepository(real)
	env := newTestEnvWithRepo(t, repo)
	game := testutil.AddGame(t, real, env.sessionID(), "A")

	calls := 0
	repo.InsertVoteHook = func(ctx context.Context, userID, gameID int64) error {
		calls++
		if calls == 1 {
			return repository.ErrDuplicate
		}
		return nil
	}

	res := env.vote(t, env.hostID(), game, models.DirectionUp)
	if res.Weight != 1 {
		t.Errorf("weight = %d, want 1", res.Weight)
	}
	if calls != 2 {
		t.Errorf("InsertVote called %d times, want 2", calls)
	}
}

func TestCastVote_PersistentConflictIsValidation(t *testing.T) {
	real := testutil.NewTestRepository(t)
	repo := mock.NewRepository(real)
	env := newTestEnvWithRepo(t, repo)
	game := testutil.AddGame(t, real, env.sessionID(), "A")

	repo.InsertVoteHook = func(ctx context.Context, userID, gameID int64) error {
		return repository.ErrDuplicate
	}

	_, err := env.ledger.CastVote(context.Background(), env.sessionID(), env.hostID(), game, models.DirectionUp)
	if !stderrors.Is(err, services.ErrVoteConflict) {
		t.Fatalf("expected ErrVoteConflict, got %v", err)
	}
	if errors.KindOf(err) != errors.ErrValidation {
		t.Errorf("expected validation kind, got %v", errors.KindOf(err))
	}
}

func TestCastVote_RepositoryErrorRollsBack(t *testing.T) {
	real := testutil.NewTestRepository(t)
	repo := mock.NewRepository(real)
	env := newTestEnvWithRepo(t, repo)
	game := testutil.AddGame(t, real, env.sessionID(), "A")

	repo.SetGameScoreError = stderrors.New("disk full")
	_, err := env.ledger.CastVote(context.Background(), env.sessionID(), env.hostID(), game, models.DirectionUp)
	if err == nil {
		t.Fatal("expected error")
	}
	if _, err := real.GetVote(context.Background(), env.hostID(), game); err != repository.ErrNotFound {
		t.Errorf("expected vote rolled back, got %v", err)
	}
}

// TestCastVote_ConcurrentSameUser hammers one user's ballot from many
// goroutines; the budget must hold no matter how they interleave
func TestCastVote_ConcurrentSameUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	game := testutil.AddGame(t, env.repo, env.sessionID(), "A")
	user := testutil.AddPlayer(t, env.repo, env.sessionID(), "Clicky")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = env.ledger.CastVote(ctx, env.sessionID(), user.ID, game, models.DirectionUp)
		}()
	}
	wg.Wait()

	v, err := env.repo.GetVote(ctx, user.ID, game)
	if err != nil {
		t.Fatalf("GetVote failed: %v", err)
	}
	if v.Weight != 3 {
		t.Errorf("weight = %d, want 3 (1 + budget 2)", v.Weight)
	}
	if g := env.game(t, game); g.Score != 3 {
		t.Errorf("score = %d, want 3", g.Score)
	}
}

// TestCastVote_Invariants applies random actions and checks the budget and
// weight invariants after every one
func TestCastVote_Invariants(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	games := []int64{
		testutil.AddGame(t, env.repo, env.sessionID(), "A"),
		testutil.AddGame(t, env.repo, env.sessionID(), "B"),
		testutil.AddGame(t, env.repo, env.sessionID(), "C"),
	}
	users := []int64{
		env.hostID(),
		testutil.AddPlayer(t, env.repo, env.sessionID(), "Bob").ID,
	}
	rng := rand.New(rand.NewPCG(1, 2))
	budget := env.session(t).Voting.BonusVoteBudget

	for i := 0; i < 200; i++ {
		user := users[rng.IntN(len(users))]
		game := games[rng.IntN(len(games))]
		dir := models.DirectionUp
		if rng.IntN(3) == 0 {
			dir = models.DirectionDown
		}
		_, err := env.ledger.CastVote(ctx, env.sessionID(), user, game, dir)
		if err != nil && !stderrors.Is(err, services.ErrBonusBudgetExceeded) {
			t.Fatalf("step %d: unexpected error %v", i, err)
		}

		for _, u := range users {
			weights, _ := env.repo.UserVoteWeights(ctx, u)
			spend := 0
			for _, w := range weights {
				if w == 0 {
					t.Fatalf("step %d: zero weight stored", i)
				}
				if w > 1 {
					spend += w - 1
				}
			}
			if spend > budget {
				t.Fatalf("step %d: user %d spent %d > budget %d", i, u, spend, budget)
			}
		}
		for _, g := range games {
			weights, _ := env.repo.GameVoteWeights(ctx, g)
			sum := 0
			for _, w := range weights {
				sum += w
			}
			if got := env.game(t, g).Score; got != sum {
				t.Fatalf("step %d: game %d score %d, want %d", i, g, got, sum)
			}
		}
	}
}

func TestResetAll_RoundTrip(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := testutil.AddGame(t, env.repo, env.sessionID(), "A")
	b := testutil.AddGame(t, env.repo, env.sessionID(), "B")
	env.setScore(t, a, 3, "x")
	env.vote(t, env.hostID(), b, models.DirectionDown)
	env.broadcaster.Reset()

	changes, err := env.ledger.ResetAll(ctx, env.sessionID())
	if err != nil {
		t.Fatalf("ResetAll failed: %v", err)
	}
	if len(changes) != 2 {
		t.Errorf("expected 2 score changes, got %d", len(changes))
	}

	games, _ := env.repo.ListGames(ctx, env.sessionID())
	for _, g := range games {
		if g.Score != 0 {
			t.Errorf("game %s score = %d, want 0", g.Name, g.Score)
		}
	}
	count, _ := env.repo.CountSessionVotes(ctx, env.sessionID())
	if count != 0 {
		t.Errorf("expected 0 votes, got %d", count)
	}

	if n := len(env.broadcaster.Messages()); n != 1 {
		t.Errorf("expected a single broadcast, got %d", n)
	}
	if n := len(env.broadcaster.OfType(services.EventVotesReset)); n != 1 {
		t.Errorf("expected one votes_reset, got %d", n)
	}
}

func TestResetAll_KeepsPenalty(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	prev := testutil.AddGame(t, env.repo, env.sessionID(), "Valheim", "Survival")
	target := testutil.AddGame(t, env.repo, env.sessionID(), "Rust", "Survival")
	_, _ = env.catalog.SetPreviousGame(ctx, env.sessionID(), &prev)
	env.setScore(t, target, 2, "x")

	if _, err := env.ledger.ResetAll(ctx, env.sessionID()); err != nil {
		t.Fatalf("ResetAll failed: %v", err)
	}
	if g := env.game(t, target); g.Score != -2 {
		t.Errorf("score = %d, want -2", g.Score)
	}
}

func TestResetAll_OtherSessionUntouched(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	other := testutil.SeedSession(t, env.repo, "OTHER")
	foreign := testutil.AddGame(t, env.repo, other.Session.ID, "Chess")
	if _, err := env.ledger.CastVote(ctx, other.Session.ID, other.Host.ID, foreign, models.DirectionUp); err != nil {
		t.Fatalf("CastVote failed: %v", err)
	}

	if _, err := env.ledger.ResetAll(ctx, env.sessionID()); err != nil {
		t.Fatalf("ResetAll failed: %v", err)
	}
	g, _ := env.repo.GetGame(ctx, other.Session.ID, foreign)
	if g.Score != 1 {
		t.Errorf("foreign score = %d, want 1", g.Score)
	}
}

func TestResetAll_UnknownSession(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.ledger.ResetAll(context.Background(), 999)
	if !errors.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestResetAll_ErrorRollsBack(t *testing.T) {
	real := testutil.NewTestRepository(t)
	repo := mock.NewRepository(real)
	env := newTestEnvWithRepo(t, repo)
	game := testutil.AddGame(t, real, env.sessionID(), "A")
	env.vote(t, env.hostID(), game, models.DirectionUp)

	repo.SetGameScoreError = stderrors.New("disk full")
	if _, err := env.ledger.ResetAll(context.Background(), env.sessionID()); err == nil {
		t.Fatal("expected error")
	}
	count, _ := real.CountSessionVotes(context.Background(), env.sessionID())
	if count != 1 {
		t.Errorf("expected votes kept after rollback, got %d", count)
	}
}

func TestUserVotes(t *testing.T) {
	env := newTestEnv(t)
	a := testutil.AddGame(t, env.repo, env.sessionID(), "A")
	b := testutil.AddGame(t, env.repo, env.sessionID(), "B")
	env.vote(t, env.hostID(), a, models.DirectionUp)
	env.vote(t, env.hostID(), a, models.DirectionUp)
	env.vote(t, env.hostID(), b, models.DirectionDown)

	uv, err := env.ledger.UserVotes(context.Background(), env.sessionID(), env.hostID())
	if err != nil {
		t.Fatalf("UserVotes failed: %v", err)
	}
	if uv.Votes[a] != 2 || uv.Votes[b] != -1 {
		t.Errorf("unexpected votes %v", uv.Votes)
	}
	if uv.BonusBudget != 2 || uv.BonusUsed != 1 || uv.BonusRemaining != 1 {
		t.Errorf("unexpected bonus %+v", uv)
	}
}
