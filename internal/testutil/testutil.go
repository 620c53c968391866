package testutil

import (
	"context"
	"sync"
	"testing"

	"github.com/frankferrari/lanomat/internal/models"
	"github.com/frankferrari/lanomat/internal/repository"
)

// NewTestRepository creates a new in-memory repository for testing.
// Each call creates a fresh database with all migrations applied.
func NewTestRepository(t *testing.T) *repository.Repository {
	t.Helper()

	repo, err := repository.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test repository: %v", err)
	}

	t.Cleanup(func() {
		repo.Close()
	})

	return repo
}

// DefaultSession returns the settings a freshly created session gets
func DefaultSession() models.Session {
	return models.Session{
		Voting: models.VotingRules{
			BonusVoteBudget:     2,
			AllowDownvotes:      true,
			PreviousGamePenalty: 2,
		},
		Countdown: models.CountdownConfig{DurationMinutes: 5},
		Wheel:     models.WheelConfig{FilterMode: models.FilterTopX, TopCount: 5},
	}
}

// Fixture is a seeded session with a host
type Fixture struct {
	Session *models.Session
	Host    *models.User
}

// SeedSession creates a session with the given code and a host named "Host"
func SeedSession(t *testing.T, repo repository.FullRepository, code string) Fixture {
	t.Helper()
	ctx := context.Background()

	id, err := repo.CreateSession(ctx, code, DefaultSession())
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	hostID, err := repo.CreateUser(ctx, id, "Host", models.RoleHost)
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	s, _ := repo.GetSession(ctx, id)
	host, _ := repo.GetUser(ctx, hostID)
	return Fixture{Session: s, Host: host}
}

// AddPlayer creates a player in the session
func AddPlayer(t *testing.T, repo repository.FullRepository, sessionID int64, name string) *models.User {
	t.Helper()
	ctx := context.Background()
	id, err := repo.CreateUser(ctx, sessionID, name, models.RolePlayer)
	if err != nil {
		t.Fatalf("CreateUser(%s) failed: %v", name, err)
	}
	u, _ := repo.GetUser(ctx, id)
	return u
}

// AddGame creates a game and attaches the given tags
func AddGame(t *testing.T, repo repository.FullRepository, sessionID int64, name string, tags ...string) int64 {
	t.Helper()
	ctx := context.Background()
	id, err := repo.CreateGame(ctx, sessionID, name, "", nil)
	if err != nil {
		t.Fatalf("CreateGame(%s) failed: %v", name, err)
	}
	var tagIDs []int64
	for _, tag := range tags {
		tagID, err := repo.FindOrCreateTag(ctx, sessionID, tag)
		if err != nil {
			t.Fatalf("FindOrCreateTag(%s) failed: %v", tag, err)
		}
		tagIDs = append(tagIDs, tagID)
	}
	if err := repo.SetGameTags(ctx, id, tagIDs); err != nil {
		t.Fatalf("SetGameTags failed: %v", err)
	}
	return id
}

// Message is one captured broadcast
type Message struct {
	SessionID int64
	Type      string
	Payload   any
}

// RecordingBroadcaster captures broadcasts for assertions
type RecordingBroadcaster struct {
	mu       sync.Mutex
	messages []Message
}

// BroadcastToSession records the message
func (b *RecordingBroadcaster) BroadcastToSession(sessionID int64, msgType string, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, Message{SessionID: sessionID, Type: msgType, Payload: payload})
}

// Messages returns a copy of everything recorded so far
func (b *RecordingBroadcaster) Messages() []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Message, len(b.messages))
	copy(out, b.messages)
	return out
}

// OfType returns the recorded messages with the given type
func (b *RecordingBroadcaster) OfType(msgType string) []Message {
	var out []Message
	for _, m := range b.Messages() {
		if m.Type == msgType {
			out = append(out, m)
		}
	}
	return out
}

// Reset drops recorded messages
func (b *RecordingBroadcaster) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = nil
}
