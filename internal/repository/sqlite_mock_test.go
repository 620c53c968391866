package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMockRepo(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &Repository{db: db}, mock
}

// TestListUsers_ScanError tests row scanning error
func TestListUsers_ScanError(t *testing.T) {
	repo, mock := newMockRepo(t)

	rows := sqlmock.NewRows([]string{"id", "session_id", "name", "role", "created_at"}).
		AddRow("bad-id", 1, "Alice", "host", nil)
	mock.ExpectQuery("SELECT (.+) FROM users").WillReturnRows(rows)

	if _, err := repo.ListUsers(context.Background(), 1); err == nil {
		t.Error("expected error from scan failure, got nil")
	}
}

// TestListGames_QueryError tests the game query failing
func TestListGames_QueryError(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT (.+) FROM games").WillReturnError(errors.New("db down"))

	if _, err := repo.ListGames(context.Background(), 1); err == nil {
		t.Error("expected error, got nil")
	}
}

// TestListGames_TagQueryError tests the tag lookup failing after games load
func TestListGames_TagQueryError(t *testing.T) {
	repo, mock := newMockRepo(t)

	rows := sqlmock.NewRows([]string{"id", "session_id", "name", "price", "max_players", "score"}).
		AddRow(1, 1, "Factorio", nil, nil, 0)
	mock.ExpectQuery("SELECT (.+) FROM games").WillReturnRows(rows)
	mock.ExpectQuery("SELECT (.+) FROM game_tags").WillReturnError(errors.New("db down"))

	if _, err := repo.ListGames(context.Background(), 1); err == nil {
		t.Error("expected error, got nil")
	}
}

// TestGetSession_ScanError tests a malformed session row
func TestGetSession_ScanError(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT (.+) FROM sessions").WillReturnError(errors.New("db down"))

	_, err := repo.GetSession(context.Background(), 1)
	if err == nil || err == ErrNotFound {
		t.Errorf("expected driver error, got %v", err)
	}
}

// TestSetGameScore_ExecError tests exec failure propagation
func TestSetGameScore_ExecError(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("UPDATE games SET score").WillReturnError(errors.New("disk full"))

	if err := repo.SetGameScore(context.Background(), 1, 5); err == nil {
		t.Error("expected error, got nil")
	}
}

// TestRequireRow_RowsAffectedError tests RowsAffected failing
func TestRequireRow_RowsAffectedError(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("DELETE FROM users").
		WillReturnResult(sqlmock.NewErrorResult(errors.New("rows affected failed")))

	if err := repo.DeleteUser(context.Background(), 1); err == nil {
		t.Error("expected error, got nil")
	}
}

// TestInTx_BeginError tests a failing BEGIN
func TestInTx_BeginError(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin().WillReturnError(errors.New("busy"))

	called := false
	err := repo.InTx(context.Background(), func(tx FullRepository) error {
		called = true
		return nil
	})
	if err == nil {
		t.Error("expected error, got nil")
	}
	if called {
		t.Error("fn should not run when BEGIN fails")
	}
}

// TestInTx_RollbackOnError tests that a failing fn rolls back
func TestInTx_RollbackOnError(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM votes").WillReturnError(errors.New("locked"))
	mock.ExpectRollback()

	err := repo.InTx(context.Background(), func(tx FullRepository) error {
		_, err := tx.DeleteSessionVotes(context.Background(), 1)
		return err
	})
	if err == nil {
		t.Error("expected error, got nil")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// TestInTx_Commit tests the happy path goes through the transaction
func TestInTx_Commit(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE games SET score").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.InTx(context.Background(), func(tx FullRepository) error {
		return tx.SetGameScore(context.Background(), 1, 2)
	})
	if err != nil {
		t.Fatalf("InTx failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// TestFindOrCreateTag_InsertError tests insert failure
func TestFindOrCreateTag_InsertError(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("INSERT OR IGNORE INTO tags").WillReturnError(errors.New("locked"))

	if _, err := repo.FindOrCreateTag(context.Background(), 1, "RTS"); err == nil {
		t.Error("expected error, got nil")
	}
}

// TestUserVoteWeights_ScanError tests a malformed vote row
func TestUserVoteWeights_ScanError(t *testing.T) {
	repo, mock := newMockRepo(t)

	rows := sqlmock.NewRows([]string{"game_id", "weight"}).AddRow("x", "y")
	mock.ExpectQuery("SELECT game_id, weight FROM votes").WillReturnRows(rows)

	if _, err := repo.UserVoteWeights(context.Background(), 1); err == nil {
		t.Error("expected error from scan failure, got nil")
	}
}

func TestTranslate(t *testing.T) {
	if translate(nil) != nil {
		t.Error("translate(nil) should be nil")
	}
	plain := errors.New("plain")
	if translate(plain) != plain {
		t.Error("non-constraint errors pass through")
	}
}

// TestVoteWrites_TimestampsFromDatabase tests that vote writes leave the
// timestamps to SQLite instead of stamping the process clock
func TestVoteWrites_TimestampsFromDatabase(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := context.Background()

	mock.ExpectExec(`INSERT INTO votes \(user_id, game_id, weight\) VALUES`).
		WithArgs(int64(2), int64(7), 1).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`UPDATE votes SET weight = \?, updated_at = CURRENT_TIMESTAMP`).
		WithArgs(3, int64(2), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.InsertVote(ctx, 2, 7, 1); err != nil {
		t.Fatalf("InsertVote failed: %v", err)
	}
	if err := repo.UpdateVoteWeight(ctx, 2, 7, 3); err != nil {
		t.Fatalf("UpdateVoteWeight failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// TestNameKeys_Written tests that user and game writes store the folded key
func TestNameKeys_Written(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := context.Background()

	mock.ExpectExec(`INSERT INTO users \(session_id, name, name_key, role\)`).
		WithArgs(int64(1), "Émile", "émile", "player").
		WillReturnResult(sqlmock.NewResult(4, 1))
	mock.ExpectExec(`INSERT INTO games \(session_id, name, name_key, price, max_players\)`).
		WithArgs(int64(1), "Ölspiel", "ölspiel", nil, nil).
		WillReturnResult(sqlmock.NewResult(5, 1))

	if _, err := repo.CreateUser(ctx, 1, "Émile", "player"); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if _, err := repo.CreateGame(ctx, 1, "Ölspiel", "", nil); err != nil {
		t.Fatalf("CreateGame failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
