package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/frankferrari/lanomat/internal/models"
)

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repository provides data access methods
type Repository struct {
	db *sql.DB
	tx *sql.Tx
}

// New creates a new Repository
func New(dbPath string) (*Repository, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	// Enable foreign key constraints
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, err
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite works best with single connection
	db.SetMaxIdleConns(1)

	repo := &Repository{db: db}

	// Run migrations
	if err := repo.migrate(); err != nil {
		return nil, err
	}

	return repo, nil
}

// DB returns the underlying database connection
func (r *Repository) DB() *sql.DB {
	return r.db
}

// Close closes the database connection
func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks if the database connection is alive
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// InTx executes fn inside a transaction. If fn returns an error the
// transaction rolls back, otherwise it commits. Nested calls reuse the
// outer transaction.
func (r *Repository) InTx(ctx context.Context, fn func(tx FullRepository) error) error {
	if r.tx != nil {
		return fn(r)
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(&Repository{db: r.db, tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// conn returns the transaction when bound to one, else the pool.
// Inside InTx every query must go through here: with a single pooled
// connection a query on r.db would wait for the open transaction forever.
func (r *Repository) conn() querier {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

// migrate runs database migrations
func (r *Repository) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			code TEXT NOT NULL UNIQUE,
			bonus_vote_budget INTEGER NOT NULL DEFAULT 2,
			allow_downvotes BOOLEAN NOT NULL DEFAULT 1,
			exclude_previous_game BOOLEAN NOT NULL DEFAULT 0,
			previous_game_id INTEGER REFERENCES games(id) ON DELETE SET NULL,
			previous_game_penalty INTEGER NOT NULL DEFAULT 2,
			countdown_enabled BOOLEAN NOT NULL DEFAULT 0,
			countdown_duration_minutes INTEGER NOT NULL DEFAULT 5,
			countdown_ends_at INTEGER,
			countdown_remaining_seconds INTEGER,
			wheel_enabled BOOLEAN NOT NULL DEFAULT 0,
			wheel_filter_mode TEXT NOT NULL DEFAULT 'top_x',
			wheel_top_count INTEGER NOT NULL DEFAULT 5,
			wheel_proportional BOOLEAN NOT NULL DEFAULT 0,
			wheel_spin_id TEXT,
			wheel_start_at INTEGER,
			wheel_winner_id INTEGER,
			wheel_snapshot TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			CHECK (countdown_ends_at IS NULL OR countdown_remaining_seconds IS NULL)
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id INTEGER NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			name_key TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'player',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(session_id, name_key)
		)`,
		`CREATE TABLE IF NOT EXISTS games (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id INTEGER NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			name_key TEXT NOT NULL,
			price TEXT,
			max_players INTEGER,
			score INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(session_id, name_key)
		)`,
		`CREATE TABLE IF NOT EXISTS tags (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id INTEGER NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			name_key TEXT NOT NULL,
			UNIQUE(session_id, name_key)
		)`,
		`CREATE TABLE IF NOT EXISTS game_tags (
			game_id INTEGER NOT NULL REFERENCES games(id) ON DELETE CASCADE,
			tag_id INTEGER NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
			PRIMARY KEY (game_id, tag_id)
		)`,
		`CREATE TABLE IF NOT EXISTS votes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			game_id INTEGER NOT NULL REFERENCES games(id) ON DELETE CASCADE,
			weight INTEGER NOT NULL CHECK (weight <> 0),
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(user_id, game_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_users_session ON users(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_games_session ON games(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_tags_session ON tags(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_game_tags_tag ON game_tags(tag_id)`,
		`CREATE INDEX IF NOT EXISTS idx_votes_user ON votes(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_votes_game ON votes(game_id)`,
	}

	for _, migration := range migrations {
		if _, err := r.db.Exec(migration); err != nil {
			return err
		}
	}
	return nil
}

// ==================== Session Methods ====================

const sessionColumns = `id, code, bonus_vote_budget, allow_downvotes, exclude_previous_game,
	previous_game_id, previous_game_penalty, countdown_enabled, countdown_duration_minutes,
	countdown_ends_at, countdown_remaining_seconds, wheel_enabled, wheel_filter_mode,
	wheel_top_count, wheel_proportional, wheel_spin_id, wheel_start_at, wheel_winner_id,
	wheel_snapshot, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// wheelSnapshot is the JSON stored alongside an active spin so late joiners
// receive exactly the slices that were drawn from
type wheelSnapshot struct {
	Games        []models.WheelEntry `json:"games"`
	Proportional bool                `json:"proportional"`
}

func scanSession(row rowScanner) (*models.Session, error) {
	var s models.Session
	var filterMode string
	var previousGameID, endsAt, remaining, startAt, winnerID sql.NullInt64
	var spinID, snapshot sql.NullString
	var createdAt sql.NullTime

	err := row.Scan(&s.ID, &s.Code, &s.Voting.BonusVoteBudget, &s.Voting.AllowDownvotes,
		&s.Voting.ExcludePreviousGame, &previousGameID, &s.Voting.PreviousGamePenalty,
		&s.Countdown.Enabled, &s.Countdown.DurationMinutes, &endsAt, &remaining,
		&s.Wheel.Enabled, &filterMode, &s.Wheel.TopCount, &s.Wheel.Proportional,
		&spinID, &startAt, &winnerID, &snapshot, &createdAt)
	if err != nil {
		return nil, err
	}

	s.Wheel.FilterMode = models.FilterMode(filterMode)
	s.CreatedAt = createdAt.Time
	if previousGameID.Valid {
		id := previousGameID.Int64
		s.PreviousGameID = &id
	}
	if endsAt.Valid {
		t := time.UnixMilli(endsAt.Int64).UTC()
		s.CountdownState.EndsAt = &t
	}
	if remaining.Valid {
		secs := int(remaining.Int64)
		s.CountdownState.RemainingSeconds = &secs
	}
	if spinID.Valid && startAt.Valid && winnerID.Valid {
		t := time.UnixMilli(startAt.Int64).UTC()
		id := winnerID.Int64
		s.WheelState.SpinID = spinID.String
		s.WheelState.StartAt = &t
		s.WheelState.WinnerGameID = &id
		if snapshot.Valid && snapshot.String != "" {
			var snap wheelSnapshot
			if err := json.Unmarshal([]byte(snapshot.String), &snap); err != nil {
				return nil, err
			}
			s.WheelState.Games = snap.Games
			s.WheelState.Proportional = snap.Proportional
		}
	}
	return &s, nil
}

// CreateSession inserts a session with the given settings
func (r *Repository) CreateSession(ctx context.Context, code string, s models.Session) (int64, error) {
	result, err := r.conn().ExecContext(ctx, `
		INSERT INTO sessions (code, bonus_vote_budget, allow_downvotes, exclude_previous_game,
			previous_game_penalty, countdown_enabled, countdown_duration_minutes,
			wheel_enabled, wheel_filter_mode, wheel_top_count, wheel_proportional)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		code, s.Voting.BonusVoteBudget, s.Voting.AllowDownvotes, s.Voting.ExcludePreviousGame,
		s.Voting.PreviousGamePenalty, s.Countdown.Enabled, s.Countdown.DurationMinutes,
		s.Wheel.Enabled, string(s.Wheel.FilterMode), s.Wheel.TopCount, s.Wheel.Proportional)
	if err != nil {
		return 0, translate(err)
	}
	return result.LastInsertId()
}

// GetSession retrieves a session by ID
func (r *Repository) GetSession(ctx context.Context, id int64) (*models.Session, error) {
	row := r.conn().QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	s, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return s, err
}

// GetSessionByCode retrieves a session by its join code
func (r *Repository) GetSessionByCode(ctx context.Context, code string) (*models.Session, error) {
	row := r.conn().QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE code = ?`, code)
	s, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return s, err
}

// SessionCodeExists checks whether a join code is taken
func (r *Repository) SessionCodeExists(ctx context.Context, code string) (bool, error) {
	var count int
	err := r.conn().QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE code = ?`, code).Scan(&count)
	return count > 0, err
}

// UpdateSessionSettings stores the voting, countdown and wheel configuration
func (r *Repository) UpdateSessionSettings(ctx context.Context, id int64, voting models.VotingRules, countdown models.CountdownConfig, wheel models.WheelConfig) error {
	result, err := r.conn().ExecContext(ctx, `
		UPDATE sessions SET bonus_vote_budget = ?, allow_downvotes = ?, exclude_previous_game = ?,
			previous_game_penalty = ?, countdown_enabled = ?, countdown_duration_minutes = ?,
			wheel_enabled = ?, wheel_filter_mode = ?, wheel_top_count = ?, wheel_proportional = ?
		WHERE id = ?`,
		voting.BonusVoteBudget, voting.AllowDownvotes, voting.ExcludePreviousGame,
		voting.PreviousGamePenalty, countdown.Enabled, countdown.DurationMinutes,
		wheel.Enabled, string(wheel.FilterMode), wheel.TopCount, wheel.Proportional, id)
	return requireRow(result, err)
}

// SetPreviousGame points the session at the game played last (nil clears it)
func (r *Repository) SetPreviousGame(ctx context.Context, id int64, gameID *int64) error {
	result, err := r.conn().ExecContext(ctx, `UPDATE sessions SET previous_game_id = ? WHERE id = ?`, gameID, id)
	return requireRow(result, err)
}

// SetCountdownRuntime stores the countdown state
func (r *Repository) SetCountdownRuntime(ctx context.Context, id int64, rt models.CountdownRuntime) error {
	var endsAt, remaining any
	if rt.EndsAt != nil {
		endsAt = rt.EndsAt.UnixMilli()
	}
	if rt.RemainingSeconds != nil {
		remaining = *rt.RemainingSeconds
	}
	result, err := r.conn().ExecContext(ctx,
		`UPDATE sessions SET countdown_ends_at = ?, countdown_remaining_seconds = ? WHERE id = ?`,
		endsAt, remaining, id)
	return requireRow(result, err)
}

// SetWheelRuntime stores (or, with a zero value, clears) the active spin
func (r *Repository) SetWheelRuntime(ctx context.Context, id int64, rt models.WheelRuntime) error {
	var spinID, startAt, winnerID, snapshot any
	if rt.Active() {
		data, err := json.Marshal(wheelSnapshot{Games: rt.Games, Proportional: rt.Proportional})
		if err != nil {
			return err
		}
		spinID = rt.SpinID
		startAt = rt.StartAt.UnixMilli()
		winnerID = *rt.WinnerGameID
		snapshot = string(data)
	}
	result, err := r.conn().ExecContext(ctx, `
		UPDATE sessions SET wheel_spin_id = ?, wheel_start_at = ?, wheel_winner_id = ?, wheel_snapshot = ?
		WHERE id = ?`, spinID, startAt, winnerID, snapshot, id)
	return requireRow(result, err)
}

// ListRunningCountdowns returns every session whose countdown is running
func (r *Repository) ListRunningCountdowns(ctx context.Context) ([]models.Session, error) {
	rows, err := r.conn().QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE countdown_ends_at IS NOT NULL ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

// DeleteSession removes a session and, by cascade, everything it owns
func (r *Repository) DeleteSession(ctx context.Context, id int64) error {
	result, err := r.conn().ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	return requireRow(result, err)
}

// ==================== User Methods ====================

// CreateUser adds a user to a session. Names are unique per session by NameKey.
func (r *Repository) CreateUser(ctx context.Context, sessionID int64, name string, role models.Role) (int64, error) {
	result, err := r.conn().ExecContext(ctx,
		`INSERT INTO users (session_id, name, name_key, role) VALUES (?, ?, ?, ?)`,
		sessionID, name, models.NameKey(name), string(role))
	if err != nil {
		return 0, translate(err)
	}
	return result.LastInsertId()
}

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	var role string
	var createdAt sql.NullTime
	if err := row.Scan(&u.ID, &u.SessionID, &u.Name, &role, &createdAt); err != nil {
		return nil, err
	}
	u.Role = models.Role(role)
	u.CreatedAt = createdAt.Time
	return &u, nil
}

// GetUser retrieves a user by ID
func (r *Repository) GetUser(ctx context.Context, id int64) (*models.User, error) {
	row := r.conn().QueryRowContext(ctx,
		`SELECT id, session_id, name, role, created_at FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return u, err
}

// FindUserByName looks a user up by name within a session, ignoring case
func (r *Repository) FindUserByName(ctx context.Context, sessionID int64, name string) (*models.User, error) {
	row := r.conn().QueryRowContext(ctx,
		`SELECT id, session_id, name, role, created_at FROM users WHERE session_id = ? AND name_key = ?`,
		sessionID, models.NameKey(name))
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return u, err
}

// ListUsers returns the users of a session in join order
func (r *Repository) ListUsers(ctx context.Context, sessionID int64) ([]models.User, error) {
	rows, err := r.conn().QueryContext(ctx,
		`SELECT id, session_id, name, role, created_at FROM users WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// UpdateUserName renames a user
func (r *Repository) UpdateUserName(ctx context.Context, id int64, name string) error {
	result, err := r.conn().ExecContext(ctx, `UPDATE users SET name = ?, name_key = ? WHERE id = ?`, name, models.NameKey(name), id)
	return requireRow(result, translate(err))
}

// UpdateUserRole changes a user's role
func (r *Repository) UpdateUserRole(ctx context.Context, id int64, role models.Role) error {
	result, err := r.conn().ExecContext(ctx, `UPDATE users SET role = ? WHERE id = ?`, string(role), id)
	return requireRow(result, err)
}

// DeleteUser removes a user and their votes
func (r *Repository) DeleteUser(ctx context.Context, id int64) error {
	result, err := r.conn().ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	return requireRow(result, err)
}

// CountHosts returns the number of hosts in a session
func (r *Repository) CountHosts(ctx context.Context, sessionID int64) (int, error) {
	var count int
	err := r.conn().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE session_id = ? AND role = ?`, sessionID, string(models.RoleHost)).Scan(&count)
	return count, err
}

// ==================== Game Methods ====================

// CreateGame adds a game to a session
func (r *Repository) CreateGame(ctx context.Context, sessionID int64, name, price string, maxPlayers *int) (int64, error) {
	result, err := r.conn().ExecContext(ctx,
		`INSERT INTO games (session_id, name, name_key, price, max_players) VALUES (?, ?, ?, ?, ?)`,
		sessionID, name, models.NameKey(name), nullString(price), maxPlayers)
	if err != nil {
		return 0, translate(err)
	}
	return result.LastInsertId()
}

// UpdateGame updates a game's catalog fields. The score is left alone.
func (r *Repository) UpdateGame(ctx context.Context, id int64, name, price string, maxPlayers *int) error {
	result, err := r.conn().ExecContext(ctx,
		`UPDATE games SET name = ?, name_key = ?, price = ?, max_players = ? WHERE id = ?`,
		name, models.NameKey(name), nullString(price), maxPlayers, id)
	return requireRow(result, translate(err))
}

// DeleteGame removes a game with its votes and tag links
func (r *Repository) DeleteGame(ctx context.Context, id int64) error {
	result, err := r.conn().ExecContext(ctx, `DELETE FROM games WHERE id = ?`, id)
	return requireRow(result, err)
}

func scanGame(row rowScanner) (*models.Game, error) {
	var g models.Game
	var price sql.NullString
	var maxPlayers sql.NullInt64
	if err := row.Scan(&g.ID, &g.SessionID, &g.Name, &price, &maxPlayers, &g.Score); err != nil {
		return nil, err
	}
	g.Price = price.String
	if maxPlayers.Valid {
		n := int(maxPlayers.Int64)
		g.MaxPlayers = &n
	}
	g.Tags = []string{}
	return &g, nil
}

// GetGame retrieves a game of a session, with its tags
func (r *Repository) GetGame(ctx context.Context, sessionID, id int64) (*models.Game, error) {
	row := r.conn().QueryRowContext(ctx,
		`SELECT id, session_id, name, price, max_players, score FROM games WHERE id = ? AND session_id = ?`,
		id, sessionID)
	g, err := scanGame(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	tags, err := r.GameTags(ctx, id)
	if err != nil {
		return nil, err
	}
	g.Tags = tags
	return g, nil
}

// ListGames returns the games of a session ordered by score, then name
func (r *Repository) ListGames(ctx context.Context, sessionID int64) ([]models.Game, error) {
	rows, err := r.conn().QueryContext(ctx, `
		SELECT id, session_id, name, price, max_players, score
		FROM games WHERE session_id = ?
		ORDER BY score DESC, name_key ASC, id ASC`, sessionID)
	if err != nil {
		return nil, err
	}

	var games []models.Game
	index := make(map[int64]int)
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		index[g.ID] = len(games)
		games = append(games, *g)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	tagRows, err := r.conn().QueryContext(ctx, `
		SELECT gt.game_id, t.name
		FROM game_tags gt
		JOIN tags t ON t.id = gt.tag_id
		JOIN games g ON g.id = gt.game_id
		WHERE g.session_id = ?
		ORDER BY t.name_key`, sessionID)
	if err != nil {
		return nil, err
	}
	defer tagRows.Close()

	for tagRows.Next() {
		var gameID int64
		var name string
		if err := tagRows.Scan(&gameID, &name); err != nil {
			return nil, err
		}
		if i, ok := index[gameID]; ok {
			games[i].Tags = append(games[i].Tags, name)
		}
	}
	return games, tagRows.Err()
}

// SetGameScore writes the cached score. Only the score calculator's output
// may be passed here.
func (r *Repository) SetGameScore(ctx context.Context, id int64, score int) error {
	_, err := r.conn().ExecContext(ctx, `UPDATE games SET score = ? WHERE id = ?`, score, id)
	return err
}

// ==================== Tag Methods ====================

// FindOrCreateTag returns the ID of the tag with this name, creating it if needed
func (r *Repository) FindOrCreateTag(ctx context.Context, sessionID int64, name string) (int64, error) {
	name = strings.TrimSpace(name)
	key := models.NameKey(name)
	if _, err := r.conn().ExecContext(ctx,
		`INSERT OR IGNORE INTO tags (session_id, name, name_key) VALUES (?, ?, ?)`, sessionID, name, key); err != nil {
		return 0, err
	}
	var id int64
	err := r.conn().QueryRowContext(ctx,
		`SELECT id FROM tags WHERE session_id = ? AND name_key = ?`, sessionID, key).Scan(&id)
	return id, err
}

// SetGameTags replaces the tag links of a game
func (r *Repository) SetGameTags(ctx context.Context, gameID int64, tagIDs []int64) error {
	if _, err := r.conn().ExecContext(ctx, `DELETE FROM game_tags WHERE game_id = ?`, gameID); err != nil {
		return err
	}
	for _, tagID := range tagIDs {
		if _, err := r.conn().ExecContext(ctx,
			`INSERT OR IGNORE INTO game_tags (game_id, tag_id) VALUES (?, ?)`, gameID, tagID); err != nil {
			return err
		}
	}
	return nil
}

// GameTags returns the tag names of a game
func (r *Repository) GameTags(ctx context.Context, gameID int64) ([]string, error) {
	rows, err := r.conn().QueryContext(ctx, `
		SELECT t.name FROM game_tags gt JOIN tags t ON t.id = gt.tag_id
		WHERE gt.game_id = ? ORDER BY t.name_key`, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tags := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tags = append(tags, name)
	}
	return tags, rows.Err()
}

// ListTags returns the tags of a session with how many games use each
func (r *Repository) ListTags(ctx context.Context, sessionID int64) ([]models.Tag, error) {
	rows, err := r.conn().QueryContext(ctx, `
		SELECT t.id, t.session_id, t.name, COUNT(gt.game_id)
		FROM tags t LEFT JOIN game_tags gt ON gt.tag_id = t.id
		WHERE t.session_id = ?
		GROUP BY t.id
		ORDER BY t.name_key`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tags []models.Tag
	for rows.Next() {
		var t models.Tag
		if err := rows.Scan(&t.ID, &t.SessionID, &t.Name, &t.GameCount); err != nil {
			return nil, err
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

// DeleteOrphanTags removes tags no game refers to any more
func (r *Repository) DeleteOrphanTags(ctx context.Context, sessionID int64) (int64, error) {
	result, err := r.conn().ExecContext(ctx, `
		DELETE FROM tags WHERE session_id = ?
		AND NOT EXISTS (SELECT 1 FROM game_tags gt WHERE gt.tag_id = tags.id)`, sessionID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// ==================== Vote Methods ====================

// GetVote returns the vote of a user for a game
func (r *Repository) GetVote(ctx context.Context, userID, gameID int64) (*models.Vote, error) {
	v := models.Vote{UserID: userID, GameID: gameID}
	err := r.conn().QueryRowContext(ctx,
		`SELECT weight FROM votes WHERE user_id = ? AND game_id = ?`, userID, gameID).Scan(&v.Weight)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// InsertVote creates a vote. Returns ErrDuplicate when one already exists.
func (r *Repository) InsertVote(ctx context.Context, userID, gameID int64, weight int) error {
	_, err := r.conn().ExecContext(ctx,
		`INSERT INTO votes (user_id, game_id, weight) VALUES (?, ?, ?)`, userID, gameID, weight)
	return translate(err)
}

// UpdateVoteWeight changes the weight of an existing vote
func (r *Repository) UpdateVoteWeight(ctx context.Context, userID, gameID int64, weight int) error {
	result, err := r.conn().ExecContext(ctx,
		`UPDATE votes SET weight = ?, updated_at = CURRENT_TIMESTAMP WHERE user_id = ? AND game_id = ?`,
		weight, userID, gameID)
	return requireRow(result, err)
}

// DeleteVote removes a vote
func (r *Repository) DeleteVote(ctx context.Context, userID, gameID int64) error {
	result, err := r.conn().ExecContext(ctx,
		`DELETE FROM votes WHERE user_id = ? AND game_id = ?`, userID, gameID)
	return requireRow(result, err)
}

// UserVoteWeights returns game_id -> weight for every vote of a user
func (r *Repository) UserVoteWeights(ctx context.Context, userID int64) (map[int64]int, error) {
	rows, err := r.conn().QueryContext(ctx, `SELECT game_id, weight FROM votes WHERE user_id = ?`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	weights := make(map[int64]int)
	for rows.Next() {
		var gameID int64
		var weight int
		if err := rows.Scan(&gameID, &weight); err != nil {
			return nil, err
		}
		weights[gameID] = weight
	}
	return weights, rows.Err()
}

// GameVoteWeights returns the weights of every vote for a game
func (r *Repository) GameVoteWeights(ctx context.Context, gameID int64) ([]int, error) {
	rows, err := r.conn().QueryContext(ctx, `SELECT weight FROM votes WHERE game_id = ?`, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var weights []int
	for rows.Next() {
		var w int
		if err := rows.Scan(&w); err != nil {
			return nil, err
		}
		weights = append(weights, w)
	}
	return weights, rows.Err()
}

// DeleteSessionVotes removes every vote cast in a session
func (r *Repository) DeleteSessionVotes(ctx context.Context, sessionID int64) (int64, error) {
	result, err := r.conn().ExecContext(ctx, `
		DELETE FROM votes WHERE game_id IN (SELECT id FROM games WHERE session_id = ?)`, sessionID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// CountSessionVotes returns the number of vote rows in a session
func (r *Repository) CountSessionVotes(ctx context.Context, sessionID int64) (int, error) {
	var count int
	err := r.conn().QueryRowContext(ctx, `
		SELECT COUNT(*) FROM votes v JOIN games g ON g.id = v.game_id WHERE g.session_id = ?`,
		sessionID).Scan(&count)
	return count, err
}

// ==================== Helpers ====================

// requireRow turns "no rows affected" into ErrNotFound
func requireRow(result sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
