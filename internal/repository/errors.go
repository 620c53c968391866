package repository

import (
	"errors"

	"github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a requested record is not found in the repository.
// This abstracts away the underlying storage implementation (SQL, NoSQL, etc.)
// from the service layer.
var ErrNotFound = errors.New("record not found")

// ErrDuplicate is returned when an insert or update violates a uniqueness
// constraint (case-insensitive names, one vote per user and game).
var ErrDuplicate = errors.New("duplicate record")

// isUniqueViolation reports whether err is a SQLite UNIQUE/PRIMARY KEY failure
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// translate maps driver errors onto repository sentinels
func translate(err error) error {
	if err == nil {
		return nil
	}
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}
