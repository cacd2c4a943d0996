package db

import (
	"errors"
	"fmt"

	"github.com/raphaelgruber/podsearch/internal/models"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Sentinel errors for database operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotFound indicates the requested row does not exist.
	// It is the shared models.ErrNotFound so callers outside db can match it.
	ErrNotFound = models.ErrNotFound

	// ErrConstraint indicates a uniqueness or foreign key violation.
	ErrConstraint = errors.New("constraint violation")

	// ErrBusy indicates the database stayed locked past the busy timeout.
	ErrBusy = errors.New("database busy")
)

// wrapQueryError inspects a SQLite error and wraps it with the matching
// sentinel. Other errors are returned unchanged.
func wrapQueryError(err error) error {
	if err == nil {
		return nil
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() & 0xff {
		case sqlite3.SQLITE_CONSTRAINT:
			return fmt.Errorf("%w: %s", ErrConstraint, sqliteErr.Error())
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return fmt.Errorf("%w: %s", ErrBusy, sqliteErr.Error())
		}
	}

	return err
}
