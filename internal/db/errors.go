package db

import (
	"errors"
	"fmt"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Sentinel errors for database operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotFound indicates the referenced conversation, message, setting or prompt does not exist.
	ErrNotFound = errors.New("not found")

	// ErrPermissionDenied indicates an operation the data model forbids,
	// such as editing a system message or deleting the default prompt.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrConflict indicates a unique name is already taken.
	ErrConflict = errors.New("already exists")

	// ErrInvalidInput indicates a value outside the schema's allowed set.
	ErrInvalidInput = errors.New("invalid input")
)

// wrapQueryError maps driver constraint failures onto sentinel errors.
func wrapQueryError(err error) error {
	if err == nil {
		return nil
	}

	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%w: %s", ErrConflict, se.Error())
		case sqlite3.SQLITE_CONSTRAINT_CHECK:
			return fmt.Errorf("%w: %s", ErrInvalidInput, se.Error())
		}
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %s", ErrConflict, err.Error())
	}

	return err
}
