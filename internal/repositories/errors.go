package repositories

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when the requested account does not exist.
var ErrNotFound = errors.New("repository: record not found")

// Unique fields of the accounts table.
const (
	FieldUsername = "username"
	FieldEmail    = "email"
)

// DuplicateKeyError reports a unique constraint violation on Field.
type DuplicateKeyError struct {
	Field string
	Err   error
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("repository: duplicate %s", e.Field)
}

func (e *DuplicateKeyError) Unwrap() error {
	return e.Err
}

// classifyDuplicate inspects a driver error and returns a *DuplicateKeyError
// if it is a unique violation, or nil otherwise.
func classifyDuplicate(err error) *DuplicateKeyError {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code != pgerrcode.UniqueViolation {
			return nil
		}
		return &DuplicateKeyError{Field: fieldFromText(pgErr.ConstraintName + " " + pgErr.Detail), Err: err}
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		if liteErr.ExtendedCode != sqlite3.ErrConstraintUnique && liteErr.ExtendedCode != sqlite3.ErrConstraintPrimaryKey {
			return nil
		}
		return &DuplicateKeyError{Field: fieldFromText(liteErr.Error()), Err: err}
	}

	// Drivers wrapped by something we cannot unwrap still leave the message.
	msg := err.Error()
	if strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value violates unique constraint") {
		return &DuplicateKeyError{Field: fieldFromText(msg), Err: err}
	}
	return nil
}

// fieldFromText picks the colliding field out of a constraint name or driver
// message. Username wins when it cannot be told apart.
func fieldFromText(s string) string {
	if strings.Contains(s, "email") {
		return FieldEmail
	}
	return FieldUsername
}
