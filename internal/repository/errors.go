// Package repository holds the SQL data access layer.  Methods suffixed
// with Tx run inside a caller-supplied transaction; the caller commits or
// rolls back.  Sentinel errors below let services tell failure scenarios
// apart without inspecting driver errors.
package repository

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when an insert violates a unique key.
var ErrDuplicate = errors.New("duplicate")

// ErrConflict is returned when a conditional write matched no row because
// the row is not in the expected state.
var ErrConflict = errors.New("conflict")

// isDuplicate reports whether err is a unique-key violation.  MySQL reports
// error 1062; SQLite (used by tests) reports a UNIQUE constraint failure.
func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1062
	}
	msg := err.Error()
	return strings.Contains(msg, "1062") || strings.Contains(msg, "UNIQUE constraint failed")
}

// IsDeadlock reports whether err is a MySQL deadlock (1213) or lock wait
// timeout (1205).  Both abort the statement and leave the transaction safe
// to retry from the start.
func IsDeadlock(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && (me.Number == 1213 || me.Number == 1205)
}

// notFound maps sql.ErrNoRows to ErrNotFound and leaves other errors alone.
func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
