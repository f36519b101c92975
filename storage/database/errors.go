package database

import (
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/ps965xx7vn-lgtm/backend-sub002/core"
)

const pqUniqueViolation = "23505"

// IsUniqueViolation reports whether err comes from a unique or primary key constraint.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqUniqueViolation
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// TrapUniqueErr translates unique violations into a *core.ConflictError carrying conflictErr,
// and wraps any other error with msg.
func TrapUniqueErr(err error, conflictErr error, msg string) error {
	if err == nil {
		return nil
	}
	if IsUniqueViolation(err) {
		return core.NewConflictError(conflictErr)
	}
	return errors.Wrap(err, msg)
}
