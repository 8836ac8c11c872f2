package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	appErrors "github.com/noah-isme/fasch-registrar-api/pkg/errors"
)

// PostgreSQL error codes the repositories react to.
const (
	CodeUniqueViolation      = "23505"
	CodeForeignKeyViolation  = "23503"
	CodeCheckViolation       = "23514"
	CodeSerializationFailure = "40001"
	CodeDeadlockDetected     = "40P01"
)

// Serializable is the isolation used for admission decisions.
var Serializable = &sql.TxOptions{Isolation: sql.LevelSerializable}

// TxFunc is executed inside a transaction.
type TxFunc func(tx *sqlx.Tx) error

// InTx runs fn inside a transaction, committing when fn returns nil and
// rolling back otherwise.
func InTx(ctx context.Context, db *sqlx.DB, opts *sql.TxOptions, fn TxFunc) (err error) {
	tx, err := db.BeginTxx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback() //nolint:errcheck
			panic(p)
		}
		if err != nil {
			tx.Rollback() //nolint:errcheck
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func pqCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

// IsUniqueViolation reports whether err is a unique constraint violation.
func IsUniqueViolation(err error) bool {
	return pqCode(err) == CodeUniqueViolation
}

// IsForeignKeyViolation reports whether err references a missing row.
func IsForeignKeyViolation(err error) bool {
	return pqCode(err) == CodeForeignKeyViolation
}

// IsConflict reports whether err is a uniqueness or concurrency conflict.
func IsConflict(err error) bool {
	switch pqCode(err) {
	case CodeUniqueViolation, CodeSerializationFailure, CodeDeadlockDetected:
		return true
	}
	return false
}

// Constraint returns the violated constraint name, if reported by the server.
func Constraint(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Constraint
	}
	return ""
}

// Classify maps store failures onto the error taxonomy. It returns nil when
// err is not a recognised store condition so callers can fall back to
// INTERNAL_ERROR.
func Classify(err error) *appErrors.Error {
	if err == nil {
		return nil
	}
	switch pqCode(err) {
	case CodeUniqueViolation:
		e := appErrors.Wrap(err, appErrors.ErrIntegrityConflict.Code, appErrors.ErrIntegrityConflict.Status, "record already exists")
		if name := Constraint(err); name != "" {
			e.Details = map[string]string{"constraint": name}
		}
		return e
	case CodeSerializationFailure, CodeDeadlockDetected:
		return appErrors.Wrap(err, appErrors.ErrIntegrityConflict.Code, appErrors.ErrIntegrityConflict.Status, appErrors.ErrIntegrityConflict.Message)
	case CodeForeignKeyViolation:
		e := appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "referenced record does not exist")
		if name := Constraint(err); name != "" {
			e.Details = map[string]string{"constraint": name}
		}
		return e
	case CodeCheckViolation:
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "value violates a check constraint")
	}
	return nil
}
