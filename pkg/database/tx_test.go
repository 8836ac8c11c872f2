package database

import (
	"context"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/fasch-registrar-api/pkg/errors"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestInTxCommits(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE course_sections").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := InTx(context.Background(), db, Serializable, func(tx *sqlx.Tx) error {
		_, err := tx.Exec("UPDATE course_sections SET is_open = FALSE")
		return err
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInTxRollsBackOnError(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("rule rejected")
	err := InTx(context.Background(), db, nil, func(tx *sqlx.Tx) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassify(t *testing.T) {
	unique := &pq.Error{Code: CodeUniqueViolation, Constraint: "enrollments_student_id_section_id_key"}
	appErr := Classify(unique)
	require.NotNil(t, appErr)
	assert.Equal(t, appErrors.ErrIntegrityConflict.Code, appErr.Code)
	assert.Equal(t, "enrollments_student_id_section_id_key", appErr.Details["constraint"])

	serial := Classify(&pq.Error{Code: CodeSerializationFailure})
	require.NotNil(t, serial)
	assert.Equal(t, appErrors.ErrIntegrityConflict.Code, serial.Code)

	fk := Classify(&pq.Error{Code: CodeForeignKeyViolation})
	require.NotNil(t, fk)
	assert.Equal(t, appErrors.ErrValidation.Code, fk.Code)

	assert.Nil(t, Classify(errors.New("network down")))
	assert.True(t, IsConflict(unique))
	assert.False(t, IsForeignKeyViolation(unique))
}
