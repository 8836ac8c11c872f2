package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/fasch-registrar-api/internal/models"
	"github.com/noah-isme/fasch-registrar-api/pkg/database"
)

func TestReconcileCreatesProfessorAndDropsStudent(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewProfileRepository(db)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM users WHERE id = $1 FOR UPDATE")).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("u1"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM professor_profiles WHERE user_id = $1)")).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT nextval('professor_number_seq')")).
		WillReturnRows(sqlmock.NewRows([]string{"nextval"}).AddRow(7))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO professor_profiles")).
		WithArgs(sqlmock.AnyArg(), "u1", "PROF0007", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM student_profiles WHERE user_id = $1")).
		WithArgs("u1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM admin_profiles WHERE user_id = $1")).
		WithArgs("u1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("FROM student_profiles WHERE user_id").
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery("FROM professor_profiles WHERE user_id").
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "professor_number", "department_id", "specialization", "hire_date", "created_at"}).
			AddRow("p1", "u1", "PROF0007", nil, "", now, now))
	mock.ExpectQuery("FROM admin_profiles WHERE user_id").
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectCommit()

	set, err := repo.Reconcile(context.Background(), "u1", models.ProfileProfessor)
	require.NoError(t, err)
	assert.Equal(t, 1, set.Count())
	require.NotNil(t, set.Professor)
	assert.Equal(t, "PROF0007", set.Professor.ProfessorNumber)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconcileKeepsExistingProfile(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewProfileRepository(db)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs("u2").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("u2"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM student_profiles WHERE user_id = $1)")).
		WithArgs("u2").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectExec("DELETE FROM professor_profiles").WithArgs("u2").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM admin_profiles").WithArgs("u2").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("FROM student_profiles WHERE user_id").
		WithArgs("u2").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "student_number", "department_id", "current_year", "enrollment_date", "created_at"}).
			AddRow("s1", "u2", "STU0001", nil, 2, now, now))
	mock.ExpectQuery("FROM professor_profiles WHERE user_id").WithArgs("u2").WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery("FROM admin_profiles WHERE user_id").WithArgs("u2").WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectCommit()

	set, err := repo.Reconcile(context.Background(), "u2", models.ProfileStudent)
	require.NoError(t, err)
	require.NotNil(t, set.Student)
	assert.Equal(t, "STU0001", set.Student.StudentNumber)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChangeRoleOfStudentWithEnrollments(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewProfileRepository(db)
	now := time.Now()
	user := &models.User{ID: "u3", FirstName: "Luc", LastName: "Charles", Role: models.RoleProfessor, Active: true}

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs("u3").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("u3"))
	mock.ExpectExec("UPDATE users SET first_name .+ role").
		WithArgs("Luc", "Charles", "PROFESSOR", sqlmock.AnyArg(), true, sqlmock.AnyArg(), "u3").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM professor_profiles WHERE user_id = $1)")).
		WithArgs("u3").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT nextval('professor_number_seq')")).
		WillReturnRows(sqlmock.NewRows([]string{"nextval"}).AddRow(12))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO professor_profiles")).
		WithArgs(sqlmock.AnyArg(), "u3", "PROF0012", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	// the student profile still owns enrollments and transcripts; the
	// cascading foreign keys remove them with it
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM student_profiles WHERE user_id = $1")).
		WithArgs("u3").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM admin_profiles WHERE user_id = $1")).
		WithArgs("u3").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("FROM student_profiles WHERE user_id").WithArgs("u3").WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery("FROM professor_profiles WHERE user_id").
		WithArgs("u3").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "professor_number", "department_id", "specialization", "hire_date", "created_at"}).
			AddRow("p3", "u3", "PROF0012", nil, "", now, now))
	mock.ExpectQuery("FROM admin_profiles WHERE user_id").WithArgs("u3").WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectCommit()

	set, err := repo.ChangeRole(context.Background(), user, models.ProfileProfessor)
	require.NoError(t, err)
	assert.Nil(t, set.Student)
	require.NotNil(t, set.Professor)
	assert.Equal(t, "PROF0012", set.Professor.ProfessorNumber)
	assert.False(t, user.UpdatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChangeRoleRollsBackWhenProfileCannotBeRemoved(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewProfileRepository(db)
	user := &models.User{ID: "u4", Role: models.RoleProfessor, Active: true}

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs("u4").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("u4"))
	mock.ExpectExec("UPDATE users SET").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT EXISTS").WithArgs("u4").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectExec("DELETE FROM student_profiles").
		WithArgs("u4").
		WillReturnError(&pq.Error{Code: database.CodeForeignKeyViolation, Constraint: "enrollments_student_id_fkey"})
	mock.ExpectRollback()

	_, err := repo.ChangeRole(context.Background(), user, models.ProfileProfessor)
	require.Error(t, err)
	assert.True(t, database.IsForeignKeyViolation(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
