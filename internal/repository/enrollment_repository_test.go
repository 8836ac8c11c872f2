package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/fasch-registrar-api/internal/models"
)

var sectionRowColumns = []string{"id", "course_id", "section_number", "professor_id", "day", "start_time", "end_time", "room", "session", "semester", "year", "max_students", "is_open", "created_at", "updated_at"}

func expectAdmissionSnapshot(mock sqlmock.Sqlmock, enrolled int) {
	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM student_profiles WHERE id = $1 FOR UPDATE")).
		WithArgs("stu-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("stu-1"))
	mock.ExpectQuery("FROM course_sections WHERE id = \\$1 FOR UPDATE").
		WithArgs("sec-1").
		WillReturnRows(sqlmock.NewRows(sectionRowColumns).
			AddRow("sec-1", "course-1", "01", nil, "MONDAY", "08:00:00", "10:00:00", "A1", "SESSION_1", "FALL", 2025, 30, true, now, now))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollments WHERE section_id = $1 AND status = 'ENROLLED'")).
		WithArgs("sec-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(enrolled))
	mock.ExpectQuery("WHERE e.student_id = \\$1 AND e.status = 'ENROLLED'").
		WithArgs("stu-1").
		WillReturnRows(sqlmock.NewRows([]string{"enrollment_id", "section_id", "course_id", "course_code", "day", "start_time", "end_time", "session", "semester", "year"}).
			AddRow("enr-0", "sec-0", "course-0", "SOC210", "MONDAY", "10:00:00", "12:00:00", "SESSION_1", "FALL", 2025))
	mock.ExpectQuery("FROM enrollments WHERE student_id = \\$1 AND section_id = \\$2").
		WithArgs("stu-1", "sec-1").
		WillReturnError(sql.ErrNoRows)
}

func TestEnrollInsertsAfterAdmission(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	expectAdmissionSnapshot(mock, 12)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO enrollments")).
		WithArgs(sqlmock.AnyArg(), "stu-1", "sec-1", models.EnrollmentStatusEnrolled, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	var seen *models.AdmissionSnapshot
	enrollment, err := repo.Enroll(context.Background(), "stu-1", "sec-1", func(s *models.AdmissionSnapshot) error {
		seen = s
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusEnrolled, enrollment.Status)
	require.NotNil(t, seen)
	assert.Equal(t, 12, seen.SectionEnrolled)
	assert.Equal(t, models.MustClock("08:00"), seen.Section.StartTime)
	require.Len(t, seen.Active, 1)
	assert.Equal(t, "SOC210", seen.Active[0].CourseCode)
	assert.Nil(t, seen.ExistingInSection)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollRollsBackWhenRejected(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	expectAdmissionSnapshot(mock, 30)
	mock.ExpectRollback()

	rejected := errors.New("full")
	_, err := repo.Enroll(context.Background(), "stu-1", "sec-1", func(*models.AdmissionSnapshot) error { return rejected })
	assert.ErrorIs(t, err, rejected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollUnknownSection(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM student_profiles WHERE id = $1 FOR UPDATE")).
		WithArgs("stu-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("stu-1"))
	mock.ExpectQuery("FROM course_sections WHERE id = \\$1 FOR UPDATE").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.Enroll(context.Background(), "stu-1", "missing", func(*models.AdmissionSnapshot) error { return nil })
	assert.ErrorIs(t, err, ErrSectionNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChangeStatusWritesHistoryBeforeUpdate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM enrollments WHERE id = $1 FOR UPDATE")).
		WithArgs("enr-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "section_id", "status", "enrolled_at", "dropped_at", "updated_at"}).
			AddRow("enr-1", "stu-1", "sec-1", "ENROLLED", now, nil, now))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO enrollment_history")).
		WithArgs(sqlmock.AnyArg(), "enr-1", models.EnrollmentStatusEnrolled, models.EnrollmentStatusDropped, nil, "schedule change", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET status = $2, dropped_at = $3, updated_at = $4 WHERE id = $1")).
		WithArgs("enr-1", models.EnrollmentStatusDropped, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	updated, err := repo.ChangeStatus(context.Background(), "enr-1", func(current *models.Enrollment) (*models.EnrollmentHistory, error) {
		assert.Equal(t, models.EnrollmentStatusEnrolled, current.Status)
		return &models.EnrollmentHistory{NewStatus: models.EnrollmentStatusDropped, Reason: "schedule change"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusDropped, updated.Status)
	assert.NotNil(t, updated.DroppedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChangeStatusMissingEnrollment(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM enrollments WHERE id = $1 FOR UPDATE")).
		WithArgs("nope").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.ChangeStatus(context.Background(), "nope", func(*models.Enrollment) (*models.EnrollmentHistory, error) {
		t.Fatal("transition must not run")
		return nil, nil
	})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}
