package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/fasch-registrar-api/internal/models"
	"github.com/noah-isme/fasch-registrar-api/pkg/database"
)

const enrollmentColumns = `id, student_id, section_id, status, enrolled_at, dropped_at, updated_at`

const enrollmentDetailSelect = `SELECT e.id, e.student_id, e.section_id, e.status, e.enrolled_at, e.dropped_at, e.updated_at,
	sp.student_number, TRIM(u.first_name || ' ' || u.last_name) AS student_name, u.id AS student_user_id, u.email AS student_email,
	c.id AS course_id, c.code AS course_code, c.name AS course_name, c.credits,
	s.section_number, s.day, s.start_time, s.end_time, s.session, s.semester, s.year
FROM enrollments e
JOIN student_profiles sp ON sp.id = e.student_id
JOIN users u ON u.id = sp.user_id
JOIN course_sections s ON s.id = e.section_id
JOIN courses c ON c.id = s.course_id`

var (
	// ErrStudentProfileNotFound is returned when the enrolling student has no profile.
	ErrStudentProfileNotFound = errors.New("student profile not found")
	// ErrSectionNotFound is returned when the requested section does not exist.
	ErrSectionNotFound = errors.New("section not found")
)

// AdmitFunc decides whether an enrollment may be created given the state read
// under lock. A non-nil error aborts the transaction.
type AdmitFunc func(snapshot *models.AdmissionSnapshot) error

// TransitionFunc validates a status change of current and returns the
// history row to record.
type TransitionFunc func(current *models.Enrollment) (*models.EnrollmentHistory, error)

// EnrollmentRepository persists enrollments and their status history.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs an enrollment repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// Enroll admits studentID into sectionID inside one SERIALIZABLE transaction.
// The student row and the section row are locked before the snapshot is read,
// so two concurrent attempts on the same section or by the same student are
// evaluated one after the other.
func (r *EnrollmentRepository) Enroll(ctx context.Context, studentID, sectionID string, admit AdmitFunc) (*models.Enrollment, error) {
	var created *models.Enrollment
	err := database.InTx(ctx, r.db, database.Serializable, func(tx *sqlx.Tx) error {
		var locked string
		if err := tx.GetContext(ctx, &locked, `SELECT id FROM student_profiles WHERE id = $1 FOR UPDATE`, studentID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrStudentProfileNotFound
			}
			return fmt.Errorf("lock student: %w", err)
		}

		snapshot := &models.AdmissionSnapshot{}
		if err := tx.GetContext(ctx, &snapshot.Section, `SELECT `+sectionColumns+` FROM course_sections WHERE id = $1 FOR UPDATE`, sectionID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrSectionNotFound
			}
			return fmt.Errorf("lock section: %w", err)
		}

		if err := tx.GetContext(ctx, &snapshot.SectionEnrolled, `SELECT COUNT(*) FROM enrollments WHERE section_id = $1 AND status = 'ENROLLED'`, sectionID); err != nil {
			return fmt.Errorf("count section enrollments: %w", err)
		}

		const activeQuery = `SELECT e.id AS enrollment_id, s.id AS section_id, c.id AS course_id, c.code AS course_code,
	s.day, s.start_time, s.end_time, s.session, s.semester, s.year
FROM enrollments e
JOIN course_sections s ON s.id = e.section_id
JOIN courses c ON c.id = s.course_id
WHERE e.student_id = $1 AND e.status = 'ENROLLED'`
		if err := tx.SelectContext(ctx, &snapshot.Active, activeQuery, studentID); err != nil {
			return fmt.Errorf("load active enrollments: %w", err)
		}

		var existing models.Enrollment
		err := tx.GetContext(ctx, &existing, `SELECT `+enrollmentColumns+` FROM enrollments WHERE student_id = $1 AND section_id = $2`, studentID, sectionID)
		switch {
		case err == nil:
			snapshot.ExistingInSection = &existing
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("load existing enrollment: %w", err)
		}

		if err := admit(snapshot); err != nil {
			return err
		}

		now := time.Now().UTC()
		enrollment := &models.Enrollment{
			ID:         uuid.NewString(),
			StudentID:  studentID,
			SectionID:  sectionID,
			Status:     models.EnrollmentStatusEnrolled,
			EnrolledAt: now,
			UpdatedAt:  now,
		}
		const insert = `INSERT INTO enrollments (id, student_id, section_id, status, enrolled_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`
		if _, err := tx.ExecContext(ctx, insert, enrollment.ID, enrollment.StudentID, enrollment.SectionID, enrollment.Status, enrollment.EnrolledAt, enrollment.UpdatedAt); err != nil {
			return fmt.Errorf("insert enrollment: %w", err)
		}
		created = enrollment
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// ChangeStatus locks the enrollment, lets transition validate the change and
// records the returned history row before the enrollment itself is updated.
func (r *EnrollmentRepository) ChangeStatus(ctx context.Context, id string, transition TransitionFunc) (*models.Enrollment, error) {
	var updated *models.Enrollment
	err := database.InTx(ctx, r.db, nil, func(tx *sqlx.Tx) error {
		var current models.Enrollment
		if err := tx.GetContext(ctx, &current, `SELECT `+enrollmentColumns+` FROM enrollments WHERE id = $1 FOR UPDATE`, id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return err
			}
			return fmt.Errorf("lock enrollment: %w", err)
		}

		history, err := transition(&current)
		if err != nil {
			return err
		}
		if history.ID == "" {
			history.ID = uuid.NewString()
		}
		if history.ChangedAt.IsZero() {
			history.ChangedAt = time.Now().UTC()
		}
		history.EnrollmentID = current.ID
		history.PreviousStatus = current.Status

		const insertHistory = `INSERT INTO enrollment_history (id, enrollment_id, previous_status, new_status, changed_by, reason, changed_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`
		if _, err := tx.ExecContext(ctx, insertHistory, history.ID, history.EnrollmentID, history.PreviousStatus, history.NewStatus, history.ChangedBy, history.Reason, history.ChangedAt); err != nil {
			return fmt.Errorf("insert enrollment history: %w", err)
		}

		current.Status = history.NewStatus
		current.UpdatedAt = history.ChangedAt
		if history.NewStatus == models.EnrollmentStatusDropped {
			droppedAt := history.ChangedAt
			current.DroppedAt = &droppedAt
		}
		const update = `UPDATE enrollments SET status = $2, dropped_at = $3, updated_at = $4 WHERE id = $1`
		if _, err := tx.ExecContext(ctx, update, current.ID, current.Status, current.DroppedAt, current.UpdatedAt); err != nil {
			return fmt.Errorf("update enrollment status: %w", err)
		}
		updated = &current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// FindByID returns an enrollment.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, `SELECT `+enrollmentColumns+` FROM enrollments WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find enrollment: %w", err)
	}
	return &enrollment, nil
}

// FindDetail returns an enrollment joined with its student and section.
func (r *EnrollmentRepository) FindDetail(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	var detail models.EnrollmentDetail
	if err := r.db.GetContext(ctx, &detail, enrollmentDetailSelect+` WHERE e.id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find enrollment detail: %w", err)
	}
	return &detail, nil
}

// List returns enrollments matching filter with total count.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	add := func(cond string, value interface{}) {
		args = append(args, value)
		where += fmt.Sprintf(" AND "+cond, len(args))
	}
	if filter.StudentID != "" {
		add("e.student_id = $%d", filter.StudentID)
	}
	if filter.SectionID != "" {
		add("e.section_id = $%d", filter.SectionID)
	}
	if filter.Status != "" {
		add("e.status = $%d", filter.Status)
	}
	if filter.Session != "" {
		add("s.session = $%d", filter.Session)
	}
	if filter.Semester != "" {
		add("s.semester = $%d", filter.Semester)
	}
	if filter.Year > 0 {
		add("s.year = $%d", filter.Year)
	}

	sortBy := sortColumn(filter.SortBy, "e.enrolled_at", map[string]bool{"e.enrolled_at": true, "c.code": true, "e.status": true})
	sortOrder := sortDirection(filter.SortOrder)
	pageSize, offset := pageWindow(filter.Page, filter.PageSize)

	var enrollments []models.EnrollmentDetail
	listQuery := fmt.Sprintf("%s%s ORDER BY %s %s LIMIT %d OFFSET %d", enrollmentDetailSelect, where, sortBy, sortOrder, pageSize, offset)
	if err := r.db.SelectContext(ctx, &enrollments, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM enrollments e JOIN course_sections s ON s.id = e.section_id` + where
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// History returns the status history of an enrollment, newest first.
func (r *EnrollmentRepository) History(ctx context.Context, enrollmentID string) ([]models.EnrollmentHistory, error) {
	const query = `SELECT id, enrollment_id, previous_status, new_status, changed_by, reason, changed_at FROM enrollment_history WHERE enrollment_id = $1 ORDER BY changed_at DESC`
	var history []models.EnrollmentHistory
	if err := r.db.SelectContext(ctx, &history, query, enrollmentID); err != nil {
		return nil, fmt.Errorf("list enrollment history: %w", err)
	}
	return history, nil
}

// Counters summarises the enrollments of a student by status.
func (r *EnrollmentRepository) Counters(ctx context.Context, studentID string) (*models.EnrollmentCounters, error) {
	const query = `SELECT
	COUNT(*) FILTER (WHERE status = 'ENROLLED') AS enrolled,
	COUNT(*) FILTER (WHERE status = 'COMPLETED') AS completed,
	COUNT(*) FILTER (WHERE status = 'DROPPED') AS dropped,
	COUNT(*) FILTER (WHERE status = 'FAILED') AS failed
FROM enrollments WHERE student_id = $1`
	var counters models.EnrollmentCounters
	if err := r.db.GetContext(ctx, &counters, query, studentID); err != nil {
		return nil, fmt.Errorf("count enrollments by status: %w", err)
	}
	return &counters, nil
}

// ListIDsBySection returns the ids of the enrollments of a section.
func (r *EnrollmentRepository) ListIDsBySection(ctx context.Context, sectionID string) ([]string, error) {
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, `SELECT id FROM enrollments WHERE section_id = $1 ORDER BY enrolled_at`, sectionID); err != nil {
		return nil, fmt.Errorf("list section enrollment ids: %w", err)
	}
	return ids, nil
}
