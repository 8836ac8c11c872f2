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

const gradeColumns = `id, enrollment_id, midterm_exam, final_exam, assignments, participation, project, final_grade, letter_grade, comments, graded_by, created_at, updated_at`

const gradeDetailSelect = `SELECT g.id, g.enrollment_id, g.midterm_exam, g.final_exam, g.assignments, g.participation, g.project, g.final_grade, g.letter_grade, g.comments, g.graded_by, g.created_at, g.updated_at,
	sp.id AS student_id, u.id AS student_user_id, u.email AS student_email, TRIM(u.first_name || ' ' || u.last_name) AS student_name,
	e.section_id, c.code AS course_code, c.name AS course_name, e.status AS enrollment_status
FROM grades g
JOIN enrollments e ON e.id = g.enrollment_id
JOIN student_profiles sp ON sp.id = e.student_id
JOIN users u ON u.id = sp.user_id
JOIN course_sections s ON s.id = e.section_id
JOIN courses c ON c.id = s.course_id`

// GradeMutator applies a write to the locked grade sheet of an enrollment in
// status and returns the component changes to record.
type GradeMutator func(grade *models.Grade, status models.EnrollmentStatus) ([]models.GradeHistory, error)

// GradeRepository persists grade sheets and their component history.
type GradeRepository struct {
	db *sqlx.DB
}

// NewGradeRepository creates a new grade repository.
func NewGradeRepository(db *sqlx.DB) *GradeRepository {
	return &GradeRepository{db: db}
}

// Upsert locks the enrollment and its grade sheet, lets mutate apply the
// change and stores the sheet together with its history rows. A sheet is
// created on the first write.
func (r *GradeRepository) Upsert(ctx context.Context, enrollmentID string, mutate GradeMutator) (*models.Grade, error) {
	var saved *models.Grade
	err := database.InTx(ctx, r.db, nil, func(tx *sqlx.Tx) error {
		var status models.EnrollmentStatus
		if err := tx.GetContext(ctx, &status, `SELECT status FROM enrollments WHERE id = $1 FOR UPDATE`, enrollmentID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return err
			}
			return fmt.Errorf("lock enrollment: %w", err)
		}

		grade := &models.Grade{}
		err := tx.GetContext(ctx, grade, `SELECT `+gradeColumns+` FROM grades WHERE enrollment_id = $1 FOR UPDATE`, enrollmentID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			now := time.Now().UTC()
			grade = &models.Grade{ID: uuid.NewString(), EnrollmentID: enrollmentID, CreatedAt: now}
		case err != nil:
			return fmt.Errorf("lock grade: %w", err)
		}

		history, err := mutate(grade, status)
		if err != nil {
			return err
		}
		grade.UpdatedAt = time.Now().UTC()

		const upsert = `INSERT INTO grades (id, enrollment_id, midterm_exam, final_exam, assignments, participation, project, final_grade, letter_grade, comments, graded_by, created_at, updated_at)
VALUES (:id, :enrollment_id, :midterm_exam, :final_exam, :assignments, :participation, :project, :final_grade, :letter_grade, :comments, :graded_by, :created_at, :updated_at)
ON CONFLICT (enrollment_id) DO UPDATE SET
	midterm_exam = EXCLUDED.midterm_exam,
	final_exam = EXCLUDED.final_exam,
	assignments = EXCLUDED.assignments,
	participation = EXCLUDED.participation,
	project = EXCLUDED.project,
	final_grade = EXCLUDED.final_grade,
	letter_grade = EXCLUDED.letter_grade,
	comments = EXCLUDED.comments,
	graded_by = EXCLUDED.graded_by,
	updated_at = EXCLUDED.updated_at`
		if _, err := tx.NamedExecContext(ctx, upsert, grade); err != nil {
			return fmt.Errorf("upsert grade: %w", err)
		}

		if err := insertGradeHistory(ctx, tx, grade.ID, history); err != nil {
			return err
		}
		saved = grade
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func insertGradeHistory(ctx context.Context, tx *sqlx.Tx, gradeID string, history []models.GradeHistory) error {
	const query = `INSERT INTO grade_history (id, grade_id, component, old_value, new_value, modified_by, reason, modified_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	for i := range history {
		entry := &history[i]
		if entry.ID == "" {
			entry.ID = uuid.NewString()
		}
		if entry.ModifiedAt.IsZero() {
			entry.ModifiedAt = time.Now().UTC()
		}
		entry.GradeID = gradeID
		if _, err := tx.ExecContext(ctx, query, entry.ID, entry.GradeID, entry.Component, entry.OldValue, entry.NewValue, entry.ModifiedBy, entry.Reason, entry.ModifiedAt); err != nil {
			return fmt.Errorf("insert grade history: %w", err)
		}
	}
	return nil
}

// Recalculate locks one grade sheet and stores the derived fields computed by
// derive. It reports whether they changed.
func (r *GradeRepository) Recalculate(ctx context.Context, gradeID string, derive func(grade *models.Grade)) (bool, error) {
	changed := false
	err := database.InTx(ctx, r.db, nil, func(tx *sqlx.Tx) error {
		var grade models.Grade
		if err := tx.GetContext(ctx, &grade, `SELECT `+gradeColumns+` FROM grades WHERE id = $1 FOR UPDATE`, gradeID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return err
			}
			return fmt.Errorf("lock grade: %w", err)
		}
		previousFinal, previousLetter := grade.FinalGrade, grade.LetterGrade
		derive(&grade)
		if sameScore(previousFinal, grade.FinalGrade) && previousLetter == grade.LetterGrade {
			return nil
		}
		const update = `UPDATE grades SET final_grade = $2, letter_grade = $3, updated_at = $4 WHERE id = $1`
		if _, err := tx.ExecContext(ctx, update, grade.ID, grade.FinalGrade, grade.LetterGrade, time.Now().UTC()); err != nil {
			return fmt.Errorf("update derived grade: %w", err)
		}
		changed = true
		return nil
	})
	return changed, err
}

func sameScore(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// ListIDs returns the ids of every grade sheet, or of one section when
// sectionID is set.
func (r *GradeRepository) ListIDs(ctx context.Context, sectionID string) ([]string, error) {
	query := `SELECT g.id FROM grades g`
	var args []interface{}
	if sectionID != "" {
		query += ` JOIN enrollments e ON e.id = g.enrollment_id WHERE e.section_id = $1`
		args = append(args, sectionID)
	}
	query += ` ORDER BY g.created_at`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, args...); err != nil {
		return nil, fmt.Errorf("list grade ids: %w", err)
	}
	return ids, nil
}

// FindDetailByEnrollment returns the grade sheet of an enrollment with its
// context.
func (r *GradeRepository) FindDetailByEnrollment(ctx context.Context, enrollmentID string) (*models.GradeDetail, error) {
	var detail models.GradeDetail
	if err := r.db.GetContext(ctx, &detail, gradeDetailSelect+` WHERE g.enrollment_id = $1`, enrollmentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find grade: %w", err)
	}
	return &detail, nil
}

// ListBySection returns every grade sheet of a section ordered by student.
func (r *GradeRepository) ListBySection(ctx context.Context, sectionID string) ([]models.GradeDetail, error) {
	var grades []models.GradeDetail
	if err := r.db.SelectContext(ctx, &grades, gradeDetailSelect+` WHERE e.section_id = $1 ORDER BY u.last_name, u.first_name`, sectionID); err != nil {
		return nil, fmt.Errorf("list section grades: %w", err)
	}
	return grades, nil
}

// ListByStudent returns every grade sheet of a student.
func (r *GradeRepository) ListByStudent(ctx context.Context, studentID string) ([]models.GradeDetail, error) {
	var grades []models.GradeDetail
	if err := r.db.SelectContext(ctx, &grades, gradeDetailSelect+` WHERE e.student_id = $1 ORDER BY s.year DESC, s.semester, c.code`, studentID); err != nil {
		return nil, fmt.Errorf("list student grades: %w", err)
	}
	return grades, nil
}

// SectionFinals returns the non-null final grades of a section.
func (r *GradeRepository) SectionFinals(ctx context.Context, sectionID string) ([]float64, error) {
	const query = `SELECT g.final_grade FROM grades g JOIN enrollments e ON e.id = g.enrollment_id WHERE e.section_id = $1 AND g.final_grade IS NOT NULL`
	var finals []float64
	if err := r.db.SelectContext(ctx, &finals, query, sectionID); err != nil {
		return nil, fmt.Errorf("list section finals: %w", err)
	}
	return finals, nil
}

// History returns the component history of a grade sheet, newest first.
func (r *GradeRepository) History(ctx context.Context, gradeID string) ([]models.GradeHistory, error) {
	const query = `SELECT id, grade_id, component, old_value, new_value, modified_by, reason, modified_at FROM grade_history WHERE grade_id = $1 ORDER BY modified_at DESC`
	var history []models.GradeHistory
	if err := r.db.SelectContext(ctx, &history, query, gradeID); err != nil {
		return nil, fmt.Errorf("list grade history: %w", err)
	}
	return history, nil
}

// GradedCourses returns the enrollments of a student in one term with their
// course credits and final grade, graded or not.
func (r *GradeRepository) GradedCourses(ctx context.Context, studentID string, semester models.Semester, year int) ([]models.GradedCourse, error) {
	const query = `SELECT e.id AS enrollment_id, c.code AS course_code, c.name AS course_name, c.credits, e.status, s.semester, s.year,
	g.final_grade, COALESCE(g.letter_grade, '') AS letter_grade
FROM enrollments e
JOIN course_sections s ON s.id = e.section_id
JOIN courses c ON c.id = s.course_id
LEFT JOIN grades g ON g.enrollment_id = e.id
WHERE e.student_id = $1 AND s.semester = $2 AND s.year = $3
ORDER BY c.code`
	var courses []models.GradedCourse
	if err := r.db.SelectContext(ctx, &courses, query, studentID, semester, year); err != nil {
		return nil, fmt.Errorf("list graded courses: %w", err)
	}
	return courses, nil
}
