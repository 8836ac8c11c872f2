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
)

const transcriptColumns = `id, student_id, semester, year, gpa, credits_attempted, credits_earned, generated_at`

// StudentTerm identifies one term a student was enrolled in.
type StudentTerm struct {
	StudentID string          `db:"student_id"`
	Semester  models.Semester `db:"semester"`
	Year      int             `db:"year"`
}

// TranscriptRepository stores the per-term GPA aggregates.
type TranscriptRepository struct {
	db *sqlx.DB
}

// NewTranscriptRepository constructs a transcript repository.
func NewTranscriptRepository(db *sqlx.DB) *TranscriptRepository {
	return &TranscriptRepository{db: db}
}

// Upsert writes the transcript of a student term, replacing a previous one.
func (r *TranscriptRepository) Upsert(ctx context.Context, transcript *models.Transcript) error {
	if transcript.ID == "" {
		transcript.ID = uuid.NewString()
	}
	transcript.GeneratedAt = time.Now().UTC()
	const query = `INSERT INTO transcripts (id, student_id, semester, year, gpa, credits_attempted, credits_earned, generated_at)
VALUES (:id, :student_id, :semester, :year, :gpa, :credits_attempted, :credits_earned, :generated_at)
ON CONFLICT (student_id, semester, year) DO UPDATE SET
	gpa = EXCLUDED.gpa,
	credits_attempted = EXCLUDED.credits_attempted,
	credits_earned = EXCLUDED.credits_earned,
	generated_at = EXCLUDED.generated_at
RETURNING id`
	rows, err := r.db.NamedQueryContext(ctx, query, transcript)
	if err != nil {
		return fmt.Errorf("upsert transcript: %w", err)
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&transcript.ID); err != nil {
			return fmt.Errorf("scan transcript id: %w", err)
		}
	}
	return rows.Err()
}

// Find returns the transcript of one student term.
func (r *TranscriptRepository) Find(ctx context.Context, studentID string, semester models.Semester, year int) (*models.Transcript, error) {
	var transcript models.Transcript
	query := `SELECT ` + transcriptColumns + ` FROM transcripts WHERE student_id = $1 AND semester = $2 AND year = $3`
	if err := r.db.GetContext(ctx, &transcript, query, studentID, semester, year); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find transcript: %w", err)
	}
	return &transcript, nil
}

// ListByStudent returns every transcript of a student, latest term first.
func (r *TranscriptRepository) ListByStudent(ctx context.Context, studentID string) ([]models.Transcript, error) {
	var transcripts []models.Transcript
	query := `SELECT ` + transcriptColumns + ` FROM transcripts WHERE student_id = $1 ORDER BY year DESC, semester`
	if err := r.db.SelectContext(ctx, &transcripts, query, studentID); err != nil {
		return nil, fmt.Errorf("list transcripts: %w", err)
	}
	return transcripts, nil
}

// ListTerms returns the distinct student terms having enrollments, optionally
// restricted to one term.
func (r *TranscriptRepository) ListTerms(ctx context.Context, semester models.Semester, year int) ([]StudentTerm, error) {
	query := `SELECT DISTINCT e.student_id, s.semester, s.year FROM enrollments e JOIN course_sections s ON s.id = e.section_id WHERE 1=1`
	var args []interface{}
	if semester != "" {
		args = append(args, semester)
		query += fmt.Sprintf(" AND s.semester = $%d", len(args))
	}
	if year > 0 {
		args = append(args, year)
		query += fmt.Sprintf(" AND s.year = $%d", len(args))
	}
	query += ` ORDER BY e.student_id, s.year, s.semester`
	var terms []StudentTerm
	if err := r.db.SelectContext(ctx, &terms, query, args...); err != nil {
		return nil, fmt.Errorf("list student terms: %w", err)
	}
	return terms, nil
}
