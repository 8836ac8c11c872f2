package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/fasch-registrar-api/internal/models"
)

const candidatureColumns = `id, first_name, last_name, email, phone, department_id, motivation_letter, accepted_terms, status, submitted_at, reviewed_by, review_note, created_at, updated_at`

// CandidatureRepository stores admission applications.
type CandidatureRepository struct {
	db *sqlx.DB
}

// NewCandidatureRepository constructs a candidature repository.
func NewCandidatureRepository(db *sqlx.DB) *CandidatureRepository {
	return &CandidatureRepository{db: db}
}

// Create inserts a candidature.
func (r *CandidatureRepository) Create(ctx context.Context, c *models.Candidature) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	const query = `INSERT INTO candidatures (` + candidatureColumns + `) VALUES (:id, :first_name, :last_name, :email, :phone, :department_id, :motivation_letter, :accepted_terms, :status, :submitted_at, :reviewed_by, :review_note, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, c); err != nil {
		return fmt.Errorf("create candidature: %w", err)
	}
	return nil
}

// Update stores every mutable field of a candidature.
func (r *CandidatureRepository) Update(ctx context.Context, c *models.Candidature) error {
	c.UpdatedAt = time.Now().UTC()
	const query = `UPDATE candidatures SET first_name = :first_name, last_name = :last_name, email = :email, phone = :phone, department_id = :department_id,
	motivation_letter = :motivation_letter, accepted_terms = :accepted_terms, status = :status, submitted_at = :submitted_at,
	reviewed_by = :reviewed_by, review_note = :review_note, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, c)
	if err != nil {
		return fmt.Errorf("update candidature: %w", err)
	}
	return expectAffected(res)
}

// FindByID returns a candidature.
func (r *CandidatureRepository) FindByID(ctx context.Context, id string) (*models.Candidature, error) {
	var c models.Candidature
	if err := r.db.GetContext(ctx, &c, `SELECT `+candidatureColumns+` FROM candidatures WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find candidature: %w", err)
	}
	return &c, nil
}

// List returns candidatures matching filter with total count.
func (r *CandidatureRepository) List(ctx context.Context, filter models.CandidatureFilter) ([]models.Candidature, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.DepartmentID != "" {
		args = append(args, filter.DepartmentID)
		where += fmt.Sprintf(" AND department_id = $%d", len(args))
	}
	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		where += fmt.Sprintf(" AND (LOWER(first_name) LIKE $%d OR LOWER(last_name) LIKE $%d OR LOWER(email) LIKE $%d)", len(args), len(args), len(args))
	}
	pageSize, offset := pageWindow(filter.Page, filter.PageSize)

	var items []models.Candidature
	query := fmt.Sprintf(`SELECT %s FROM candidatures%s ORDER BY created_at DESC LIMIT %d OFFSET %d`, candidatureColumns, where, pageSize, offset)
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list candidatures: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM candidatures`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count candidatures: %w", err)
	}
	return items, total, nil
}
