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

const (
	studentProfileColumns   = `id, user_id, student_number, department_id, current_year, enrollment_date, created_at`
	professorProfileColumns = `id, user_id, professor_number, department_id, specialization, hire_date, created_at`
	adminProfileColumns     = `id, user_id, admin_number, position, created_at`
)

type profileTable struct {
	table    string
	sequence string
}

var profileTables = map[models.ProfileKind]profileTable{
	models.ProfileStudent:   {table: "student_profiles", sequence: "student_number_seq"},
	models.ProfileProfessor: {table: "professor_profiles", sequence: "professor_number_seq"},
	models.ProfileAdmin:     {table: "admin_profiles", sequence: "admin_number_seq"},
}

// ProfileRepository manages the role specific profile tables.
type ProfileRepository struct {
	db *sqlx.DB
}

// NewProfileRepository constructs a profile repository.
func NewProfileRepository(db *sqlx.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// Get loads every profile stored for userID.
func (r *ProfileRepository) Get(ctx context.Context, userID string) (models.ProfileSet, error) {
	return loadProfiles(ctx, r.db, userID)
}

// FindStudentByUserID returns the student profile of a user.
func (r *ProfileRepository) FindStudentByUserID(ctx context.Context, userID string) (*models.StudentProfile, error) {
	var profile models.StudentProfile
	query := `SELECT ` + studentProfileColumns + ` FROM student_profiles WHERE user_id = $1`
	if err := r.db.GetContext(ctx, &profile, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find student profile: %w", err)
	}
	return &profile, nil
}

// FindStudentByID returns a student profile by its own id.
func (r *ProfileRepository) FindStudentByID(ctx context.Context, id string) (*models.StudentProfile, error) {
	var profile models.StudentProfile
	query := `SELECT ` + studentProfileColumns + ` FROM student_profiles WHERE id = $1`
	if err := r.db.GetContext(ctx, &profile, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find student profile by id: %w", err)
	}
	return &profile, nil
}

// FindStudentByNumber returns a student profile by student number.
func (r *ProfileRepository) FindStudentByNumber(ctx context.Context, number string) (*models.StudentProfile, error) {
	var profile models.StudentProfile
	query := `SELECT ` + studentProfileColumns + ` FROM student_profiles WHERE student_number = $1`
	if err := r.db.GetContext(ctx, &profile, query, number); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find student profile by number: %w", err)
	}
	return &profile, nil
}

// FindProfessorByUserID returns the professor profile of a user.
func (r *ProfileRepository) FindProfessorByUserID(ctx context.Context, userID string) (*models.ProfessorProfile, error) {
	var profile models.ProfessorProfile
	query := `SELECT ` + professorProfileColumns + ` FROM professor_profiles WHERE user_id = $1`
	if err := r.db.GetContext(ctx, &profile, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find professor profile: %w", err)
	}
	return &profile, nil
}

// UpdateStudent stores the academic attributes of a student profile.
func (r *ProfileRepository) UpdateStudent(ctx context.Context, profile *models.StudentProfile) error {
	const query = `UPDATE student_profiles SET department_id = :department_id, current_year = :current_year, enrollment_date = :enrollment_date WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, profile)
	if err != nil {
		return fmt.Errorf("update student profile: %w", err)
	}
	return expectAffected(res)
}

// UpdateProfessor stores the attributes of a professor profile.
func (r *ProfileRepository) UpdateProfessor(ctx context.Context, profile *models.ProfessorProfile) error {
	const query = `UPDATE professor_profiles SET department_id = :department_id, specialization = :specialization, hire_date = :hire_date WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, profile)
	if err != nil {
		return fmt.Errorf("update professor profile: %w", err)
	}
	return expectAffected(res)
}

// Reconcile makes keep the only profile of userID inside one transaction.
// The kept profile is created with a sequence-derived number when missing;
// every other profile kind is deleted. With keep == "" all profiles are
// removed. Calling it again is a no-op.
func (r *ProfileRepository) Reconcile(ctx context.Context, userID string, keep models.ProfileKind) (models.ProfileSet, error) {
	return r.reconcile(ctx, userID, keep, nil)
}

// ChangeRole stores user, whose role has changed, and reconciles its profiles
// in the same transaction. When reconciliation fails the stored role is left
// untouched.
func (r *ProfileRepository) ChangeRole(ctx context.Context, user *models.User, keep models.ProfileKind) (models.ProfileSet, error) {
	return r.reconcile(ctx, user.ID, keep, func(tx *sqlx.Tx) error {
		user.UpdatedAt = time.Now().UTC()
		res, err := tx.NamedExecContext(ctx, updateUserQuery, user)
		if err != nil {
			return fmt.Errorf("update user: %w", err)
		}
		return expectAffected(res)
	})
}

func (r *ProfileRepository) reconcile(ctx context.Context, userID string, keep models.ProfileKind, before database.TxFunc) (models.ProfileSet, error) {
	var result models.ProfileSet
	err := database.InTx(ctx, r.db, nil, func(tx *sqlx.Tx) error {
		// serialises concurrent reconciliations of the same user
		var locked string
		if err := tx.GetContext(ctx, &locked, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, userID); err != nil {
			return err
		}
		if before != nil {
			if err := before(tx); err != nil {
				return err
			}
		}

		if keep != "" {
			if err := ensureProfile(ctx, tx, userID, keep); err != nil {
				return err
			}
		}
		// enrollments, grades and transcripts of a removed student profile
		// go with it (ON DELETE CASCADE)
		for _, kind := range models.AllProfileKinds {
			if kind == keep {
				continue
			}
			query := fmt.Sprintf(`DELETE FROM %s WHERE user_id = $1`, profileTables[kind].table)
			if _, err := tx.ExecContext(ctx, query, userID); err != nil {
				return fmt.Errorf("delete %s: %w", profileTables[kind].table, err)
			}
		}

		set, err := loadProfiles(ctx, tx, userID)
		if err != nil {
			return err
		}
		result = set
		return nil
	})
	if err != nil {
		return models.ProfileSet{}, err
	}
	return result, nil
}

func ensureProfile(ctx context.Context, tx *sqlx.Tx, userID string, kind models.ProfileKind) error {
	meta := profileTables[kind]

	var exists bool
	existsQuery := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE user_id = $1)`, meta.table)
	if err := tx.GetContext(ctx, &exists, existsQuery, userID); err != nil {
		return fmt.Errorf("check %s: %w", meta.table, err)
	}
	if exists {
		return nil
	}

	var seq int64
	if err := tx.GetContext(ctx, &seq, fmt.Sprintf(`SELECT nextval('%s')`, meta.sequence)); err != nil {
		return fmt.Errorf("next %s: %w", meta.sequence, err)
	}
	number := models.DefaultProfileNumber(kind, seq)
	now := time.Now().UTC()

	var query string
	switch kind {
	case models.ProfileStudent:
		query = `INSERT INTO student_profiles (id, user_id, student_number, current_year, enrollment_date, created_at) VALUES ($1, $2, $3, 1, $4, $4)`
	case models.ProfileProfessor:
		query = `INSERT INTO professor_profiles (id, user_id, professor_number, specialization, hire_date, created_at) VALUES ($1, $2, $3, '', $4, $4)`
	case models.ProfileAdmin:
		query = `INSERT INTO admin_profiles (id, user_id, admin_number, position, created_at) VALUES ($1, $2, $3, '', $4)`
	default:
		return fmt.Errorf("unknown profile kind %q", kind)
	}
	if _, err := tx.ExecContext(ctx, query, uuid.NewString(), userID, number, now); err != nil {
		return fmt.Errorf("create %s: %w", meta.table, err)
	}
	return nil
}

func loadProfiles(ctx context.Context, q sqlx.QueryerContext, userID string) (models.ProfileSet, error) {
	var set models.ProfileSet

	var student models.StudentProfile
	err := sqlx.GetContext(ctx, q, &student, `SELECT `+studentProfileColumns+` FROM student_profiles WHERE user_id = $1`, userID)
	switch {
	case err == nil:
		set.Student = &student
	case !errors.Is(err, sql.ErrNoRows):
		return set, fmt.Errorf("load student profile: %w", err)
	}

	var professor models.ProfessorProfile
	err = sqlx.GetContext(ctx, q, &professor, `SELECT `+professorProfileColumns+` FROM professor_profiles WHERE user_id = $1`, userID)
	switch {
	case err == nil:
		set.Professor = &professor
	case !errors.Is(err, sql.ErrNoRows):
		return set, fmt.Errorf("load professor profile: %w", err)
	}

	var admin models.AdminProfile
	err = sqlx.GetContext(ctx, q, &admin, `SELECT `+adminProfileColumns+` FROM admin_profiles WHERE user_id = $1`, userID)
	switch {
	case err == nil:
		set.Admin = &admin
	case !errors.Is(err, sql.ErrNoRows):
		return set, fmt.Errorf("load admin profile: %w", err)
	}

	return set, nil
}
