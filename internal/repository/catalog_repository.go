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

const (
	departmentColumns = `id, code, name, description, head_id, created_at, updated_at`
	courseColumns     = `id, code, name, description, credits, year_level, department_id, active, created_at, updated_at`
	sectionColumns    = `id, course_id, section_number, professor_id, day, start_time, end_time, room, session, semester, year, max_students, is_open, created_at, updated_at`
)

const sectionDetailSelect = `SELECT s.id, s.course_id, s.section_number, s.professor_id, s.day, s.start_time, s.end_time, s.room, s.session, s.semester, s.year, s.max_students, s.is_open, s.created_at, s.updated_at,
	c.code AS course_code, c.name AS course_name, c.credits,
	NULLIF(TRIM(u.first_name || ' ' || u.last_name), '') AS professor_name,
	(SELECT COUNT(*) FROM enrollments e WHERE e.section_id = s.id AND e.status = 'ENROLLED') AS enrolled_count
FROM course_sections s
JOIN courses c ON c.id = s.course_id
LEFT JOIN professor_profiles p ON p.id = s.professor_id
LEFT JOIN users u ON u.id = p.user_id`

// CatalogRepository stores departments, courses, sections and prerequisites.
type CatalogRepository struct {
	db *sqlx.DB
}

// NewCatalogRepository constructs a catalog repository.
func NewCatalogRepository(db *sqlx.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// ListDepartments returns every department ordered by code.
func (r *CatalogRepository) ListDepartments(ctx context.Context) ([]models.Department, error) {
	var departments []models.Department
	if err := r.db.SelectContext(ctx, &departments, `SELECT `+departmentColumns+` FROM departments ORDER BY code`); err != nil {
		return nil, fmt.Errorf("list departments: %w", err)
	}
	return departments, nil
}

// FindDepartmentByID returns a department.
func (r *CatalogRepository) FindDepartmentByID(ctx context.Context, id string) (*models.Department, error) {
	var department models.Department
	if err := r.db.GetContext(ctx, &department, `SELECT `+departmentColumns+` FROM departments WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find department: %w", err)
	}
	return &department, nil
}

// CreateDepartment inserts a department.
func (r *CatalogRepository) CreateDepartment(ctx context.Context, department *models.Department) error {
	if department.ID == "" {
		department.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	department.CreatedAt = now
	department.UpdatedAt = now
	const query = `INSERT INTO departments (id, code, name, description, head_id, created_at, updated_at) VALUES (:id, :code, :name, :description, :head_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, department); err != nil {
		return fmt.Errorf("create department: %w", err)
	}
	return nil
}

// FindCourseByID returns a course.
func (r *CatalogRepository) FindCourseByID(ctx context.Context, id string) (*models.Course, error) {
	var course models.Course
	if err := r.db.GetContext(ctx, &course, `SELECT `+courseColumns+` FROM courses WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find course: %w", err)
	}
	return &course, nil
}

// FindCourseByCode returns a course by its catalog code.
func (r *CatalogRepository) FindCourseByCode(ctx context.Context, code string) (*models.Course, error) {
	var course models.Course
	if err := r.db.GetContext(ctx, &course, `SELECT `+courseColumns+` FROM courses WHERE UPPER(code) = UPPER($1)`, code); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find course by code: %w", err)
	}
	return &course, nil
}

// ListCourses returns catalog entries matching filter with total count.
func (r *CatalogRepository) ListCourses(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	baseQuery := `FROM courses WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.DepartmentID != "" {
		conditions = append(conditions, fmt.Sprintf("department_id = $%d", len(args)+1))
		args = append(args, filter.DepartmentID)
	}
	if filter.YearLevel > 0 {
		conditions = append(conditions, fmt.Sprintf("year_level = $%d", len(args)+1))
		args = append(args, filter.YearLevel)
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(code) LIKE $%d OR LOWER(name) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := sortColumn(filter.SortBy, "code", map[string]bool{"code": true, "name": true, "year_level": true, "created_at": true})
	sortOrder := "ASC"
	if filter.SortOrder != "" {
		sortOrder = sortDirection(filter.SortOrder)
	}
	pageSize, offset := pageWindow(filter.Page, filter.PageSize)

	var courses []models.Course
	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", courseColumns, baseQuery, sortBy, sortOrder, pageSize, offset)
	if err := r.db.SelectContext(ctx, &courses, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list courses: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+baseQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count courses: %w", err)
	}
	return courses, total, nil
}

// CreateCourse inserts a course.
func (r *CatalogRepository) CreateCourse(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	course.CreatedAt = now
	course.UpdatedAt = now
	const query = `INSERT INTO courses (id, code, name, description, credits, year_level, department_id, active, created_at, updated_at) VALUES (:id, :code, :name, :description, :credits, :year_level, :department_id, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("create course: %w", err)
	}
	return nil
}

// UpdateCourse stores the mutable course fields.
func (r *CatalogRepository) UpdateCourse(ctx context.Context, course *models.Course) error {
	course.UpdatedAt = time.Now().UTC()
	const query = `UPDATE courses SET name = :name, description = :description, credits = :credits, year_level = :year_level, department_id = :department_id, active = :active, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, course)
	if err != nil {
		return fmt.Errorf("update course: %w", err)
	}
	return expectAffected(res)
}

// FindSectionByID returns a section.
func (r *CatalogRepository) FindSectionByID(ctx context.Context, id string) (*models.CourseSection, error) {
	var section models.CourseSection
	if err := r.db.GetContext(ctx, &section, `SELECT `+sectionColumns+` FROM course_sections WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find section: %w", err)
	}
	return &section, nil
}

// FindSectionDetail returns a section with course info and occupancy.
func (r *CatalogRepository) FindSectionDetail(ctx context.Context, id string) (*models.SectionDetail, error) {
	var detail models.SectionDetail
	if err := r.db.GetContext(ctx, &detail, sectionDetailSelect+` WHERE s.id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find section detail: %w", err)
	}
	return &detail, nil
}

// FindSectionByKey looks a section up by its natural key.
func (r *CatalogRepository) FindSectionByKey(ctx context.Context, courseID, sectionNumber string, session models.Session, semester models.Semester, year int) (*models.CourseSection, error) {
	var section models.CourseSection
	query := `SELECT ` + sectionColumns + ` FROM course_sections WHERE course_id = $1 AND section_number = $2 AND session = $3 AND semester = $4 AND year = $5`
	if err := r.db.GetContext(ctx, &section, query, courseID, sectionNumber, session, semester, year); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find section by key: %w", err)
	}
	return &section, nil
}

// ListSections returns sections matching filter with total count.
func (r *CatalogRepository) ListSections(ctx context.Context, filter models.SectionFilter) ([]models.SectionDetail, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	add := func(cond string, value interface{}) {
		args = append(args, value)
		where += fmt.Sprintf(" AND "+cond, len(args))
	}
	if filter.CourseID != "" {
		add("s.course_id = $%d", filter.CourseID)
	}
	if filter.ProfessorID != "" {
		add("s.professor_id = $%d", filter.ProfessorID)
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
	if filter.OpenOnly {
		where += " AND s.is_open = TRUE"
	}
	pageSize, offset := pageWindow(filter.Page, filter.PageSize)

	var sections []models.SectionDetail
	listQuery := fmt.Sprintf("%s%s ORDER BY s.year DESC, s.semester, c.code, s.section_number LIMIT %d OFFSET %d", sectionDetailSelect, where, pageSize, offset)
	if err := r.db.SelectContext(ctx, &sections, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list sections: %w", err)
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM course_sections s" + where
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count sections: %w", err)
	}
	return sections, total, nil
}

// AvailableSections lists open sections of active courses at yearLevel, in
// the given department when set, excluding courses the student is ENROLLED in.
func (r *CatalogRepository) AvailableSections(ctx context.Context, studentID string, yearLevel int, departmentID *string) ([]models.SectionDetail, error) {
	query := sectionDetailSelect + `
WHERE s.is_open = TRUE AND c.active = TRUE AND c.year_level = $2
	AND ($3::uuid IS NULL OR c.department_id = $3::uuid)
	AND NOT EXISTS (
		SELECT 1 FROM enrollments e2
		JOIN course_sections s2 ON s2.id = e2.section_id
		WHERE e2.student_id = $1 AND e2.status = 'ENROLLED' AND s2.course_id = s.course_id
	)
ORDER BY c.code, s.section_number`
	var sections []models.SectionDetail
	if err := r.db.SelectContext(ctx, &sections, query, studentID, yearLevel, departmentID); err != nil {
		return nil, fmt.Errorf("available sections: %w", err)
	}
	return sections, nil
}

// CreateSection inserts a section.
func (r *CatalogRepository) CreateSection(ctx context.Context, section *models.CourseSection) error {
	if section.ID == "" {
		section.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	section.CreatedAt = now
	section.UpdatedAt = now
	const query = `INSERT INTO course_sections (id, course_id, section_number, professor_id, day, start_time, end_time, room, session, semester, year, max_students, is_open, created_at, updated_at) VALUES (:id, :course_id, :section_number, :professor_id, :day, :start_time, :end_time, :room, :session, :semester, :year, :max_students, :is_open, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, section); err != nil {
		return fmt.Errorf("create section: %w", err)
	}
	return nil
}

// UpdateSection stores the mutable section fields.
func (r *CatalogRepository) UpdateSection(ctx context.Context, section *models.CourseSection) error {
	section.UpdatedAt = time.Now().UTC()
	const query = `UPDATE course_sections SET professor_id = :professor_id, day = :day, start_time = :start_time, end_time = :end_time, room = :room, max_students = :max_students, is_open = :is_open, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, section)
	if err != nil {
		return fmt.Errorf("update section: %w", err)
	}
	return expectAffected(res)
}

// ListPrerequisiteEdges returns every prerequisite edge of the catalog.
func (r *CatalogRepository) ListPrerequisiteEdges(ctx context.Context) ([]models.Prerequisite, error) {
	var edges []models.Prerequisite
	if err := r.db.SelectContext(ctx, &edges, `SELECT id, course_id, prerequisite_course_id, created_at FROM prerequisites`); err != nil {
		return nil, fmt.Errorf("list prerequisite edges: %w", err)
	}
	return edges, nil
}

// ListPrerequisites returns the courses required by courseID.
func (r *CatalogRepository) ListPrerequisites(ctx context.Context, courseID string) ([]models.Course, error) {
	query := `SELECT c.id, c.code, c.name, c.description, c.credits, c.year_level, c.department_id, c.active, c.created_at, c.updated_at
FROM prerequisites p JOIN courses c ON c.id = p.prerequisite_course_id
WHERE p.course_id = $1 ORDER BY c.code`
	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query, courseID); err != nil {
		return nil, fmt.Errorf("list prerequisites: %w", err)
	}
	return courses, nil
}

// AddPrerequisite inserts an edge.
func (r *CatalogRepository) AddPrerequisite(ctx context.Context, edge *models.Prerequisite) error {
	if edge.ID == "" {
		edge.ID = uuid.NewString()
	}
	edge.CreatedAt = time.Now().UTC()
	const query = `INSERT INTO prerequisites (id, course_id, prerequisite_course_id, created_at) VALUES (:id, :course_id, :prerequisite_course_id, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, edge); err != nil {
		return fmt.Errorf("add prerequisite: %w", err)
	}
	return nil
}

// RemovePrerequisite deletes an edge.
func (r *CatalogRepository) RemovePrerequisite(ctx context.Context, courseID, prerequisiteID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM prerequisites WHERE course_id = $1 AND prerequisite_course_id = $2`, courseID, prerequisiteID)
	if err != nil {
		return fmt.Errorf("remove prerequisite: %w", err)
	}
	return expectAffected(res)
}
