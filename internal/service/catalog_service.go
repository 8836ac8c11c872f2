package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/fasch-registrar-api/internal/dto"
	"github.com/noah-isme/fasch-registrar-api/internal/models"
	appErrors "github.com/noah-isme/fasch-registrar-api/pkg/errors"
	"github.com/noah-isme/fasch-registrar-api/pkg/validation"
)

type catalogStore interface {
	ListDepartments(ctx context.Context) ([]models.Department, error)
	FindDepartmentByID(ctx context.Context, id string) (*models.Department, error)
	CreateDepartment(ctx context.Context, department *models.Department) error
	FindCourseByID(ctx context.Context, id string) (*models.Course, error)
	FindCourseByCode(ctx context.Context, code string) (*models.Course, error)
	ListCourses(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error)
	CreateCourse(ctx context.Context, course *models.Course) error
	UpdateCourse(ctx context.Context, course *models.Course) error
	FindSectionByID(ctx context.Context, id string) (*models.CourseSection, error)
	FindSectionDetail(ctx context.Context, id string) (*models.SectionDetail, error)
	FindSectionByKey(ctx context.Context, courseID, sectionNumber string, session models.Session, semester models.Semester, year int) (*models.CourseSection, error)
	ListSections(ctx context.Context, filter models.SectionFilter) ([]models.SectionDetail, int, error)
	AvailableSections(ctx context.Context, studentID string, yearLevel int, departmentID *string) ([]models.SectionDetail, error)
	CreateSection(ctx context.Context, section *models.CourseSection) error
	UpdateSection(ctx context.Context, section *models.CourseSection) error
	ListPrerequisiteEdges(ctx context.Context) ([]models.Prerequisite, error)
	ListPrerequisites(ctx context.Context, courseID string) ([]models.Course, error)
	AddPrerequisite(ctx context.Context, edge *models.Prerequisite) error
	RemovePrerequisite(ctx context.Context, courseID, prerequisiteID string) error
}

// CatalogService manages departments, courses, sections and prerequisites.
type CatalogService struct {
	repo      catalogStore
	students  studentProfileReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCatalogService constructs CatalogService.
func NewCatalogService(repo catalogStore, students studentProfileReader, validate *validator.Validate, logger *zap.Logger) *CatalogService {
	if validate == nil {
		validate = validation.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogService{repo: repo, students: students, validator: validate, logger: logger}
}

// ListDepartments returns all departments.
func (s *CatalogService) ListDepartments(ctx context.Context) ([]models.Department, error) {
	departments, err := s.repo.ListDepartments(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list departments")
	}
	return departments, nil
}

// CreateDepartment adds a department.
func (s *CatalogService) CreateDepartment(ctx context.Context, req dto.CreateDepartmentRequest) (*models.Department, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.FromValidation(err, "invalid department payload")
	}
	department := &models.Department{
		ID:          uuid.NewString(),
		Code:        req.Code,
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		HeadID:      req.HeadID,
	}
	if err := s.repo.CreateDepartment(ctx, department); err != nil {
		return nil, mapWriteError(err, "failed to create department")
	}
	return department, nil
}

// ListCourses returns paginated catalog entries.
func (s *CatalogService) ListCourses(ctx context.Context, filter models.CourseFilter) ([]models.Course, *models.Pagination, error) {
	courses, total, err := s.repo.ListCourses(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	return courses, paginate(filter.Page, filter.PageSize, total), nil
}

// GetCourse returns a course.
func (s *CatalogService) GetCourse(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.repo.FindCourseByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

// CreateCourse adds a course. Codes are stored upper case and must be unique.
func (s *CatalogService) CreateCourse(ctx context.Context, req dto.CreateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.FromValidation(err, "invalid course payload")
	}
	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if _, err := s.repo.FindCourseByCode(ctx, code); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "course code already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check course code")
	}
	course := &models.Course{
		ID:           uuid.NewString(),
		Code:         code,
		Name:         strings.TrimSpace(req.Name),
		Description:  req.Description,
		Credits:      req.Credits,
		YearLevel:    req.YearLevel,
		DepartmentID: req.DepartmentID,
		Active:       true,
	}
	if err := s.repo.CreateCourse(ctx, course); err != nil {
		return nil, mapWriteError(err, "failed to create course")
	}
	return course, nil
}

// UpdateCourse applies optional course changes.
func (s *CatalogService) UpdateCourse(ctx context.Context, id string, req dto.UpdateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.FromValidation(err, "invalid course payload")
	}
	course, err := s.GetCourse(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		course.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		course.Description = *req.Description
	}
	if req.Credits != nil {
		course.Credits = *req.Credits
	}
	if req.YearLevel != nil {
		course.YearLevel = *req.YearLevel
	}
	if req.DepartmentID != nil {
		course.DepartmentID = req.DepartmentID
	}
	if req.Active != nil {
		course.Active = *req.Active
	}
	if err := s.repo.UpdateCourse(ctx, course); err != nil {
		return nil, mapWriteError(err, "failed to update course")
	}
	return course, nil
}

// GetSection returns a section with its course and occupancy.
func (s *CatalogService) GetSection(ctx context.Context, id string) (*models.SectionDetail, error) {
	section, err := s.repo.FindSectionDetail(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}
	return section, nil
}

// ListSections returns paginated sections.
func (s *CatalogService) ListSections(ctx context.Context, filter models.SectionFilter) ([]models.SectionDetail, *models.Pagination, error) {
	sections, total, err := s.repo.ListSections(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sections")
	}
	return sections, paginate(filter.Page, filter.PageSize, total), nil
}

// CreateSection schedules a section of a course.
func (s *CatalogService) CreateSection(ctx context.Context, req dto.CreateSectionRequest) (*models.CourseSection, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.FromValidation(err, "invalid section payload")
	}
	if err := validateTimes(req.StartTime, req.EndTime); err != nil {
		return nil, err
	}
	if _, err := s.GetCourse(ctx, req.CourseID); err != nil {
		return nil, err
	}
	if _, err := s.repo.FindSectionByKey(ctx, req.CourseID, req.SectionNumber, req.Session, req.Semester, req.Year); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "section already exists for this course and term")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check section key")
	}

	section := &models.CourseSection{
		ID:            uuid.NewString(),
		CourseID:      req.CourseID,
		SectionNumber: strings.TrimSpace(req.SectionNumber),
		ProfessorID:   req.ProfessorID,
		Day:           req.Day,
		StartTime:     req.StartTime,
		EndTime:       req.EndTime,
		Room:          req.Room,
		Session:       req.Session,
		Semester:      req.Semester,
		Year:          req.Year,
		MaxStudents:   req.MaxStudents,
		IsOpen:        true,
	}
	if section.MaxStudents == 0 {
		section.MaxStudents = models.DefaultMaxStudents
	}
	if req.IsOpen != nil {
		section.IsOpen = *req.IsOpen
	}
	if err := s.repo.CreateSection(ctx, section); err != nil {
		return nil, mapWriteError(err, "failed to create section")
	}
	return section, nil
}

// UpdateSection applies optional section changes.
func (s *CatalogService) UpdateSection(ctx context.Context, id string, req dto.UpdateSectionRequest) (*models.CourseSection, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.FromValidation(err, "invalid section payload")
	}
	section, err := s.repo.FindSectionByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}
	if req.ProfessorID != nil {
		section.ProfessorID = req.ProfessorID
	}
	if req.Day != nil {
		section.Day = *req.Day
	}
	if req.StartTime != nil {
		section.StartTime = *req.StartTime
	}
	if req.EndTime != nil {
		section.EndTime = *req.EndTime
	}
	if req.Room != nil {
		section.Room = *req.Room
	}
	if req.MaxStudents != nil {
		section.MaxStudents = *req.MaxStudents
	}
	if req.IsOpen != nil {
		section.IsOpen = *req.IsOpen
	}
	if err := validateTimes(section.StartTime, section.EndTime); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateSection(ctx, section); err != nil {
		return nil, mapWriteError(err, "failed to update section")
	}
	return section, nil
}

func validateTimes(start, end models.ClockTime) error {
	if start >= end {
		return appErrors.Validation("invalid meeting time", map[string]string{"end_time": "must be after start_time"})
	}
	return nil
}

// AvailableSections lists the open sections a student may enroll in: their
// year level, their department (when assigned), courses they are not already
// taking.
func (s *CatalogService) AvailableSections(ctx context.Context, actor Actor) ([]models.SectionDetail, error) {
	profile, err := s.students.FindStudentByUserID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "student profile required")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student profile")
	}
	sections, err := s.repo.AvailableSections(ctx, profile.ID, profile.CurrentYear, profile.DepartmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list available sections")
	}
	return sections, nil
}

// Prerequisites returns the direct prerequisites of a course.
func (s *CatalogService) Prerequisites(ctx context.Context, courseID string) ([]models.Course, error) {
	courses, err := s.repo.ListPrerequisites(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list prerequisites")
	}
	return courses, nil
}

// AddPrerequisite records that courseID requires the given course. Self loops
// and edges closing a cycle are rejected.
func (s *CatalogService) AddPrerequisite(ctx context.Context, courseID string, req dto.PrerequisiteRequest) (*models.Prerequisite, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.FromValidation(err, "invalid prerequisite payload")
	}
	if courseID == req.PrerequisiteCourseID {
		return nil, appErrors.Clone(appErrors.ErrSelfPrerequisite, "")
	}
	for _, id := range []string{courseID, req.PrerequisiteCourseID} {
		if _, err := s.GetCourse(ctx, id); err != nil {
			return nil, err
		}
	}

	edges, err := s.repo.ListPrerequisiteEdges(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load prerequisites")
	}
	if reaches(edges, req.PrerequisiteCourseID, courseID) {
		return nil, appErrors.Clone(appErrors.ErrCircularPrerequisite, "")
	}

	edge := &models.Prerequisite{CourseID: courseID, PrerequisiteCourseID: req.PrerequisiteCourseID}
	if err := s.repo.AddPrerequisite(ctx, edge); err != nil {
		return nil, mapWriteError(err, "failed to add prerequisite")
	}
	return edge, nil
}

// RemovePrerequisite deletes an edge.
func (s *CatalogService) RemovePrerequisite(ctx context.Context, courseID, prerequisiteID string) error {
	if err := s.repo.RemovePrerequisite(ctx, courseID, prerequisiteID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "prerequisite not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove prerequisite")
	}
	return nil
}

// reaches walks prerequisite edges depth first from start and reports whether
// target is required, directly or transitively.
func reaches(edges []models.Prerequisite, start, target string) bool {
	graph := make(map[string][]string, len(edges))
	for _, e := range edges {
		graph[e.CourseID] = append(graph[e.CourseID], e.PrerequisiteCourseID)
	}
	visited := map[string]bool{}
	stack := []string{start}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if node == target {
			return true
		}
		if visited[node] {
			continue
		}
		visited[node] = true
		stack = append(stack, graph[node]...)
	}
	return false
}
