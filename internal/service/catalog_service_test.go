package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/fasch-registrar-api/internal/dto"
	"github.com/noah-isme/fasch-registrar-api/internal/models"
	appErrors "github.com/noah-isme/fasch-registrar-api/pkg/errors"
)

type memoryCatalog struct {
	departments []models.Department
	courses     map[string]*models.Course
	sections    map[string]*models.CourseSection
	edges       []models.Prerequisite
	available   struct {
		studentID string
		year      int
		dept      *string
	}
}

func newMemoryCatalog() *memoryCatalog {
	return &memoryCatalog{courses: map[string]*models.Course{}, sections: map[string]*models.CourseSection{}}
}

func (m *memoryCatalog) ListDepartments(context.Context) ([]models.Department, error) {
	return m.departments, nil
}

func (m *memoryCatalog) FindDepartmentByID(_ context.Context, id string) (*models.Department, error) {
	for _, d := range m.departments {
		if d.ID == id {
			return &d, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memoryCatalog) CreateDepartment(_ context.Context, d *models.Department) error {
	m.departments = append(m.departments, *d)
	return nil
}

func (m *memoryCatalog) FindCourseByID(_ context.Context, id string) (*models.Course, error) {
	c, ok := m.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *c
	return &clone, nil
}

func (m *memoryCatalog) FindCourseByCode(_ context.Context, code string) (*models.Course, error) {
	for _, c := range m.courses {
		if c.Code == code {
			clone := *c
			return &clone, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memoryCatalog) ListCourses(context.Context, models.CourseFilter) ([]models.Course, int, error) {
	var out []models.Course
	for _, c := range m.courses {
		out = append(out, *c)
	}
	return out, len(out), nil
}

func (m *memoryCatalog) CreateCourse(_ context.Context, c *models.Course) error {
	clone := *c
	m.courses[c.ID] = &clone
	return nil
}

func (m *memoryCatalog) UpdateCourse(_ context.Context, c *models.Course) error {
	clone := *c
	m.courses[c.ID] = &clone
	return nil
}

func (m *memoryCatalog) FindSectionByID(_ context.Context, id string) (*models.CourseSection, error) {
	s, ok := m.sections[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *s
	return &clone, nil
}

func (m *memoryCatalog) FindSectionDetail(ctx context.Context, id string) (*models.SectionDetail, error) {
	s, err := m.FindSectionByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &models.SectionDetail{CourseSection: *s}, nil
}

func (m *memoryCatalog) FindSectionByKey(_ context.Context, courseID, number string, session models.Session, semester models.Semester, year int) (*models.CourseSection, error) {
	for _, s := range m.sections {
		if s.CourseID == courseID && s.SectionNumber == number && s.Session == session && s.Semester == semester && s.Year == year {
			clone := *s
			return &clone, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memoryCatalog) ListSections(context.Context, models.SectionFilter) ([]models.SectionDetail, int, error) {
	return nil, 0, nil
}

func (m *memoryCatalog) AvailableSections(_ context.Context, studentID string, year int, dept *string) ([]models.SectionDetail, error) {
	m.available.studentID, m.available.year, m.available.dept = studentID, year, dept
	return []models.SectionDetail{}, nil
}

func (m *memoryCatalog) CreateSection(_ context.Context, s *models.CourseSection) error {
	clone := *s
	m.sections[s.ID] = &clone
	return nil
}

func (m *memoryCatalog) UpdateSection(_ context.Context, s *models.CourseSection) error {
	clone := *s
	m.sections[s.ID] = &clone
	return nil
}

func (m *memoryCatalog) ListPrerequisiteEdges(context.Context) ([]models.Prerequisite, error) {
	return m.edges, nil
}

func (m *memoryCatalog) ListPrerequisites(_ context.Context, courseID string) ([]models.Course, error) {
	var out []models.Course
	for _, e := range m.edges {
		if e.CourseID == courseID {
			out = append(out, *m.courses[e.PrerequisiteCourseID])
		}
	}
	return out, nil
}

func (m *memoryCatalog) AddPrerequisite(_ context.Context, e *models.Prerequisite) error {
	m.edges = append(m.edges, *e)
	return nil
}

func (m *memoryCatalog) RemovePrerequisite(_ context.Context, courseID, prerequisiteID string) error {
	for i, e := range m.edges {
		if e.CourseID == courseID && e.PrerequisiteCourseID == prerequisiteID {
			m.edges = append(m.edges[:i], m.edges[i+1:]...)
			return nil
		}
	}
	return sql.ErrNoRows
}

func newCatalogFixture(t *testing.T) (*CatalogService, *memoryCatalog) {
	t.Helper()
	store := newMemoryCatalog()
	return NewCatalogService(store, fakeStudentProfiles{"stu-user": studentUUID(1)}, nil, nil), store
}

func mustCourse(t *testing.T, svc *CatalogService, code string) *models.Course {
	t.Helper()
	course, err := svc.CreateCourse(context.Background(), dto.CreateCourseRequest{Code: code, Name: code, Credits: 3, YearLevel: 1})
	require.NoError(t, err)
	return course
}

func TestCatalogServiceCreateCourse(t *testing.T) {
	svc, _ := newCatalogFixture(t)

	course := mustCourse(t, svc, " psy101 ")
	assert.Equal(t, "PSY101", course.Code)
	assert.True(t, course.Active)

	_, err := svc.CreateCourse(context.Background(), dto.CreateCourseRequest{Code: "PSY101", Name: "Again", Credits: 3, YearLevel: 1})
	assert.ErrorIs(t, err, appErrors.ErrConflict)

	_, err = svc.CreateCourse(context.Background(), dto.CreateCourseRequest{Code: "X", Name: "Bad", Credits: 0, YearLevel: 1})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestCatalogServiceCreateSection(t *testing.T) {
	svc, _ := newCatalogFixture(t)
	course := mustCourse(t, svc, "SOC101")
	req := dto.CreateSectionRequest{
		CourseID: course.ID, SectionNumber: "01", Day: models.Monday,
		StartTime: models.MustClock("08:00"), EndTime: models.MustClock("10:00"),
		Session: models.Session1, Semester: models.SemesterFall, Year: 2025,
	}

	section, err := svc.CreateSection(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultMaxStudents, section.MaxStudents)
	assert.True(t, section.IsOpen)

	_, err = svc.CreateSection(context.Background(), req)
	assert.ErrorIs(t, err, appErrors.ErrConflict)

	req.SectionNumber = "02"
	req.EndTime = req.StartTime
	_, err = svc.CreateSection(context.Background(), req)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	req.EndTime = models.MustClock("09:00")
	req.CourseID = uuid.NewString()
	_, err = svc.CreateSection(context.Background(), req)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestCatalogServiceUpdateSectionValidatesTimes(t *testing.T) {
	svc, _ := newCatalogFixture(t)
	course := mustCourse(t, svc, "COM101")
	section, err := svc.CreateSection(context.Background(), dto.CreateSectionRequest{
		CourseID: course.ID, SectionNumber: "01", Day: models.Friday,
		StartTime: models.MustClock("13:00"), EndTime: models.MustClock("15:00"),
		Session: models.Session2, Semester: models.SemesterSpring, Year: 2026,
	})
	require.NoError(t, err)

	early := models.MustClock("12:00")
	_, err = svc.UpdateSection(context.Background(), section.ID, dto.UpdateSectionRequest{EndTime: &early})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	closed := false
	updated, err := svc.UpdateSection(context.Background(), section.ID, dto.UpdateSectionRequest{IsOpen: &closed})
	require.NoError(t, err)
	assert.False(t, updated.IsOpen)
}

func TestCatalogServicePrerequisites(t *testing.T) {
	svc, store := newCatalogFixture(t)
	ctx := context.Background()
	a, b, c := mustCourse(t, svc, "A101"), mustCourse(t, svc, "B201"), mustCourse(t, svc, "C301")

	_, err := svc.AddPrerequisite(ctx, a.ID, dto.PrerequisiteRequest{PrerequisiteCourseID: a.ID})
	assert.ErrorIs(t, err, appErrors.ErrSelfPrerequisite)

	_, err = svc.AddPrerequisite(ctx, c.ID, dto.PrerequisiteRequest{PrerequisiteCourseID: b.ID})
	require.NoError(t, err)
	_, err = svc.AddPrerequisite(ctx, b.ID, dto.PrerequisiteRequest{PrerequisiteCourseID: a.ID})
	require.NoError(t, err)

	_, err = svc.AddPrerequisite(ctx, a.ID, dto.PrerequisiteRequest{PrerequisiteCourseID: c.ID})
	assert.ErrorIs(t, err, appErrors.ErrCircularPrerequisite)
	assert.Len(t, store.edges, 2)

	prereqs, err := svc.Prerequisites(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, prereqs, 1)
	assert.Equal(t, "B201", prereqs[0].Code)

	require.NoError(t, svc.RemovePrerequisite(ctx, b.ID, a.ID))
	assert.ErrorIs(t, svc.RemovePrerequisite(ctx, b.ID, a.ID), appErrors.ErrNotFound)
	_, err = svc.AddPrerequisite(ctx, a.ID, dto.PrerequisiteRequest{PrerequisiteCourseID: c.ID})
	assert.NoError(t, err)
}

func TestReachesHandlesDiamonds(t *testing.T) {
	edges := []models.Prerequisite{
		{CourseID: "d", PrerequisiteCourseID: "b"},
		{CourseID: "d", PrerequisiteCourseID: "c"},
		{CourseID: "b", PrerequisiteCourseID: "a"},
		{CourseID: "c", PrerequisiteCourseID: "a"},
	}
	assert.True(t, reaches(edges, "d", "a"))
	assert.False(t, reaches(edges, "a", "d"))
	assert.False(t, reaches(edges, "b", "c"))
}

func TestCatalogServiceAvailableSections(t *testing.T) {
	svc, store := newCatalogFixture(t)

	_, err := svc.AvailableSections(context.Background(), Actor{UserID: "stu-user", Role: models.RoleStudent})
	require.NoError(t, err)
	assert.Equal(t, studentUUID(1), store.available.studentID)

	_, err = svc.AvailableSections(context.Background(), professorActor)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}
