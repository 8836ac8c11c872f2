package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/fasch-registrar-api/internal/dto"
	"github.com/noah-isme/fasch-registrar-api/internal/models"
	appErrors "github.com/noah-isme/fasch-registrar-api/pkg/errors"
)

type importUsersFake struct {
	existing map[string]struct{}
	byEmail  map[string]*models.User
	created  []dto.CreateUserRequest
	students []dto.UpdateStudentProfileRequest
}

func (f *importUsersFake) ExistingEmails(_ context.Context, emails []string) (map[string]struct{}, error) {
	out := map[string]struct{}{}
	for _, e := range emails {
		if _, ok := f.existing[e]; ok {
			out[e] = struct{}{}
		}
	}
	return out, nil
}

func (f *importUsersFake) FindByEmail(_ context.Context, email string) (*models.User, error) {
	if u, ok := f.byEmail[email]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (f *importUsersFake) Create(_ context.Context, req dto.CreateUserRequest, _ string, _ models.LoginRequest) (*dto.UserWithProfiles, error) {
	f.created = append(f.created, req)
	return &dto.UserWithProfiles{User: models.User{ID: fixedID, Email: req.Email, Role: req.Role}}, nil
}

func (f *importUsersFake) UpdateStudent(_ context.Context, _ string, req dto.UpdateStudentProfileRequest) (*models.StudentProfile, error) {
	f.students = append(f.students, req)
	return &models.StudentProfile{}, nil
}

func (f *importUsersFake) UpdateProfessor(context.Context, string, dto.UpdateProfessorProfileRequest) (*models.ProfessorProfile, error) {
	return &models.ProfessorProfile{}, nil
}

type importProfilesFake struct {
	students   map[string]string
	professors map[string]string
}

func (f importProfilesFake) FindStudentByNumber(_ context.Context, number string) (*models.StudentProfile, error) {
	id, ok := f.students[number]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &models.StudentProfile{ID: id, StudentNumber: number}, nil
}

func (f importProfilesFake) FindProfessorByUserID(_ context.Context, userID string) (*models.ProfessorProfile, error) {
	id, ok := f.professors[userID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &models.ProfessorProfile{ID: id, UserID: userID}, nil
}

type importEnrollerFake struct {
	requests []dto.EnrollRequest
	enrolled map[string]bool
}

func (f *importEnrollerFake) Enroll(_ context.Context, actor Actor, req dto.EnrollRequest) (*models.EnrollmentDetail, error) {
	if !actor.IsStaff() {
		return nil, appErrors.ErrForbidden
	}
	f.requests = append(f.requests, req)
	key := req.StudentID + req.SectionID
	if f.enrolled[key] {
		return nil, appErrors.Clone(appErrors.ErrAlreadyEnrolled, "")
	}
	f.enrolled[key] = true
	return &models.EnrollmentDetail{}, nil
}

func newImportFixture(t *testing.T) (*ImportService, *importUsersFake, *memoryCatalog, *importEnrollerFake) {
	t.Helper()
	catalog, store := newCatalogFixture(t)
	users := &importUsersFake{
		existing: map[string]struct{}{"known@fasch.edu": {}},
		byEmail:  map[string]*models.User{"prof@fasch.edu": {ID: "prof-user"}},
	}
	enroller := &importEnrollerFake{enrolled: map[string]bool{}}
	svc := NewImportService(ImportDependencies{
		Users:         users,
		Profiles:      users,
		Catalog:       catalog,
		Enrollments:   enroller,
		UserLookup:    users,
		CatalogLookup: store,
		ProfileLookup: importProfilesFake{
			students:   map[string]string{"STU0001": studentUUID(1)},
			professors: map[string]string{"prof-user": "6a1c1d7e-0000-4000-8000-000000000001"},
		},
		TempPassword: "Temp1234!",
	})
	return svc, users, store, enroller
}

func TestImportStudentsDeduplicatesEmails(t *testing.T) {
	svc, users, _, _ := newImportFixture(t)
	input := "email,first_name,last_name,current_year,password\n" +
		"Marie@FASCH.edu,Marie,Joseph,2,\n" +
		"marie@fasch.edu,Marie,Joseph,2,\n" +
		"known@fasch.edu,Known,User,,\n" +
		"jean@fasch.edu,Jean,Louis,,Secret123!\n"

	report, err := svc.Import(context.Background(), ImportStudents, strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, 2, report.Created)
	assert.Equal(t, 2, report.Skipped)
	assert.Empty(t, report.Failures)

	require.Len(t, users.created, 2)
	assert.Equal(t, "marie@fasch.edu", users.created[0].Email)
	assert.Equal(t, "Temp1234!", users.created[0].Password)
	assert.Equal(t, models.RoleStudent, users.created[0].Role)
	assert.Equal(t, "Secret123!", users.created[1].Password)
	require.Len(t, users.students, 1)
	assert.Equal(t, 2, *users.students[0].CurrentYear)
}

func TestImportCoursesAndSections(t *testing.T) {
	svc, _, store, _ := newImportFixture(t)
	ctx := context.Background()

	courses := "code,name,credits,year_level\n" +
		"psy101,Intro Psychologie,3,1\n" +
		"PSY101,Doublon,3,1\n" +
		"SOC201,Sociologie,trois,2\n"
	report, err := svc.Import(ctx, ImportCourses, strings.NewReader(courses))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 1, report.Skipped)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, 4, report.Failures[0].Line)

	sections := "course_code,section_number,day,start_time,end_time,session,semester,year,professor_email,is_open\n" +
		"PSY101,A,MONDAY,08:00,10:00,SESSION_1,FALL,2025,prof@fasch.edu,true\n" +
		"PSY101,A,MONDAY,08:00,10:00,SESSION_1,FALL,2025,,\n" +
		"PSY101,B,TUESDAY,10:00,09:00,SESSION_1,FALL,2025,,\n" +
		"PSY999,A,MONDAY,08:00,10:00,SESSION_1,FALL,2025,,\n" +
		"PSY101,C,MONDAY,08:00,10:00,SESSION_1,FALL,2025,ghost@fasch.edu,\n"
	report, err = svc.Import(ctx, ImportSections, strings.NewReader(sections))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 1, report.Skipped)
	assert.Len(t, report.Failures, 3)

	require.Len(t, store.sections, 1)
	for _, section := range store.sections {
		require.NotNil(t, section.ProfessorID)
		assert.Equal(t, models.DefaultMaxStudents, section.MaxStudents)
	}

	report, err = svc.Import(ctx, ImportSections, strings.NewReader(sections[:strings.Index(sections, "\n")+1]+
		"PSY101,A,MONDAY,08:00,10:00,SESSION_1,FALL,2025,,\n"))
	require.NoError(t, err)
	assert.Equal(t, 0, report.Created)
	assert.Equal(t, 1, report.Skipped)
}

func TestImportEnrollments(t *testing.T) {
	svc, _, _, enroller := newImportFixture(t)
	ctx := context.Background()

	_, err := svc.Import(ctx, ImportCourses, strings.NewReader("code,name,credits,year_level\nPSY101,Intro,3,1\n"))
	require.NoError(t, err)
	_, err = svc.Import(ctx, ImportSections, strings.NewReader("course_code,section_number,day,start_time,end_time,session,semester,year\n"+
		"PSY101,A,MONDAY,08:00,10:00,SESSION_1,FALL,2025\n"))
	require.NoError(t, err)

	input := "student_number,course_code,section_number,session,semester,year\n" +
		"stu0001,PSY101,A,SESSION_1,FALL,2025\n" +
		"STU0001,PSY101,A,SESSION_1,FALL,2025\n" +
		"STU0404,PSY101,A,SESSION_1,FALL,2025\n" +
		"STU0001,PSY101,Z,SESSION_1,FALL,2025\n"
	report, err := svc.Import(ctx, ImportEnrollments, strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 1, report.Skipped)
	assert.Len(t, report.Failures, 2)
	require.Len(t, enroller.requests, 1)
	assert.Equal(t, studentUUID(1), enroller.requests[0].StudentID)

	again, err := svc.Import(ctx, ImportEnrollments, strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, 0, again.Created)
	assert.Equal(t, 2, again.Skipped)
}

func TestImportRejectsIncompleteHeader(t *testing.T) {
	svc, _, _, _ := newImportFixture(t)

	_, err := svc.Import(context.Background(), ImportCourses, strings.NewReader("code,name\nPSY101,Intro\n"))
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Contains(t, appErr.Details, "credits")

	_, err = svc.Import(context.Background(), ImportKind("grades"), strings.NewReader(""))
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}
