package service

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/fasch-registrar-api/internal/dto"
	"github.com/noah-isme/fasch-registrar-api/internal/models"
	appErrors "github.com/noah-isme/fasch-registrar-api/pkg/errors"
)

// ImportKind names a CSV dataset understood by ImportService.
type ImportKind string

const (
	ImportStudents    ImportKind = "students"
	ImportProfessors  ImportKind = "professors"
	ImportCourses     ImportKind = "courses"
	ImportSections    ImportKind = "sections"
	ImportEnrollments ImportKind = "enrollments"
)

var importColumns = map[ImportKind][]string{
	ImportStudents:    {"email", "first_name", "last_name"},
	ImportProfessors:  {"email", "first_name", "last_name"},
	ImportCourses:     {"code", "name", "credits", "year_level"},
	ImportSections:    {"course_code", "section_number", "day", "start_time", "end_time", "session", "semester", "year"},
	ImportEnrollments: {"student_number", "course_code", "section_number", "session", "semester", "year"},
}

// ImportFailure describes one rejected CSV line.
type ImportFailure struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

// ImportReport summarises an import run.
type ImportReport struct {
	Kind     ImportKind      `json:"kind"`
	Created  int             `json:"created"`
	Skipped  int             `json:"skipped"`
	Failures []ImportFailure `json:"failures,omitempty"`
}

func (r *ImportReport) fail(line int, err error) {
	r.Failures = append(r.Failures, ImportFailure{Line: line, Reason: err.Error()})
}

type importUserCreator interface {
	Create(ctx context.Context, req dto.CreateUserRequest, actorID string, meta models.LoginRequest) (*dto.UserWithProfiles, error)
}

type importProfileUpdater interface {
	UpdateStudent(ctx context.Context, userID string, req dto.UpdateStudentProfileRequest) (*models.StudentProfile, error)
	UpdateProfessor(ctx context.Context, userID string, req dto.UpdateProfessorProfileRequest) (*models.ProfessorProfile, error)
}

type importCatalogWriter interface {
	CreateCourse(ctx context.Context, req dto.CreateCourseRequest) (*models.Course, error)
	CreateSection(ctx context.Context, req dto.CreateSectionRequest) (*models.CourseSection, error)
}

type importEnroller interface {
	Enroll(ctx context.Context, actor Actor, req dto.EnrollRequest) (*models.EnrollmentDetail, error)
}

type importUserLookup interface {
	ExistingEmails(ctx context.Context, emails []string) (map[string]struct{}, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
}

type importCatalogLookup interface {
	FindCourseByCode(ctx context.Context, code string) (*models.Course, error)
	FindSectionByKey(ctx context.Context, courseID, sectionNumber string, session models.Session, semester models.Semester, year int) (*models.CourseSection, error)
}

type importProfileLookup interface {
	FindStudentByNumber(ctx context.Context, number string) (*models.StudentProfile, error)
	FindProfessorByUserID(ctx context.Context, userID string) (*models.ProfessorProfile, error)
}

// ImportDependencies wires the collaborators of ImportService.
type ImportDependencies struct {
	Users         importUserCreator
	Profiles      importProfileUpdater
	Catalog       importCatalogWriter
	Enrollments   importEnroller
	UserLookup    importUserLookup
	CatalogLookup importCatalogLookup
	ProfileLookup importProfileLookup
	// TempPassword is assigned to imported accounts whose row carries none.
	TempPassword string
	Logger       *zap.Logger
}

// ImportService loads registrar datasets from CSV through the same service
// operations the API uses, so every business rule still applies.
type ImportService struct {
	deps   ImportDependencies
	actor  Actor
	logger *zap.Logger
}

// NewImportService constructs ImportService. Imports run with staff rights.
func NewImportService(deps ImportDependencies) *ImportService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImportService{
		deps:   deps,
		actor:  Actor{Role: models.RoleAdmin},
		logger: logger,
	}
}

type csvRecord struct {
	line   int
	values map[string]string
}

func (r csvRecord) get(column string) string {
	return strings.TrimSpace(r.values[column])
}

func (r csvRecord) getDefault(column, fallback string) string {
	if v := r.get(column); v != "" {
		return v
	}
	return fallback
}

func (r csvRecord) optional(column string) *string {
	v := r.get(column)
	if v == "" {
		return nil
	}
	return &v
}

func (r csvRecord) number(column string, fallback int) (int, error) {
	raw := r.get(column)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not a number", column, raw)
	}
	return n, nil
}

func readRecords(reader io.Reader, required []string) ([]csvRecord, error) {
	r := csv.NewReader(reader)
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, appErrors.Validation("csv file is empty", nil)
		}
		return nil, appErrors.Validation("unreadable csv header", map[string]string{"header": err.Error()})
	}
	columns := make([]string, len(header))
	present := make(map[string]struct{}, len(header))
	for i, name := range header {
		columns[i] = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		present[columns[i]] = struct{}{}
	}
	missing := map[string]string{}
	for _, name := range required {
		if _, ok := present[name]; !ok {
			missing[name] = "missing column"
		}
	}
	if len(missing) > 0 {
		return nil, appErrors.Validation("csv header is incomplete", missing)
	}

	var records []csvRecord
	line := 1
	for {
		fields, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, appErrors.Validation(fmt.Sprintf("malformed csv at line %d", line), nil)
		}
		values := make(map[string]string, len(columns))
		for i, column := range columns {
			if i < len(fields) {
				values[column] = fields[i]
			}
		}
		records = append(records, csvRecord{line: line, values: values})
	}
	return records, nil
}

// Import reads a CSV dataset of the given kind. Rows repeating a key seen
// earlier in the batch, or already stored, are skipped; other row failures
// are reported without stopping the run.
func (s *ImportService) Import(ctx context.Context, kind ImportKind, reader io.Reader) (*ImportReport, error) {
	required, ok := importColumns[kind]
	if !ok {
		return nil, appErrors.Validation("unknown import kind", map[string]string{"kind": string(kind)})
	}
	records, err := readRecords(reader, required)
	if err != nil {
		return nil, err
	}

	report := &ImportReport{Kind: kind}
	switch kind {
	case ImportStudents, ImportProfessors:
		err = s.importUsers(ctx, kind, records, report)
	case ImportCourses:
		s.importCourses(ctx, records, report)
	case ImportSections:
		s.importSections(ctx, records, report)
	case ImportEnrollments:
		s.importEnrollments(ctx, records, report)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("csv import finished",
		zap.String("kind", string(kind)),
		zap.Int("created", report.Created),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", len(report.Failures)),
	)
	return report, nil
}

func (s *ImportService) importUsers(ctx context.Context, kind ImportKind, records []csvRecord, report *ImportReport) error {
	emails := make([]string, 0, len(records))
	for _, rec := range records {
		emails = append(emails, strings.ToLower(rec.get("email")))
	}
	existing, err := s.deps.UserLookup.ExistingEmails(ctx, emails)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing emails")
	}

	seen := make(map[string]struct{}, len(records))
	for _, rec := range records {
		email := strings.ToLower(rec.get("email"))
		if _, dup := seen[email]; dup {
			report.Skipped++
			continue
		}
		seen[email] = struct{}{}
		if _, ok := existing[email]; ok {
			report.Skipped++
			continue
		}

		password := rec.getDefault("password", s.deps.TempPassword)
		if password == "" {
			report.fail(rec.line, errors.New("password: no value and no temporary password configured"))
			continue
		}
		role := models.RoleStudent
		if kind == ImportProfessors {
			role = models.RoleProfessor
		}
		created, err := s.deps.Users.Create(ctx, dto.CreateUserRequest{
			Email:     email,
			Password:  password,
			FirstName: rec.get("first_name"),
			LastName:  rec.get("last_name"),
			Role:      role,
			Phone:     rec.optional("phone"),
		}, "", models.LoginRequest{})
		if err != nil {
			if errors.Is(err, appErrors.ErrConflict) {
				report.Skipped++
				continue
			}
			report.fail(rec.line, err)
			continue
		}
		report.Created++

		if err := s.applyProfile(ctx, kind, created.ID, rec); err != nil {
			s.logger.Warn("imported user profile not updated", zap.String("user_id", created.ID), zap.Int("line", rec.line), zap.Error(err))
			report.fail(rec.line, fmt.Errorf("profile: %w", err))
		}
	}
	return nil
}

func (s *ImportService) applyProfile(ctx context.Context, kind ImportKind, userID string, rec csvRecord) error {
	if kind == ImportProfessors {
		req := dto.UpdateProfessorProfileRequest{DepartmentID: rec.optional("department_id"), Specialization: rec.optional("specialization")}
		if req.DepartmentID == nil && req.Specialization == nil {
			return nil
		}
		_, err := s.deps.Profiles.UpdateProfessor(ctx, userID, req)
		return err
	}

	req := dto.UpdateStudentProfileRequest{DepartmentID: rec.optional("department_id")}
	if rec.get("current_year") != "" {
		year, err := rec.number("current_year", 1)
		if err != nil {
			return err
		}
		req.CurrentYear = &year
	}
	if req.DepartmentID == nil && req.CurrentYear == nil {
		return nil
	}
	_, err := s.deps.Profiles.UpdateStudent(ctx, userID, req)
	return err
}

func (s *ImportService) importCourses(ctx context.Context, records []csvRecord, report *ImportReport) {
	seen := make(map[string]struct{}, len(records))
	for _, rec := range records {
		code := strings.ToUpper(rec.get("code"))
		if _, dup := seen[code]; dup {
			report.Skipped++
			continue
		}
		seen[code] = struct{}{}

		credits, err := rec.number("credits", 0)
		if err != nil {
			report.fail(rec.line, err)
			continue
		}
		yearLevel, err := rec.number("year_level", 0)
		if err != nil {
			report.fail(rec.line, err)
			continue
		}
		_, err = s.deps.Catalog.CreateCourse(ctx, dto.CreateCourseRequest{
			Code:         code,
			Name:         rec.get("name"),
			Description:  rec.get("description"),
			Credits:      credits,
			YearLevel:    yearLevel,
			DepartmentID: rec.optional("department_id"),
		})
		switch {
		case err == nil:
			report.Created++
		case errors.Is(err, appErrors.ErrConflict):
			report.Skipped++
		default:
			report.fail(rec.line, err)
		}
	}
}

type sectionKey struct {
	courseCode    string
	sectionNumber string
	session       models.Session
	semester      models.Semester
	year          int
}

func (k sectionKey) String() string {
	return fmt.Sprintf("%s-%s %s %s %d", k.courseCode, k.sectionNumber, k.session, k.semester, k.year)
}

func parseSectionKey(rec csvRecord) (sectionKey, error) {
	year, err := rec.number("year", 0)
	if err != nil {
		return sectionKey{}, err
	}
	return sectionKey{
		courseCode:    strings.ToUpper(rec.get("course_code")),
		sectionNumber: rec.get("section_number"),
		session:       models.Session(strings.ToUpper(rec.get("session"))),
		semester:      models.Semester(strings.ToUpper(rec.get("semester"))),
		year:          year,
	}, nil
}

func (s *ImportService) importSections(ctx context.Context, records []csvRecord, report *ImportReport) {
	seen := make(map[sectionKey]struct{}, len(records))
	courses := map[string]*models.Course{}
	for _, rec := range records {
		key, err := parseSectionKey(rec)
		if err != nil {
			report.fail(rec.line, err)
			continue
		}
		if _, dup := seen[key]; dup {
			report.Skipped++
			continue
		}
		seen[key] = struct{}{}

		course, err := s.courseByCode(ctx, courses, key.courseCode)
		if err != nil {
			report.fail(rec.line, err)
			continue
		}
		if _, err := s.deps.CatalogLookup.FindSectionByKey(ctx, course.ID, key.sectionNumber, key.session, key.semester, key.year); err == nil {
			report.Skipped++
			continue
		} else if !errors.Is(err, sql.ErrNoRows) {
			report.fail(rec.line, err)
			continue
		}

		req, err := s.sectionRequest(ctx, rec, course.ID, key)
		if err != nil {
			report.fail(rec.line, err)
			continue
		}
		_, err = s.deps.Catalog.CreateSection(ctx, req)
		switch {
		case err == nil:
			report.Created++
		case errors.Is(err, appErrors.ErrConflict):
			report.Skipped++
		default:
			report.fail(rec.line, fmt.Errorf("%s: %w", key, err))
		}
	}
}

func (s *ImportService) sectionRequest(ctx context.Context, rec csvRecord, courseID string, key sectionKey) (dto.CreateSectionRequest, error) {
	start, err := models.ParseClock(rec.get("start_time"))
	if err != nil {
		return dto.CreateSectionRequest{}, fmt.Errorf("start_time: %w", err)
	}
	end, err := models.ParseClock(rec.get("end_time"))
	if err != nil {
		return dto.CreateSectionRequest{}, fmt.Errorf("end_time: %w", err)
	}
	maxStudents, err := rec.number("max_students", models.DefaultMaxStudents)
	if err != nil {
		return dto.CreateSectionRequest{}, err
	}
	req := dto.CreateSectionRequest{
		CourseID:      courseID,
		SectionNumber: key.sectionNumber,
		Day:           models.Weekday(strings.ToUpper(rec.get("day"))),
		StartTime:     start,
		EndTime:       end,
		Room:          rec.get("room"),
		Session:       key.session,
		Semester:      key.semester,
		Year:          key.year,
		MaxStudents:   maxStudents,
	}
	if raw := rec.get("is_open"); raw != "" {
		open, err := strconv.ParseBool(raw)
		if err != nil {
			return dto.CreateSectionRequest{}, fmt.Errorf("is_open: %q is not a boolean", raw)
		}
		req.IsOpen = &open
	}
	if email := strings.ToLower(rec.get("professor_email")); email != "" {
		user, err := s.deps.UserLookup.FindByEmail(ctx, email)
		if err != nil {
			return dto.CreateSectionRequest{}, fmt.Errorf("professor %s not found", email)
		}
		professor, err := s.deps.ProfileLookup.FindProfessorByUserID(ctx, user.ID)
		if err != nil {
			return dto.CreateSectionRequest{}, fmt.Errorf("%s has no professor profile", email)
		}
		req.ProfessorID = &professor.ID
	}
	return req, nil
}

func (s *ImportService) courseByCode(ctx context.Context, cache map[string]*models.Course, code string) (*models.Course, error) {
	if course, ok := cache[code]; ok {
		return course, nil
	}
	course, err := s.deps.CatalogLookup.FindCourseByCode(ctx, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("course %s not found", code)
		}
		return nil, err
	}
	cache[code] = course
	return course, nil
}

func (s *ImportService) importEnrollments(ctx context.Context, records []csvRecord, report *ImportReport) {
	type enrollmentKey struct {
		student string
		section sectionKey
	}
	seen := make(map[enrollmentKey]struct{}, len(records))
	courses := map[string]*models.Course{}
	for _, rec := range records {
		key, err := parseSectionKey(rec)
		if err != nil {
			report.fail(rec.line, err)
			continue
		}
		number := strings.ToUpper(rec.get("student_number"))
		dedup := enrollmentKey{student: number, section: key}
		if _, dup := seen[dedup]; dup {
			report.Skipped++
			continue
		}
		seen[dedup] = struct{}{}

		student, err := s.deps.ProfileLookup.FindStudentByNumber(ctx, number)
		if err != nil {
			report.fail(rec.line, fmt.Errorf("student %s not found", number))
			continue
		}
		course, err := s.courseByCode(ctx, courses, key.courseCode)
		if err != nil {
			report.fail(rec.line, err)
			continue
		}
		section, err := s.deps.CatalogLookup.FindSectionByKey(ctx, course.ID, key.sectionNumber, key.session, key.semester, key.year)
		if err != nil {
			report.fail(rec.line, fmt.Errorf("section %s not found", key))
			continue
		}

		_, err = s.deps.Enrollments.Enroll(ctx, s.actor, dto.EnrollRequest{StudentID: student.ID, SectionID: section.ID})
		switch {
		case err == nil:
			report.Created++
		case errors.Is(err, appErrors.ErrAlreadyEnrolled), errors.Is(err, appErrors.ErrDuplicateCourse):
			report.Skipped++
		default:
			report.fail(rec.line, err)
		}
	}
}
