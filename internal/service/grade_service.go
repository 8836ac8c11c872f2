package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/noah-isme/fasch-registrar-api/internal/dto"
	"github.com/noah-isme/fasch-registrar-api/internal/models"
	"github.com/noah-isme/fasch-registrar-api/internal/repository"
	"github.com/noah-isme/fasch-registrar-api/pkg/database"
	appErrors "github.com/noah-isme/fasch-registrar-api/pkg/errors"
	"github.com/noah-isme/fasch-registrar-api/pkg/events"
	"github.com/noah-isme/fasch-registrar-api/pkg/validation"
)

type gradeStore interface {
	Upsert(ctx context.Context, enrollmentID string, mutate repository.GradeMutator) (*models.Grade, error)
	Recalculate(ctx context.Context, gradeID string, derive func(grade *models.Grade)) (bool, error)
	ListIDs(ctx context.Context, sectionID string) ([]string, error)
	FindDetailByEnrollment(ctx context.Context, enrollmentID string) (*models.GradeDetail, error)
	ListBySection(ctx context.Context, sectionID string) ([]models.GradeDetail, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.GradeDetail, error)
	SectionFinals(ctx context.Context, sectionID string) ([]float64, error)
	History(ctx context.Context, gradeID string) ([]models.GradeHistory, error)
}

type enrollmentDetailReader interface {
	FindDetail(ctx context.Context, id string) (*models.EnrollmentDetail, error)
}

type sectionReader interface {
	FindSectionByID(ctx context.Context, id string) (*models.CourseSection, error)
}

type professorProfileReader interface {
	FindProfessorByUserID(ctx context.Context, userID string) (*models.ProfessorProfile, error)
}

// RecalculateResult reports a bulk recalculation.
type RecalculateResult struct {
	Updated   int               `json:"updated"`
	Unchanged int               `json:"unchanged"`
	Failed    map[string]string `json:"failed,omitempty"`
}

// GradeService records grade components and derives finals and statistics.
type GradeService struct {
	repo        gradeStore
	enrollments enrollmentDetailReader
	sections    sectionReader
	students    studentProfileReader
	professors  professorProfileReader
	notifier    notifier
	publisher   events.Publisher
	cache       *CacheService
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
}

// GradeDependencies groups the collaborators of GradeService.
type GradeDependencies struct {
	Repo        gradeStore
	Enrollments enrollmentDetailReader
	Sections    sectionReader
	Students    studentProfileReader
	Professors  professorProfileReader
	Notifier    notifier
	Publisher   events.Publisher
	Cache       *CacheService
	Metrics     *MetricsService
	Validator   *validator.Validate
	Logger      *zap.Logger
}

// NewGradeService constructs GradeService.
func NewGradeService(deps GradeDependencies) *GradeService {
	if deps.Validator == nil {
		deps.Validator = validation.New()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Publisher == nil {
		deps.Publisher = events.NopPublisher{}
	}
	return &GradeService{
		repo:        deps.Repo,
		enrollments: deps.Enrollments,
		sections:    deps.Sections,
		students:    deps.Students,
		professors:  deps.Professors,
		notifier:    deps.Notifier,
		publisher:   deps.Publisher,
		cache:       deps.Cache,
		metrics:     deps.Metrics,
		validator:   deps.Validator,
		logger:      deps.Logger,
	}
}

// Record applies a grade entry to one enrollment. Omitted components keep
// their value; every changed component is written to the grade history.
func (s *GradeService) Record(ctx context.Context, actor Actor, enrollmentID string, req dto.GradeEntryRequest) (*models.GradeDetail, error) {
	tracer := otel.Tracer("github.com/noah-isme/fasch-registrar-api/internal/service/grade")
	ctx, span := tracer.Start(ctx, "grading.record", trace.WithAttributes(attribute.String("grading.enrollment_id", enrollmentID)))
	defer span.End()

	if err := s.validator.Struct(req); err != nil {
		span.SetStatus(codes.Error, "validation_failed")
		return nil, appErrors.FromValidation(err, "invalid grade payload")
	}

	enrollment, err := s.authorizeGrading(ctx, actor, enrollmentID)
	if err != nil {
		span.SetStatus(codes.Error, "forbidden")
		return nil, err
	}

	var previous models.Grade
	var changes []models.GradeHistory
	grade, err := s.repo.Upsert(ctx, enrollmentID, func(grade *models.Grade, status models.EnrollmentStatus) ([]models.GradeHistory, error) {
		if status == models.EnrollmentStatusDropped {
			return nil, appErrors.Clone(appErrors.ErrGradeNotAllowed, "")
		}
		previous = *grade

		next := applyEntry(grade.GradeComponents, req)
		if err := ValidateComponents(next); err != nil {
			return nil, err
		}
		final, err := ComputeFinal(next)
		if err != nil {
			return nil, err
		}

		changes = diffComponents(grade.GradeComponents, next, actor.idPtr(), req.Reason)
		grade.GradeComponents = next
		grade.FinalGrade = final
		grade.LetterGrade = LetterGrade(final)
		if req.Comments != nil {
			grade.Comments = *req.Comments
		}
		grade.GradedBy = actor.idPtr()
		return changes, nil
	})
	if err != nil {
		span.RecordError(err)
		mapped := mapGradeError(err)
		span.SetStatus(codes.Error, mapped.Code)
		return nil, mapped
	}
	s.metrics.RecordGradeWrite("entry")
	span.SetAttributes(attribute.Int("grading.changes", len(changes)))

	detail, err := s.repo.FindDetailByEnrollment(ctx, enrollmentID)
	if err != nil {
		s.logger.Warn("failed to reload grade", zap.String("enrollment_id", enrollmentID), zap.Error(err))
		detail = &models.GradeDetail{Grade: *grade, SectionID: enrollment.SectionID, StudentID: enrollment.StudentID}
	}

	if len(changes) > 0 {
		s.afterGradeChange(ctx, detail, previous, changes)
	}
	return detail, nil
}

func (s *GradeService) afterGradeChange(ctx context.Context, detail *models.GradeDetail, previous models.Grade, changes []models.GradeHistory) {
	s.cache.ForgetSection(ctx, detail.SectionID)
	s.cache.ForgetStudent(ctx, detail.StudentID)

	if err := s.publisher.Publish(ctx, events.GradeUpdated, detail.Grade); err != nil {
		s.logger.Warn("failed to publish grade event", zap.String("grade_id", detail.ID), zap.Error(err))
	}

	if s.notifier == nil {
		return
	}
	delivery := Delivery{
		UserID: detail.StudentUserID,
		Email:  detail.StudentEmail,
		Name:   detail.StudentName,
		Link:   "/grades/" + detail.EnrollmentID,
	}
	if previous.FinalGrade == nil && detail.FinalGrade != nil {
		delivery.Type, delivery.Title = models.NotificationGradePublished, "Grade published"
		delivery.Message = fmt.Sprintf("%s %s: final grade %.2f (%s).", detail.CourseCode, detail.CourseName, *detail.FinalGrade, detail.LetterGrade)
	} else {
		delivery.Type, delivery.Title = models.NotificationGradeUpdated, "Grade updated"
		delivery.Message = gradeChangeMessage(detail, previous, changes)
	}
	s.notifier.Notify(ctx, delivery)
}

var componentLabels = map[string]string{
	models.ComponentMidterm:       "Midterm exam",
	models.ComponentFinalExam:     "Final exam",
	models.ComponentAssignments:   "Assignments",
	models.ComponentParticipation: "Participation",
	models.ComponentProject:       "Project",
}

// gradeChangeMessage lists one line per changed component, followed by the
// final and letter grade when they moved.
func gradeChangeMessage(detail *models.GradeDetail, previous models.Grade, changes []models.GradeHistory) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s: your grades were updated.", detail.CourseCode, detail.CourseName)
	for _, change := range changes {
		label, ok := componentLabels[change.Component]
		if !ok {
			label = change.Component
		}
		b.WriteString("\n" + changeLine(label, change.OldValue, change.NewValue))
	}
	if !sameFinal(previous.FinalGrade, detail.FinalGrade) {
		b.WriteString("\n" + changeLine("Final grade", previous.FinalGrade, detail.FinalGrade))
	}
	if previous.LetterGrade != detail.LetterGrade && previous.LetterGrade != "" && detail.LetterGrade != "" {
		fmt.Fprintf(&b, "\n• Letter grade: %s → %s", previous.LetterGrade, detail.LetterGrade)
	}
	return b.String()
}

func changeLine(label string, oldValue, newValue *float64) string {
	switch {
	case oldValue != nil && newValue != nil:
		return fmt.Sprintf("• %s: %.2f → %.2f", label, *oldValue, *newValue)
	case newValue != nil:
		return fmt.Sprintf("• %s: %.2f (new)", label, *newValue)
	case oldValue != nil:
		return fmt.Sprintf("• %s: %.2f (removed)", label, *oldValue)
	}
	return "• " + label
}

func sameFinal(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func applyEntry(current models.GradeComponents, req dto.GradeEntryRequest) models.GradeComponents {
	next := current
	provided := map[string]*float64{
		models.ComponentMidterm:       req.MidtermExam,
		models.ComponentFinalExam:     req.FinalExam,
		models.ComponentAssignments:   req.Assignments,
		models.ComponentParticipation: req.Participation,
		models.ComponentProject:       req.Project,
	}
	for name, value := range provided {
		if value != nil {
			v := *value
			next.Set(name, &v)
		}
	}
	for _, name := range req.ClearComponents {
		next.Set(name, nil)
	}
	return next
}

func diffComponents(before, after models.GradeComponents, actor *string, reason string) []models.GradeHistory {
	var history []models.GradeHistory
	for _, name := range models.ComponentNames {
		oldValue, newValue := before.Get(name), after.Get(name)
		if sameFinal(oldValue, newValue) {
			continue
		}
		history = append(history, models.GradeHistory{
			Component:  name,
			OldValue:   oldValue,
			NewValue:   newValue,
			ModifiedBy: actor,
			Reason:     reason,
		})
	}
	return history
}

func mapGradeError(err error) *appErrors.Error {
	var appErr *appErrors.Error
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, sql.ErrNoRows):
		return appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
	}
	if classified := database.Classify(err); classified != nil {
		return classified
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record grade")
}

// authorizeGrading lets staff grade anything and professors grade the
// sections they teach.
func (s *GradeService) authorizeGrading(ctx context.Context, actor Actor, enrollmentID string) (*models.EnrollmentDetail, error) {
	enrollment, err := s.enrollments.FindDetail(ctx, enrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if actor.IsStaff() {
		return enrollment, nil
	}
	if actor.Role != models.RoleProfessor {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only professors and staff record grades")
	}
	if err := s.requireTeaches(ctx, actor, enrollment.SectionID); err != nil {
		return nil, err
	}
	return enrollment, nil
}

func (s *GradeService) requireTeaches(ctx context.Context, actor Actor, sectionID string) error {
	profile, err := s.professors.FindProfessorByUserID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrForbidden, "professor profile required")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load professor profile")
	}
	section, err := s.sections.FindSectionByID(ctx, sectionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}
	if section.ProfessorID == nil || *section.ProfessorID != profile.ID {
		return appErrors.Clone(appErrors.ErrForbidden, "section is taught by another professor")
	}
	return nil
}

// RecordBulk applies a grade sheet entry by entry. Failures are reported per
// enrollment and do not stop the remaining entries.
func (s *GradeService) RecordBulk(ctx context.Context, actor Actor, sectionID string, req dto.BulkGradeRequest) (*dto.BulkResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.FromValidation(err, "invalid grade sheet")
	}
	if !actor.IsStaff() {
		if err := s.requireTeaches(ctx, actor, sectionID); err != nil {
			return nil, err
		}
	}
	result := &dto.BulkResult{Succeeded: []string{}, Failed: map[string]string{}}
	for _, entry := range req.Entries {
		enrollment, err := s.enrollments.FindDetail(ctx, entry.EnrollmentID)
		if err == nil && enrollment.SectionID != sectionID {
			err = appErrors.Clone(appErrors.ErrValidation, "enrollment belongs to another section")
		}
		if err == nil {
			_, err = s.Record(ctx, actor, entry.EnrollmentID, entry.GradeEntryRequest)
		}
		if err != nil {
			result.Failed[entry.EnrollmentID] = appErrors.FromError(err).Message
			continue
		}
		result.Succeeded = append(result.Succeeded, entry.EnrollmentID)
	}
	return result, nil
}

// Recalculate recomputes the cached final and letter of an explicit set of
// grade sheets.
func (s *GradeService) Recalculate(ctx context.Context, gradeIDs []string) (*RecalculateResult, error) {
	if err := s.validator.Struct(dto.RecalculateGradesRequest{GradeIDs: gradeIDs}); err != nil {
		return nil, appErrors.FromValidation(err, "invalid recalculation request")
	}
	tracer := otel.Tracer("github.com/noah-isme/fasch-registrar-api/internal/service/grade")
	ctx, span := tracer.Start(ctx, "grading.recalculate")
	span.SetAttributes(attribute.Int("grading.count", len(gradeIDs)))
	defer span.End()

	result := &RecalculateResult{Failed: map[string]string{}}
	for _, id := range gradeIDs {
		var derr error
		changed, err := s.repo.Recalculate(ctx, id, func(grade *models.Grade) {
			final, err := ComputeFinal(grade.GradeComponents)
			if err != nil {
				derr = err
				return
			}
			grade.FinalGrade = final
			grade.LetterGrade = LetterGrade(final)
		})
		if err == nil {
			err = derr
		}
		switch {
		case errors.Is(err, sql.ErrNoRows):
			result.Failed[id] = "grade not found"
		case err != nil:
			s.logger.Warn("grade recalculation failed", zap.String("grade_id", id), zap.Error(err))
			result.Failed[id] = appErrors.FromError(err).Message
		case changed:
			result.Updated++
			s.metrics.RecordGradeWrite("recalculate")
		default:
			result.Unchanged++
		}
	}
	if result.Updated > 0 {
		s.cache.Flush(ctx)
	}
	return result, nil
}

// RecalculateSection recomputes every grade sheet, or those of one section.
func (s *GradeService) RecalculateSection(ctx context.Context, sectionID string) (*RecalculateResult, error) {
	ids, err := s.repo.ListIDs(ctx, sectionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list grades")
	}
	if len(ids) == 0 {
		return &RecalculateResult{}, nil
	}
	return s.Recalculate(ctx, ids)
}

// ForEnrollment returns the grade sheet of an enrollment. Students only see
// their own grades.
func (s *GradeService) ForEnrollment(ctx context.Context, actor Actor, enrollmentID string) (*models.GradeDetail, error) {
	detail, err := s.repo.FindDetailByEnrollment(ctx, enrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "grade not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade")
	}
	if actor.Role == models.RoleStudent && detail.StudentUserID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "grade not found")
	}
	return detail, nil
}

// ListSection returns the grade sheets of a section.
func (s *GradeService) ListSection(ctx context.Context, actor Actor, sectionID string) ([]models.GradeDetail, error) {
	if !actor.IsStaff() {
		if err := s.requireTeaches(ctx, actor, sectionID); err != nil {
			return nil, err
		}
	}
	grades, err := s.repo.ListBySection(ctx, sectionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list grades")
	}
	return grades, nil
}

// ListMine returns the grade sheets of the calling student.
func (s *GradeService) ListMine(ctx context.Context, actor Actor) ([]models.GradeDetail, error) {
	profile, err := s.students.FindStudentByUserID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "student profile required")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student profile")
	}
	grades, err := s.repo.ListByStudent(ctx, profile.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list grades")
	}
	return grades, nil
}

// History returns the component history of an enrollment's grade sheet.
func (s *GradeService) History(ctx context.Context, actor Actor, enrollmentID string) ([]models.GradeHistory, error) {
	detail, err := s.ForEnrollment(ctx, actor, enrollmentID)
	if err != nil {
		return nil, err
	}
	history, err := s.repo.History(ctx, detail.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade history")
	}
	return history, nil
}

// Statistics summarises the finals of a section. Results are cached until the
// next grade write of the section.
func (s *GradeService) Statistics(ctx context.Context, actor Actor, sectionID string) (*models.CourseStatistics, error) {
	if !actor.IsStaff() {
		if err := s.requireTeaches(ctx, actor, sectionID); err != nil {
			return nil, err
		}
	}
	key := sectionStatsKey(sectionID)
	var cached models.CourseStatistics
	if s.cache.Get(ctx, key, &cached) {
		return &cached, nil
	}
	finals, err := s.repo.SectionFinals(ctx, sectionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section grades")
	}
	stats := SectionStatistics(sectionID, finals)
	s.cache.Set(ctx, key, stats, 0)
	return &stats, nil
}
