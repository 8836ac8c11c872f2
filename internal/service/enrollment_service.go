package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

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

type enrollmentStore interface {
	Enroll(ctx context.Context, studentID, sectionID string, admit repository.AdmitFunc) (*models.Enrollment, error)
	ChangeStatus(ctx context.Context, id string, transition repository.TransitionFunc) (*models.Enrollment, error)
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	FindDetail(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	History(ctx context.Context, enrollmentID string) ([]models.EnrollmentHistory, error)
	Counters(ctx context.Context, studentID string) (*models.EnrollmentCounters, error)
}

type studentProfileReader interface {
	FindStudentByUserID(ctx context.Context, userID string) (*models.StudentProfile, error)
}

type notifier interface {
	Notify(ctx context.Context, d Delivery)
}

// EnrollmentConfig tunes the enrollment rules.
type EnrollmentConfig struct {
	MaxCoursesPerSession int
}

// EnrollmentService applies the enrollment rules and status lifecycle.
type EnrollmentService struct {
	repo      enrollmentStore
	students  studentProfileReader
	notifier  notifier
	publisher events.Publisher
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	config    EnrollmentConfig
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(repo enrollmentStore, students studentProfileReader, notifier notifier, publisher events.Publisher, cacheSvc *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, config EnrollmentConfig) *EnrollmentService {
	if validate == nil {
		validate = validation.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if config.MaxCoursesPerSession <= 0 {
		config.MaxCoursesPerSession = DefaultMaxCoursesPerSession
	}
	return &EnrollmentService{
		repo:      repo,
		students:  students,
		notifier:  notifier,
		publisher: publisher,
		cache:     cacheSvc,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		config:    config,
	}
}

// Enroll attempts to enroll a student into a section. Students always enroll
// themselves; staff name the student profile.
func (s *EnrollmentService) Enroll(ctx context.Context, actor Actor, req dto.EnrollRequest) (*models.EnrollmentDetail, error) {
	tracer := otel.Tracer("github.com/noah-isme/fasch-registrar-api/internal/service/enrollment")
	ctx, span := tracer.Start(ctx, "enrollment.attempt",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("enrollment.section_id", req.SectionID)),
	)
	defer span.End()

	if err := s.validator.Struct(req); err != nil {
		span.SetStatus(codes.Error, "validation_failed")
		return nil, appErrors.FromValidation(err, "invalid enrollment payload")
	}

	studentID, err := s.resolveStudent(ctx, actor, req.StudentID)
	if err != nil {
		span.SetStatus(codes.Error, "student_resolution_failed")
		return nil, err
	}
	span.SetAttributes(attribute.String("enrollment.student_id", studentID))

	enrollment, err := s.repo.Enroll(ctx, studentID, req.SectionID, func(snapshot *models.AdmissionSnapshot) error {
		return CheckAdmission(snapshot, s.config.MaxCoursesPerSession)
	})
	if err != nil {
		mapped := s.mapEnrollError(err)
		s.metrics.RecordEnrollmentAttempt(mapped.Code)
		span.RecordError(err)
		span.SetStatus(codes.Error, mapped.Code)
		return nil, mapped
	}
	s.metrics.RecordEnrollmentAttempt(string(models.EnrollmentStatusEnrolled))
	span.SetAttributes(attribute.String("enrollment.id", enrollment.ID))

	if err := s.publisher.Publish(ctx, events.EnrollmentCreated, enrollment); err != nil {
		s.logger.Warn("failed to publish enrollment event", zap.String("enrollment_id", enrollment.ID), zap.Error(err))
	}

	// the confirmation needs the student's contact details from the reload
	detail, err := s.repo.FindDetail(ctx, enrollment.ID)
	if err != nil {
		s.logger.Warn("failed to load enrollment detail", zap.String("enrollment_id", enrollment.ID), zap.Error(err))
		return &models.EnrollmentDetail{Enrollment: *enrollment}, nil
	}
	if s.notifier != nil {
		s.notifier.Notify(ctx, Delivery{
			UserID:  detail.StudentUserID,
			Email:   detail.StudentEmail,
			Name:    detail.StudentName,
			Type:    models.NotificationEnrollmentConfirmed,
			Title:   "Enrollment confirmed",
			Message: fmt.Sprintf("You are enrolled in %s %s (section %s).", detail.CourseCode, detail.CourseName, detail.SectionNumber),
			Link:    "/enrollments/" + detail.ID,
		})
	}
	return detail, nil
}

func (s *EnrollmentService) resolveStudent(ctx context.Context, actor Actor, requested string) (string, error) {
	if actor.Role != models.RoleStudent {
		if requested == "" {
			return "", appErrors.Validation("student is required", map[string]string{"student_id": "failed required"})
		}
		return requested, nil
	}
	profile, err := s.students.FindStudentByUserID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", appErrors.Clone(appErrors.ErrForbidden, "student profile required")
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student profile")
	}
	if requested != "" && requested != profile.ID {
		return "", appErrors.Clone(appErrors.ErrForbidden, "students can only enroll themselves")
	}
	return profile.ID, nil
}

func (s *EnrollmentService) mapEnrollError(err error) *appErrors.Error {
	var appErr *appErrors.Error
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, repository.ErrStudentProfileNotFound):
		return appErrors.Clone(appErrors.ErrNotFound, "student not found")
	case errors.Is(err, repository.ErrSectionNotFound):
		return appErrors.Clone(appErrors.ErrNotFound, "section not found")
	}
	if classified := database.Classify(err); classified != nil {
		return classified
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enroll")
}

// ChangeStatus moves an enrollment to a new status, recording history.
func (s *EnrollmentService) ChangeStatus(ctx context.Context, actor Actor, id string, req dto.ChangeEnrollmentStatusRequest) (*models.Enrollment, error) {
	tracer := otel.Tracer("github.com/noah-isme/fasch-registrar-api/internal/service/enrollment")
	ctx, span := tracer.Start(ctx, "enrollment.change_status")
	span.SetAttributes(attribute.String("enrollment.id", id), attribute.String("enrollment.status", string(req.Status)))
	defer span.End()

	if err := s.validator.Struct(req); err != nil {
		span.SetStatus(codes.Error, "validation_failed")
		return nil, appErrors.FromValidation(err, "invalid status payload")
	}

	updated, err := s.repo.ChangeStatus(ctx, id, func(current *models.Enrollment) (*models.EnrollmentHistory, error) {
		if err := CheckTransition(current.Status, req.Status); err != nil {
			return nil, err
		}
		return &models.EnrollmentHistory{NewStatus: req.Status, ChangedBy: actor.idPtr(), Reason: req.Reason}, nil
	})
	if err != nil {
		span.RecordError(err)
		var appErr *appErrors.Error
		switch {
		case errors.As(err, &appErr):
			span.SetStatus(codes.Error, appErr.Code)
			return nil, appErr
		case errors.Is(err, sql.ErrNoRows):
			span.SetStatus(codes.Error, "not_found")
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		span.SetStatus(codes.Error, "change_failed")
		if classified := database.Classify(err); classified != nil {
			return nil, classified
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to change enrollment status")
	}

	if err := s.publisher.Publish(ctx, events.EnrollmentStatusChanged, updated); err != nil {
		s.logger.Warn("failed to publish status event", zap.String("enrollment_id", id), zap.Error(err))
	}
	s.cache.ForgetStudent(ctx, updated.StudentID)
	return updated, nil
}

// Drop lets a student drop one of their own enrollments.
func (s *EnrollmentService) Drop(ctx context.Context, actor Actor, id, reason string) (*models.Enrollment, error) {
	if actor.Role == models.RoleStudent {
		profile, err := s.students.FindStudentByUserID(ctx, actor.UserID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrForbidden, "student profile required")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student profile")
		}
		enrollment, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if enrollment.StudentID != profile.ID {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
	}
	return s.ChangeStatus(ctx, actor, id, dto.ChangeEnrollmentStatusRequest{Status: models.EnrollmentStatusDropped, Reason: reason})
}

// Get returns one enrollment.
func (s *EnrollmentService) Get(ctx context.Context, id string) (*models.Enrollment, error) {
	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return enrollment, nil
}

// List returns enrollments with pagination metadata. Students only see their
// own enrollments.
func (s *EnrollmentService) List(ctx context.Context, actor Actor, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	if actor.Role == models.RoleStudent {
		studentID, err := s.resolveStudent(ctx, actor, "")
		if err != nil {
			return nil, nil, err
		}
		filter.StudentID = studentID
	}
	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return enrollments, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// History returns the status history of an enrollment, newest first.
func (s *EnrollmentService) History(ctx context.Context, id string) ([]models.EnrollmentHistory, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	history, err := s.repo.History(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment history")
	}
	return history, nil
}

// Counters summarises a student's enrollments by status.
func (s *EnrollmentService) Counters(ctx context.Context, actor Actor, studentID string) (*models.EnrollmentCounters, error) {
	if actor.Role == models.RoleStudent {
		resolved, err := s.resolveStudent(ctx, actor, studentID)
		if err != nil {
			return nil, err
		}
		studentID = resolved
	}
	counters, err := s.repo.Counters(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count enrollments")
	}
	return counters, nil
}
