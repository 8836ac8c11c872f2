package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/fasch-registrar-api/internal/dto"
	"github.com/noah-isme/fasch-registrar-api/internal/models"
	"github.com/noah-isme/fasch-registrar-api/internal/repository"
	appErrors "github.com/noah-isme/fasch-registrar-api/pkg/errors"
	"github.com/noah-isme/fasch-registrar-api/pkg/validation"
)

type transcriptStore interface {
	Upsert(ctx context.Context, transcript *models.Transcript) error
	Find(ctx context.Context, studentID string, semester models.Semester, year int) (*models.Transcript, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.Transcript, error)
	ListTerms(ctx context.Context, semester models.Semester, year int) ([]repository.StudentTerm, error)
}

type gradedCourseReader interface {
	GradedCourses(ctx context.Context, studentID string, semester models.Semester, year int) ([]models.GradedCourse, error)
}

type studentDirectory interface {
	FindStudentByID(ctx context.Context, id string) (*models.StudentProfile, error)
	FindStudentByUserID(ctx context.Context, userID string) (*models.StudentProfile, error)
}

type userReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// TranscriptService aggregates term grades into stored transcripts.
type TranscriptService struct {
	repo      transcriptStore
	grades    gradedCourseReader
	students  studentDirectory
	users     userReader
	exporter  *ExportService
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewTranscriptService constructs TranscriptService.
func NewTranscriptService(repo transcriptStore, grades gradedCourseReader, students studentDirectory, users userReader, exporter *ExportService, cacheSvc *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *TranscriptService {
	if validate == nil {
		validate = validation.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if exporter == nil {
		exporter = NewExportService(nil, nil)
	}
	return &TranscriptService{
		repo:      repo,
		grades:    grades,
		students:  students,
		users:     users,
		exporter:  exporter,
		cache:     cacheSvc,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
}

// Generate recomputes and stores the transcript of one student term.
func (s *TranscriptService) Generate(ctx context.Context, actor Actor, req dto.GenerateTranscriptRequest) (*models.TranscriptDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.FromValidation(err, "invalid transcript request")
	}
	if err := s.authorize(ctx, actor, req.StudentID); err != nil {
		return nil, err
	}
	return s.generate(ctx, req.StudentID, models.Semester(req.Semester), req.Year)
}

func (s *TranscriptService) generate(ctx context.Context, studentID string, semester models.Semester, year int) (*models.TranscriptDetail, error) {
	student, err := s.students.FindStudentByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	courses, err := s.grades.GradedCourses(ctx, studentID, semester, year)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load graded courses")
	}

	gpa := ComputeGPA(courses)
	transcript := &models.Transcript{
		StudentID:        studentID,
		Semester:         semester,
		Year:             year,
		GPA:              gpa.GPA,
		CreditsAttempted: gpa.CreditsAttempted,
		CreditsEarned:    gpa.CreditsEarned,
		GeneratedAt:      s.now().UTC(),
	}
	if err := s.repo.Upsert(ctx, transcript); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store transcript")
	}
	s.metrics.RecordTranscript()

	detail := &models.TranscriptDetail{Transcript: *transcript, StudentNumber: student.StudentNumber, Courses: courses}
	if user, err := s.users.FindByID(ctx, student.UserID); err == nil {
		detail.StudentName = user.FullName()
	} else {
		s.logger.Warn("failed to load student name", zap.String("student_id", studentID), zap.Error(err))
	}
	if detail.Courses == nil {
		detail.Courses = []models.GradedCourse{}
	}

	s.cache.Set(ctx, transcriptKey(studentID, semester, year), detail, 0)
	return detail, nil
}

// Get returns the transcript of a term, generating it on first access.
func (s *TranscriptService) Get(ctx context.Context, actor Actor, studentID string, semester models.Semester, year int) (*models.TranscriptDetail, error) {
	if err := s.authorize(ctx, actor, studentID); err != nil {
		return nil, err
	}
	var cached models.TranscriptDetail
	if s.cache.Get(ctx, transcriptKey(studentID, semester, year), &cached) {
		return &cached, nil
	}
	return s.generate(ctx, studentID, semester, year)
}

// List returns the stored transcripts of a student.
func (s *TranscriptService) List(ctx context.Context, actor Actor, studentID string) ([]models.Transcript, error) {
	if err := s.authorize(ctx, actor, studentID); err != nil {
		return nil, err
	}
	transcripts, err := s.repo.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list transcripts")
	}
	return transcripts, nil
}

// Export renders a term transcript as CSV or PDF.
func (s *TranscriptService) Export(ctx context.Context, actor Actor, studentID string, semester models.Semester, year int, format ExportFormat) (*ExportResult, error) {
	detail, err := s.Get(ctx, actor, studentID, semester, year)
	if err != nil {
		return nil, err
	}
	return s.exporter.Transcript(detail, format)
}

// GenerateAll regenerates every transcript, optionally for one term. It is
// used by the admin CLI and returns the number of transcripts written.
func (s *TranscriptService) GenerateAll(ctx context.Context, semester models.Semester, year int) (int, error) {
	return s.ArchiveAll(ctx, semester, year, "", nil)
}

// TranscriptSink stores rendered transcripts.
type TranscriptSink interface {
	Save(filename string, data []byte) (string, error)
}

// ArchiveAll behaves like GenerateAll and additionally hands the rendered
// export of each transcript to sink when one is given.
func (s *TranscriptService) ArchiveAll(ctx context.Context, semester models.Semester, year int, format ExportFormat, sink TranscriptSink) (int, error) {
	terms, err := s.repo.ListTerms(ctx, semester, year)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list student terms")
	}
	written := 0
	for _, term := range terms {
		log := s.logger.With(
			zap.String("student_id", term.StudentID),
			zap.String("semester", string(term.Semester)),
			zap.Int("year", term.Year))
		detail, err := s.generate(ctx, term.StudentID, term.Semester, term.Year)
		if err != nil {
			log.Warn("transcript generation failed", zap.Error(err))
			continue
		}
		written++
		if sink == nil {
			continue
		}
		doc, err := s.exporter.Transcript(detail, format)
		if err != nil {
			return written, err
		}
		if _, err := sink.Save(doc.Filename, doc.Payload); err != nil {
			log.Warn("transcript archive failed", zap.Error(err))
		}
	}
	return written, nil
}

// authorize lets staff read every transcript and students their own.
func (s *TranscriptService) authorize(ctx context.Context, actor Actor, studentID string) error {
	if actor.IsStaff() {
		return nil
	}
	if actor.Role != models.RoleStudent {
		return appErrors.Clone(appErrors.ErrForbidden, "transcripts are restricted to their student and staff")
	}
	profile, err := s.students.FindStudentByUserID(ctx, actor.UserID)
	if err != nil || profile.ID != studentID {
		return appErrors.Clone(appErrors.ErrForbidden, "cannot access another student's transcript")
	}
	return nil
}
