package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/fasch-registrar-api/internal/dto"
	"github.com/noah-isme/fasch-registrar-api/internal/models"
	"github.com/noah-isme/fasch-registrar-api/pkg/database"
	appErrors "github.com/noah-isme/fasch-registrar-api/pkg/errors"
	"github.com/noah-isme/fasch-registrar-api/pkg/validation"
)

type profileStore interface {
	Get(ctx context.Context, userID string) (models.ProfileSet, error)
	FindStudentByUserID(ctx context.Context, userID string) (*models.StudentProfile, error)
	FindProfessorByUserID(ctx context.Context, userID string) (*models.ProfessorProfile, error)
	UpdateStudent(ctx context.Context, profile *models.StudentProfile) error
	UpdateProfessor(ctx context.Context, profile *models.ProfessorProfile) error
	Reconcile(ctx context.Context, userID string, keep models.ProfileKind) (models.ProfileSet, error)
	ChangeRole(ctx context.Context, user *models.User, keep models.ProfileKind) (models.ProfileSet, error)
}

// ProfileService keeps the role specific profiles of users consistent with
// their role.
type ProfileService struct {
	repo      profileStore
	validator *validator.Validate
	logger    *zap.Logger
}

// NewProfileService constructs ProfileService.
func NewProfileService(repo profileStore, validate *validator.Validate, logger *zap.Logger) *ProfileService {
	if validate == nil {
		validate = validation.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProfileService{repo: repo, validator: validate, logger: logger}
}

// ReconcileProfile makes the profile matching the user's role the only one
// the user holds. Superusers end up with none. Repeated calls change nothing.
func (s *ProfileService) ReconcileProfile(ctx context.Context, user *models.User) (models.ProfileSet, error) {
	keep, err := profileKindFor(user)
	if err != nil {
		return models.ProfileSet{}, err
	}
	set, err := s.repo.Reconcile(ctx, user.ID, keep)
	if err != nil {
		return models.ProfileSet{}, mapReconcileError(err)
	}
	s.logger.Debug("profiles reconciled", zap.String("user_id", user.ID), zap.String("role", string(user.Role)), zap.Int("profiles", set.Count()))
	return set, nil
}

// ChangeRole persists user with its new role and reconciles the profiles
// atomically. A student profile removed this way takes its enrollments,
// grades and transcripts with it.
func (s *ProfileService) ChangeRole(ctx context.Context, user *models.User) (models.ProfileSet, error) {
	keep, err := profileKindFor(user)
	if err != nil {
		return models.ProfileSet{}, err
	}
	set, err := s.repo.ChangeRole(ctx, user, keep)
	if err != nil {
		return models.ProfileSet{}, mapReconcileError(err)
	}
	s.logger.Info("role changed", zap.String("user_id", user.ID), zap.String("role", string(user.Role)), zap.Int("profiles", set.Count()))
	return set, nil
}

func profileKindFor(user *models.User) (models.ProfileKind, error) {
	if user == nil {
		return "", appErrors.Clone(appErrors.ErrValidation, "user is required")
	}
	if !user.Role.Valid() {
		return "", appErrors.Validation("unknown role", map[string]string{"role": string(user.Role)})
	}
	keep, _ := models.ProfileKindForRole(user.Role)
	return keep, nil
}

func mapReconcileError(err error) *appErrors.Error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return appErrors.Clone(appErrors.ErrNotFound, "user not found")
	case database.IsForeignKeyViolation(err):
		return appErrors.Wrap(err, appErrors.ErrProfileInUse.Code, appErrors.ErrProfileInUse.Status, appErrors.ErrProfileInUse.Message)
	}
	if classified := database.Classify(err); classified != nil {
		return classified
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reconcile profiles")
}

// Get returns the profiles of a user.
func (s *ProfileService) Get(ctx context.Context, userID string) (models.ProfileSet, error) {
	set, err := s.repo.Get(ctx, userID)
	if err != nil {
		return models.ProfileSet{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load profiles")
	}
	return set, nil
}

// UpdateStudent places a student in a department and year.
func (s *ProfileService) UpdateStudent(ctx context.Context, userID string, req dto.UpdateStudentProfileRequest) (*models.StudentProfile, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.FromValidation(err, "invalid student profile payload")
	}
	profile, err := s.repo.FindStudentByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student profile")
	}
	if req.DepartmentID != nil {
		profile.DepartmentID = req.DepartmentID
	}
	if req.CurrentYear != nil {
		profile.CurrentYear = *req.CurrentYear
	}
	if err := s.repo.UpdateStudent(ctx, profile); err != nil {
		return nil, mapWriteError(err, "failed to update student profile")
	}
	return profile, nil
}

// UpdateProfessor sets the department and specialization of a professor.
func (s *ProfileService) UpdateProfessor(ctx context.Context, userID string, req dto.UpdateProfessorProfileRequest) (*models.ProfessorProfile, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.FromValidation(err, "invalid professor profile payload")
	}
	profile, err := s.repo.FindProfessorByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "professor profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load professor profile")
	}
	if req.DepartmentID != nil {
		profile.DepartmentID = req.DepartmentID
	}
	if req.Specialization != nil {
		profile.Specialization = *req.Specialization
	}
	if err := s.repo.UpdateProfessor(ctx, profile); err != nil {
		return nil, mapWriteError(err, "failed to update professor profile")
	}
	return profile, nil
}
