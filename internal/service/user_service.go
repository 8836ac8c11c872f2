package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/fasch-registrar-api/internal/dto"
	"github.com/noah-isme/fasch-registrar-api/internal/models"
	appErrors "github.com/noah-isme/fasch-registrar-api/pkg/errors"
	"github.com/noah-isme/fasch-registrar-api/pkg/events"
	"github.com/noah-isme/fasch-registrar-api/pkg/validation"
)

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	SetActive(ctx context.Context, id string, active bool) error
	UpdatePassword(ctx context.Context, id, passwordHash string, mustChange bool, updatedAt time.Time) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type profileReconciler interface {
	ReconcileProfile(ctx context.Context, user *models.User) (models.ProfileSet, error)
	ChangeRole(ctx context.Context, user *models.User) (models.ProfileSet, error)
	Get(ctx context.Context, userID string) (models.ProfileSet, error)
}

// UserService handles user management workflows.
type UserService struct {
	repo      userRepository
	profiles  profileReconciler
	publisher events.Publisher
	validator *validator.Validate
	logger    *zap.Logger
	hashCost  int
}

// NewUserService creates an instance of UserService.
func NewUserService(repo userRepository, profiles profileReconciler, publisher events.Publisher, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validation.New()
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &UserService{repo: repo, profiles: profiles, publisher: publisher, validator: validate, logger: logger, hashCost: bcrypt.DefaultCost}
}

// List returns paginated users and pagination metadata.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	return users, paginate(filter.Page, filter.PageSize, total), nil
}

// Get returns a user with its profiles.
func (s *UserService) Get(ctx context.Context, id string) (*dto.UserWithProfiles, error) {
	user, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	profiles, err := s.profiles.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &dto.UserWithProfiles{User: *user, Profiles: profiles}, nil
}

func (s *UserService) load(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

// Create adds a new user with a temporary password and the profile its role
// requires. The user must change the password on first login.
func (s *UserService) Create(ctx context.Context, req dto.CreateUserRequest, actorID string, meta models.LoginRequest) (*dto.UserWithProfiles, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.FromValidation(err, "invalid create user payload")
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := s.repo.FindByEmail(ctx, email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email uniqueness")
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.hashCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		ID:                 uuid.NewString(),
		Email:              email,
		FirstName:          strings.TrimSpace(req.FirstName),
		LastName:           strings.TrimSpace(req.LastName),
		Role:               req.Role,
		Phone:              req.Phone,
		Active:             true,
		MustChangePassword: true,
		PasswordHash:       string(passwordHash),
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, mapWriteError(err, "failed to create user")
	}

	profiles, err := s.profiles.ReconcileProfile(ctx, user)
	if err != nil {
		return nil, err
	}

	newPayload, _ := json.Marshal(map[string]interface{}{"id": user.ID, "email": user.Email, "role": user.Role})
	s.audit(ctx, &models.AuditLog{
		UserID:     optionalID(actorID),
		Action:     models.AuditActionUserCreate,
		Resource:   "users",
		ResourceID: &user.ID,
		NewValues:  newPayload,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	})

	return &dto.UserWithProfiles{User: *user, Profiles: profiles}, nil
}

// Update modifies the user attributes. A role change is stored together with
// the profile reconciliation and publishes user.role_changed.
func (s *UserService) Update(ctx context.Context, id string, req dto.UpdateUserRequest, actorID string, meta models.LoginRequest) (*dto.UserWithProfiles, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.FromValidation(err, "invalid update payload")
	}

	user, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	oldPayload, _ := json.Marshal(map[string]interface{}{"role": user.Role, "active": user.Active})
	previousRole := user.Role

	if req.FirstName != nil {
		user.FirstName = strings.TrimSpace(*req.FirstName)
	}
	if req.LastName != nil {
		user.LastName = strings.TrimSpace(*req.LastName)
	}
	if req.Role != nil {
		user.Role = *req.Role
	}
	if req.Phone != nil {
		user.Phone = req.Phone
	}
	if req.Active != nil {
		user.Active = *req.Active
	}

	var profiles models.ProfileSet
	if user.Role != previousRole {
		// the row and the profiles are written in one transaction
		profiles, err = s.profiles.ChangeRole(ctx, user)
		if err != nil {
			return nil, err
		}
		payload := map[string]string{"user_id": user.ID, "previous_role": string(previousRole), "role": string(user.Role)}
		if err := s.publisher.Publish(ctx, events.UserRoleChanged, payload); err != nil {
			s.logger.Warn("failed to publish role change", zap.String("user_id", user.ID), zap.Error(err))
		}
	} else {
		if err := s.repo.Update(ctx, user); err != nil {
			return nil, mapWriteError(err, "failed to update user")
		}
		if profiles, err = s.profiles.Get(ctx, user.ID); err != nil {
			return nil, err
		}
	}

	newPayload, _ := json.Marshal(map[string]interface{}{"role": user.Role, "active": user.Active})
	s.audit(ctx, &models.AuditLog{
		UserID:     optionalID(actorID),
		Action:     models.AuditActionUserUpdate,
		Resource:   "users",
		ResourceID: &user.ID,
		OldValues:  oldPayload,
		NewValues:  newPayload,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	})

	return &dto.UserWithProfiles{User: *user, Profiles: profiles}, nil
}

// SetActiveBulk activates or deactivates an explicit set of users. Unknown ids
// are reported as failures; the others are still applied.
func (s *UserService) SetActiveBulk(ctx context.Context, req dto.BulkUserStatusRequest, actorID string, meta models.LoginRequest) (*dto.BulkResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.FromValidation(err, "invalid bulk status payload")
	}

	action := models.AuditActionUserDeactivate
	if req.Active {
		action = models.AuditActionUserActivate
	}
	newPayload, _ := json.Marshal(map[string]interface{}{"active": req.Active})

	result := &dto.BulkResult{Succeeded: []string{}, Failed: map[string]string{}}
	seen := make(map[string]struct{}, len(req.UserIDs))
	for _, id := range req.UserIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		if err := s.repo.SetActive(ctx, id, req.Active); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				result.Failed[id] = "user not found"
				continue
			}
			s.logger.Warn("failed to set user status", zap.String("user_id", id), zap.Error(err))
			result.Failed[id] = "update failed"
			continue
		}
		result.Succeeded = append(result.Succeeded, id)

		userID := id
		s.audit(ctx, &models.AuditLog{
			UserID:     optionalID(actorID),
			Action:     action,
			Resource:   "users",
			ResourceID: &userID,
			NewValues:  newPayload,
			IPAddress:  meta.IP,
			UserAgent:  meta.UserAgent,
		})
	}
	return result, nil
}

// ResetPassword sets a temporary password chosen by an administrator. The
// user must change it on next login.
func (s *UserService) ResetPassword(ctx context.Context, req dto.ResetPasswordRequest, actorID string) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.FromValidation(err, "invalid reset password payload")
	}
	user, err := s.repo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.hashCost)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}
	if err := s.repo.UpdatePassword(ctx, user.ID, string(hash), true, time.Now().UTC()); err != nil {
		return mapWriteError(err, "failed to update password")
	}
	s.audit(ctx, &models.AuditLog{
		UserID:     optionalID(actorID),
		Action:     models.AuditActionPasswordChange,
		Resource:   "users",
		ResourceID: &user.ID,
		NewValues:  []byte(`{"status":"reset"}`),
	})
	return nil
}

func (s *UserService) audit(ctx context.Context, entry *models.AuditLog) {
	if err := s.repo.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", entry.Action), zap.Error(err))
	}
}

func optionalID(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}
