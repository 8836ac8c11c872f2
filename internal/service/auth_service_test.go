package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/fasch-registrar-api/internal/models"
	appErrors "github.com/noah-isme/fasch-registrar-api/pkg/errors"
)

type mockAuthRepo struct {
	userByEmail       *models.User
	findByEmailErr    error
	updatePasswordErr error
	mustChange        *bool
	auditLogs         []*models.AuditLog
	lastLoginUpdated  bool
}

func (m *mockAuthRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.findByEmailErr != nil {
		return nil, m.findByEmailErr
	}
	if m.userByEmail == nil || m.userByEmail.Email != email {
		return nil, sql.ErrNoRows
	}
	return m.userByEmail, nil
}

func (m *mockAuthRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if m.userByEmail == nil || m.userByEmail.ID != id {
		return nil, sql.ErrNoRows
	}
	return m.userByEmail, nil
}

func (m *mockAuthRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	m.lastLoginUpdated = true
	return nil
}

func (m *mockAuthRepo) UpdatePassword(ctx context.Context, id, passwordHash string, mustChange bool, updatedAt time.Time) error {
	if m.updatePasswordErr != nil {
		return m.updatePasswordErr
	}
	m.userByEmail.PasswordHash = passwordHash
	m.userByEmail.MustChangePassword = mustChange
	m.mustChange = &mustChange
	return nil
}

func (m *mockAuthRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.auditLogs = append(m.auditLogs, log)
	return nil
}

func newAuthFixture(t *testing.T, active, mustChange bool) (*AuthService, *mockAuthRepo) {
	t.Helper()
	password, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	require.NoError(t, err)
	repo := &mockAuthRepo{userByEmail: &models.User{
		ID: "123", Email: "prof@fasch.edu", FirstName: "Rose", LastName: "Michel",
		PasswordHash: string(password), Active: active, MustChangePassword: mustChange, Role: models.RoleProfessor,
	}}
	svc := NewAuthService(repo, nil, zap.NewNop(), AuthConfig{
		AccessTokenSecret: "secret",
		AccessTokenExpiry: time.Hour,
		Issuer:            "fasch-registrar",
	})
	return svc, repo
}

func TestAuthServiceLoginSuccess(t *testing.T) {
	svc, repo := newAuthFixture(t, true, true)

	res, err := svc.Login(context.Background(), models.LoginRequest{Email: "prof@fasch.edu", Password: "password123"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.True(t, res.MustChangePassword)
	assert.Equal(t, "Rose Michel", res.User.FullName)
	assert.Equal(t, int64(3600), res.ExpiresIn)
	assert.True(t, repo.lastLoginUpdated)
	require.Len(t, repo.auditLogs, 1)

	claims, err := svc.ValidateToken(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "123", claims.UserID)
	assert.Equal(t, models.RoleProfessor, claims.Role)
	assert.Equal(t, "fasch-registrar", claims.Issuer)
}

func TestAuthServiceLoginFailures(t *testing.T) {
	svc, _ := newAuthFixture(t, true, false)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "prof@fasch.edu", Password: "wrong"})
	assert.ErrorIs(t, err, appErrors.ErrInvalidCredentials)

	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "nobody@fasch.edu", Password: "password123"})
	assert.ErrorIs(t, err, appErrors.ErrInvalidCredentials)

	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "not-an-email", Password: "x"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	inactive, _ := newAuthFixture(t, false, false)
	_, err = inactive.Login(context.Background(), models.LoginRequest{Email: "prof@fasch.edu", Password: "password123"})
	assert.ErrorIs(t, err, appErrors.ErrInactiveAccount)
}

func TestAuthServiceChangePasswordClearsFlag(t *testing.T) {
	svc, repo := newAuthFixture(t, true, true)

	err := svc.ChangePassword(context.Background(), "123", models.ChangePasswordRequest{OldPassword: "password123", NewPassword: "n3w-password"})
	require.NoError(t, err)
	require.NotNil(t, repo.mustChange)
	assert.False(t, *repo.mustChange)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.userByEmail.PasswordHash), []byte("n3w-password")))

	err = svc.ChangePassword(context.Background(), "123", models.ChangePasswordRequest{OldPassword: "password123", NewPassword: "another-one"})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestAuthServiceValidateTokenRejectsForeignSecret(t *testing.T) {
	svc, _ := newAuthFixture(t, true, false)
	res, err := svc.Login(context.Background(), models.LoginRequest{Email: "prof@fasch.edu", Password: "password123"})
	require.NoError(t, err)

	other := NewAuthService(&mockAuthRepo{}, nil, nil, AuthConfig{AccessTokenSecret: "different"})
	_, err = other.ValidateToken(res.AccessToken)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}
