package dto

import "github.com/noah-isme/fasch-registrar-api/internal/models"

// CreateUserRequest defines payload for creating a user account.
type CreateUserRequest struct {
	Email     string          `json:"email" validate:"required,email"`
	Password  string          `json:"password" validate:"required,min=8"`
	FirstName string          `json:"first_name" validate:"required,max=150"`
	LastName  string          `json:"last_name" validate:"required,max=150"`
	Role      models.UserRole `json:"role" validate:"required,oneof=STUDENT PROFESSOR ADMIN SUPERUSER"`
	Phone     *string         `json:"phone" validate:"omitempty,phone"`
}

// UpdateUserRequest carries the mutable fields of a user. Nil fields are left
// unchanged.
type UpdateUserRequest struct {
	FirstName *string          `json:"first_name" validate:"omitempty,max=150"`
	LastName  *string          `json:"last_name" validate:"omitempty,max=150"`
	Role      *models.UserRole `json:"role" validate:"omitempty,oneof=STUDENT PROFESSOR ADMIN SUPERUSER"`
	Phone     *string          `json:"phone" validate:"omitempty,phone"`
	Active    *bool            `json:"active"`
}

// BulkUserStatusRequest activates or deactivates an explicit set of users.
type BulkUserStatusRequest struct {
	UserIDs []string `json:"user_ids" validate:"required,min=1,dive,required"`
	Active  bool     `json:"active"`
}

// BulkResult reports the outcome of an operation over an explicit id set.
type BulkResult struct {
	Succeeded []string          `json:"succeeded"`
	Failed    map[string]string `json:"failed,omitempty"`
}

// UserWithProfiles is returned by user reads.
type UserWithProfiles struct {
	models.User
	Profiles models.ProfileSet `json:"profiles"`
}

// UpdateStudentProfileRequest sets the academic placement of a student.
type UpdateStudentProfileRequest struct {
	DepartmentID *string `json:"department_id" validate:"omitempty,uuid"`
	CurrentYear  *int    `json:"current_year" validate:"omitempty,min=1,max=4"`
}

// UpdateProfessorProfileRequest sets the attributes of a professor.
type UpdateProfessorProfileRequest struct {
	DepartmentID   *string `json:"department_id" validate:"omitempty,uuid"`
	Specialization *string `json:"specialization" validate:"omitempty,max=200"`
}

// ResetPasswordRequest lets an administrator set a temporary password.
type ResetPasswordRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}
