package models

import (
	"fmt"
	"time"
)

// ProfileKind names the three role-specific profile tables.
type ProfileKind string

const (
	ProfileStudent   ProfileKind = "STUDENT"
	ProfileProfessor ProfileKind = "PROFESSOR"
	ProfileAdmin     ProfileKind = "ADMIN"
)

// AllProfileKinds lists every profile kind.
var AllProfileKinds = []ProfileKind{ProfileStudent, ProfileProfessor, ProfileAdmin}

// ProfileKindForRole returns the profile a role must hold. Superusers hold
// none, reported by ok=false.
func ProfileKindForRole(role UserRole) (kind ProfileKind, ok bool) {
	switch role {
	case RoleStudent:
		return ProfileStudent, true
	case RoleProfessor:
		return ProfileProfessor, true
	case RoleAdmin:
		return ProfileAdmin, true
	}
	return "", false
}

// DefaultProfileNumber formats the identifier assigned to a freshly created
// profile from its sequence value.
func DefaultProfileNumber(kind ProfileKind, seq int64) string {
	switch kind {
	case ProfileStudent:
		return fmt.Sprintf("STU%04d", seq)
	case ProfileProfessor:
		return fmt.Sprintf("PROF%04d", seq)
	case ProfileAdmin:
		return fmt.Sprintf("ADM%04d", seq)
	}
	return ""
}

// StudentProfile holds student specific attributes.
type StudentProfile struct {
	ID             string    `db:"id" json:"id"`
	UserID         string    `db:"user_id" json:"user_id"`
	StudentNumber  string    `db:"student_number" json:"student_number"`
	DepartmentID   *string   `db:"department_id" json:"department_id,omitempty"`
	CurrentYear    int       `db:"current_year" json:"current_year"`
	EnrollmentDate time.Time `db:"enrollment_date" json:"enrollment_date"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// ProfessorProfile holds professor specific attributes.
type ProfessorProfile struct {
	ID              string    `db:"id" json:"id"`
	UserID          string    `db:"user_id" json:"user_id"`
	ProfessorNumber string    `db:"professor_number" json:"professor_number"`
	DepartmentID    *string   `db:"department_id" json:"department_id,omitempty"`
	Specialization  string    `db:"specialization" json:"specialization"`
	HireDate        time.Time `db:"hire_date" json:"hire_date"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// AdminProfile holds administrative staff attributes.
type AdminProfile struct {
	ID          string    `db:"id" json:"id"`
	UserID      string    `db:"user_id" json:"user_id"`
	AdminNumber string    `db:"admin_number" json:"admin_number"`
	Position    string    `db:"position" json:"position"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// ProfileSet is the set of profiles currently stored for one user.
type ProfileSet struct {
	Student   *StudentProfile   `json:"student,omitempty"`
	Professor *ProfessorProfile `json:"professor,omitempty"`
	Admin     *AdminProfile     `json:"admin,omitempty"`
}

// Count returns how many profiles are present.
func (p ProfileSet) Count() int {
	n := 0
	if p.Student != nil {
		n++
	}
	if p.Professor != nil {
		n++
	}
	if p.Admin != nil {
		n++
	}
	return n
}

// Has reports whether a profile of kind exists.
func (p ProfileSet) Has(kind ProfileKind) bool {
	switch kind {
	case ProfileStudent:
		return p.Student != nil
	case ProfileProfessor:
		return p.Professor != nil
	case ProfileAdmin:
		return p.Admin != nil
	}
	return false
}
