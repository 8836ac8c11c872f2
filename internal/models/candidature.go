package models

import "time"

// CandidatureStatus tracks an application through review.
type CandidatureStatus string

const (
	CandidatureDraft     CandidatureStatus = "DRAFT"
	CandidatureSubmitted CandidatureStatus = "SUBMITTED"
	CandidatureInReview  CandidatureStatus = "IN_REVIEW"
	CandidatureAccepted  CandidatureStatus = "ACCEPTED"
	CandidatureRefused   CandidatureStatus = "REFUSED"
)

// Candidature is an admission application. It is independent from users and
// enrollments.
type Candidature struct {
	ID               string            `db:"id" json:"id"`
	FirstName        string            `db:"first_name" json:"first_name"`
	LastName         string            `db:"last_name" json:"last_name"`
	Email            string            `db:"email" json:"email"`
	Phone            string            `db:"phone" json:"phone"`
	DepartmentID     *string           `db:"department_id" json:"department_id,omitempty"`
	MotivationLetter string            `db:"motivation_letter" json:"motivation_letter"`
	AcceptedTerms    bool              `db:"accepted_terms" json:"accepted_terms"`
	Status           CandidatureStatus `db:"status" json:"status"`
	SubmittedAt      *time.Time        `db:"submitted_at" json:"submitted_at,omitempty"`
	ReviewedBy       *string           `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewNote       string            `db:"review_note" json:"review_note,omitempty"`
	CreatedAt        time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time         `db:"updated_at" json:"updated_at"`
}

// CandidatureFilter filters candidature listings.
type CandidatureFilter struct {
	Status       CandidatureStatus
	DepartmentID string
	Search       string
	Page         int
	PageSize     int
}
