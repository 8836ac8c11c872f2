package dto

import "github.com/noah-isme/fasch-registrar-api/internal/models"

// CandidatureRequest creates or edits a draft candidature.
type CandidatureRequest struct {
	FirstName        string  `json:"first_name" validate:"required,max=100"`
	LastName         string  `json:"last_name" validate:"required,max=100"`
	Email            string  `json:"email" validate:"required,email"`
	Phone            string  `json:"phone" validate:"required,haitiphone"`
	DepartmentID     *string `json:"department_id" validate:"omitempty,uuid"`
	MotivationLetter string  `json:"motivation_letter" validate:"max=5000"`
	AcceptedTerms    bool    `json:"accepted_terms"`
}

// ReviewCandidatureRequest moves a submitted candidature through review.
type ReviewCandidatureRequest struct {
	Status models.CandidatureStatus `json:"status" validate:"required,oneof=IN_REVIEW ACCEPTED REFUSED"`
	Note   string                   `json:"note" validate:"max=2000"`
}
