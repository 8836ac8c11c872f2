package dto

import "github.com/noah-isme/fasch-registrar-api/internal/models"

// EnrollRequest asks to enroll a student into a section. StudentID is the
// student profile id and is taken from the token for students.
type EnrollRequest struct {
	StudentID string `json:"student_id" validate:"omitempty,uuid"`
	SectionID string `json:"section_id" validate:"required,uuid"`
}

// ChangeEnrollmentStatusRequest moves an enrollment to another status.
type ChangeEnrollmentStatusRequest struct {
	Status models.EnrollmentStatus `json:"status" validate:"required,oneof=ENROLLED DROPPED COMPLETED FAILED"`
	Reason string                  `json:"reason" validate:"max=500"`
}
