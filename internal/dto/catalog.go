package dto

import "github.com/noah-isme/fasch-registrar-api/internal/models"

// CreateDepartmentRequest defines payload for creating a department.
type CreateDepartmentRequest struct {
	Code        models.DepartmentCode `json:"code" validate:"required,oneof=PSYCHO COMM SOCIO SERVSOC"`
	Name        string                `json:"name" validate:"required,max=100"`
	Description string                `json:"description"`
	HeadID      *string               `json:"head_id" validate:"omitempty,uuid"`
}

// CreateCourseRequest defines payload for adding a course to the catalog.
type CreateCourseRequest struct {
	Code         string  `json:"code" validate:"required,max=20"`
	Name         string  `json:"name" validate:"required,max=200"`
	Description  string  `json:"description"`
	Credits      int     `json:"credits" validate:"required,gt=0"`
	YearLevel    int     `json:"year_level" validate:"required,min=1,max=4"`
	DepartmentID *string `json:"department_id" validate:"omitempty,uuid"`
}

// UpdateCourseRequest carries optional course changes.
type UpdateCourseRequest struct {
	Name         *string `json:"name" validate:"omitempty,max=200"`
	Description  *string `json:"description"`
	Credits      *int    `json:"credits" validate:"omitempty,gt=0"`
	YearLevel    *int    `json:"year_level" validate:"omitempty,min=1,max=4"`
	DepartmentID *string `json:"department_id" validate:"omitempty,uuid"`
	Active       *bool   `json:"active"`
}

// CreateSectionRequest defines payload for scheduling a course section.
type CreateSectionRequest struct {
	CourseID      string           `json:"course_id" validate:"required,uuid"`
	SectionNumber string           `json:"section_number" validate:"required,max=10"`
	ProfessorID   *string          `json:"professor_id" validate:"omitempty,uuid"`
	Day           models.Weekday   `json:"day" validate:"required,oneof=MONDAY TUESDAY WEDNESDAY THURSDAY FRIDAY SATURDAY"`
	StartTime     models.ClockTime `json:"start_time"`
	EndTime       models.ClockTime `json:"end_time"`
	Room          string           `json:"room" validate:"max=50"`
	Session       models.Session   `json:"session" validate:"required,oneof=SESSION_1 SESSION_2"`
	Semester      models.Semester  `json:"semester" validate:"required,oneof=FALL SPRING SUMMER"`
	Year          int              `json:"year" validate:"required,min=2000,max=2100"`
	MaxStudents   int              `json:"max_students" validate:"omitempty,gt=0"`
	IsOpen        *bool            `json:"is_open"`
}

// UpdateSectionRequest carries optional section changes.
type UpdateSectionRequest struct {
	ProfessorID *string           `json:"professor_id" validate:"omitempty,uuid"`
	Day         *models.Weekday   `json:"day" validate:"omitempty,oneof=MONDAY TUESDAY WEDNESDAY THURSDAY FRIDAY SATURDAY"`
	StartTime   *models.ClockTime `json:"start_time"`
	EndTime     *models.ClockTime `json:"end_time"`
	Room        *string           `json:"room" validate:"omitempty,max=50"`
	MaxStudents *int              `json:"max_students" validate:"omitempty,gt=0"`
	IsOpen      *bool             `json:"is_open"`
}

// PrerequisiteRequest adds an edge course -> prerequisite.
type PrerequisiteRequest struct {
	PrerequisiteCourseID string `json:"prerequisite_course_id" validate:"required,uuid"`
}
