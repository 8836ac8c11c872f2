package models

import "time"

// DepartmentCode is the closed set of faculty departments.
type DepartmentCode string

const (
	DepartmentPsychology    DepartmentCode = "PSYCHO"
	DepartmentCommunication DepartmentCode = "COMM"
	DepartmentSociology     DepartmentCode = "SOCIO"
	DepartmentSocialService DepartmentCode = "SERVSOC"
)

// Valid reports whether c belongs to the enumeration.
func (c DepartmentCode) Valid() bool {
	switch c {
	case DepartmentPsychology, DepartmentCommunication, DepartmentSociology, DepartmentSocialService:
		return true
	}
	return false
}

// Weekday is the day a section meets.
type Weekday string

const (
	Monday    Weekday = "MONDAY"
	Tuesday   Weekday = "TUESDAY"
	Wednesday Weekday = "WEDNESDAY"
	Thursday  Weekday = "THURSDAY"
	Friday    Weekday = "FRIDAY"
	Saturday  Weekday = "SATURDAY"
)

// Session splits a semester in two teaching periods.
type Session string

const (
	Session1 Session = "SESSION_1"
	Session2 Session = "SESSION_2"
)

// Semester of the academic year.
type Semester string

const (
	SemesterFall   Semester = "FALL"
	SemesterSpring Semester = "SPRING"
	SemesterSummer Semester = "SUMMER"
)

// DefaultMaxStudents is the capacity assigned when none is given.
const DefaultMaxStudents = 30

// Department groups courses and professors.
type Department struct {
	ID          string         `db:"id" json:"id"`
	Code        DepartmentCode `db:"code" json:"code"`
	Name        string         `db:"name" json:"name"`
	Description string         `db:"description" json:"description"`
	HeadID      *string        `db:"head_id" json:"head_id,omitempty"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
}

// Course is an entry of the catalog.
type Course struct {
	ID           string    `db:"id" json:"id"`
	Code         string    `db:"code" json:"code"`
	Name         string    `db:"name" json:"name"`
	Description  string    `db:"description" json:"description"`
	Credits      int       `db:"credits" json:"credits"`
	YearLevel    int       `db:"year_level" json:"year_level"`
	DepartmentID *string   `db:"department_id" json:"department_id,omitempty"`
	Active       bool      `db:"active" json:"active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// CourseFilter filters catalog listings.
type CourseFilter struct {
	DepartmentID string
	YearLevel    int
	Active       *bool
	Search       string
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}

// CourseSection is a scheduled offering of a course.
type CourseSection struct {
	ID            string    `db:"id" json:"id"`
	CourseID      string    `db:"course_id" json:"course_id"`
	SectionNumber string    `db:"section_number" json:"section_number"`
	ProfessorID   *string   `db:"professor_id" json:"professor_id,omitempty"`
	Day           Weekday   `db:"day" json:"day"`
	StartTime     ClockTime `db:"start_time" json:"start_time"`
	EndTime       ClockTime `db:"end_time" json:"end_time"`
	Room          string    `db:"room" json:"room"`
	Session       Session   `db:"session" json:"session"`
	Semester      Semester  `db:"semester" json:"semester"`
	Year          int       `db:"year" json:"year"`
	MaxStudents   int       `db:"max_students" json:"max_students"`
	IsOpen        bool      `db:"is_open" json:"is_open"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// SectionDetail enriches a section with its course and occupancy.
type SectionDetail struct {
	CourseSection
	CourseCode    string  `db:"course_code" json:"course_code"`
	CourseName    string  `db:"course_name" json:"course_name"`
	Credits       int     `db:"credits" json:"credits"`
	ProfessorName *string `db:"professor_name" json:"professor_name,omitempty"`
	EnrolledCount int     `db:"enrolled_count" json:"enrolled_count"`
}

// AvailableSeats returns the remaining capacity, never negative.
func (s SectionDetail) AvailableSeats() int {
	if s.EnrolledCount >= s.MaxStudents {
		return 0
	}
	return s.MaxStudents - s.EnrolledCount
}

// SectionFilter filters section listings.
type SectionFilter struct {
	CourseID    string
	ProfessorID string
	Session     Session
	Semester    Semester
	Year        int
	OpenOnly    bool
	Page        int
	PageSize    int
}

// Prerequisite is a directed edge course -> required course.
type Prerequisite struct {
	ID                   string    `db:"id" json:"id"`
	CourseID             string    `db:"course_id" json:"course_id"`
	PrerequisiteCourseID string    `db:"prerequisite_course_id" json:"prerequisite_course_id"`
	CreatedAt            time.Time `db:"created_at" json:"created_at"`
}
