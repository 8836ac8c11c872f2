package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses. ENROLLED is the only non-terminal one.
const (
	EnrollmentStatusEnrolled  EnrollmentStatus = "ENROLLED"
	EnrollmentStatusDropped   EnrollmentStatus = "DROPPED"
	EnrollmentStatusCompleted EnrollmentStatus = "COMPLETED"
	EnrollmentStatusFailed    EnrollmentStatus = "FAILED"
)

// Valid reports whether s is a known status.
func (s EnrollmentStatus) Valid() bool {
	switch s {
	case EnrollmentStatusEnrolled, EnrollmentStatusDropped, EnrollmentStatusCompleted, EnrollmentStatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is allowed from s.
func (s EnrollmentStatus) IsTerminal() bool {
	return s.Valid() && s != EnrollmentStatusEnrolled
}

// Enrollment captures a student's registration to a course section.
type Enrollment struct {
	ID         string           `db:"id" json:"id"`
	StudentID  string           `db:"student_id" json:"student_id"`
	SectionID  string           `db:"section_id" json:"section_id"`
	Status     EnrollmentStatus `db:"status" json:"status"`
	EnrolledAt time.Time        `db:"enrolled_at" json:"enrolled_at"`
	DroppedAt  *time.Time       `db:"dropped_at" json:"dropped_at,omitempty"`
	UpdatedAt  time.Time        `db:"updated_at" json:"updated_at"`
}

// EnrollmentDetail enriches Enrollment with student and section info.
type EnrollmentDetail struct {
	Enrollment
	StudentNumber string    `db:"student_number" json:"student_number"`
	StudentName   string    `db:"student_name" json:"student_name"`
	StudentUserID string    `db:"student_user_id" json:"-"`
	StudentEmail  string    `db:"student_email" json:"-"`
	CourseID      string    `db:"course_id" json:"course_id"`
	CourseCode    string    `db:"course_code" json:"course_code"`
	CourseName    string    `db:"course_name" json:"course_name"`
	Credits       int       `db:"credits" json:"credits"`
	SectionNumber string    `db:"section_number" json:"section_number"`
	Day           Weekday   `db:"day" json:"day"`
	StartTime     ClockTime `db:"start_time" json:"start_time"`
	EndTime       ClockTime `db:"end_time" json:"end_time"`
	Session       Session   `db:"session" json:"session"`
	Semester      Semester  `db:"semester" json:"semester"`
	Year          int       `db:"year" json:"year"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	StudentID string
	SectionID string
	Status    EnrollmentStatus
	Session   Session
	Semester  Semester
	Year      int
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// EnrollmentHistory is an immutable status transition record.
type EnrollmentHistory struct {
	ID             string           `db:"id" json:"id"`
	EnrollmentID   string           `db:"enrollment_id" json:"enrollment_id"`
	PreviousStatus EnrollmentStatus `db:"previous_status" json:"previous_status"`
	NewStatus      EnrollmentStatus `db:"new_status" json:"new_status"`
	ChangedBy      *string          `db:"changed_by" json:"changed_by,omitempty"`
	Reason         string           `db:"reason" json:"reason"`
	ChangedAt      time.Time        `db:"changed_at" json:"changed_at"`
}

// EnrollmentCounters summarises a student's enrollments by status.
type EnrollmentCounters struct {
	Enrolled  int `db:"enrolled" json:"enrolled"`
	Completed int `db:"completed" json:"completed"`
	Dropped   int `db:"dropped" json:"dropped"`
	Failed    int `db:"failed" json:"failed"`
}

// ScheduledEnrollment is an ENROLLED row of a student joined with the
// schedule of its section.
type ScheduledEnrollment struct {
	EnrollmentID string    `db:"enrollment_id" json:"enrollment_id"`
	SectionID    string    `db:"section_id" json:"section_id"`
	CourseID     string    `db:"course_id" json:"course_id"`
	CourseCode   string    `db:"course_code" json:"course_code"`
	Day          Weekday   `db:"day" json:"day"`
	StartTime    ClockTime `db:"start_time" json:"start_time"`
	EndTime      ClockTime `db:"end_time" json:"end_time"`
	Session      Session   `db:"session" json:"session"`
	Semester     Semester  `db:"semester" json:"semester"`
	Year         int       `db:"year" json:"year"`
}

// AdmissionSnapshot is the state read under lock that an admission decision
// is evaluated against.
type AdmissionSnapshot struct {
	Section CourseSection
	// SectionEnrolled counts ENROLLED rows of the section.
	SectionEnrolled int
	// Active holds every ENROLLED row of the student.
	Active []ScheduledEnrollment
	// ExistingInSection is the student's row for this section in any status.
	ExistingInSection *Enrollment
}
