package models

import "time"

// Transcript is the derived aggregate of a student's term.
type Transcript struct {
	ID               string    `db:"id" json:"id"`
	StudentID        string    `db:"student_id" json:"student_id"`
	Semester         Semester  `db:"semester" json:"semester"`
	Year             int       `db:"year" json:"year"`
	GPA              *float64  `db:"gpa" json:"gpa"`
	CreditsAttempted int       `db:"credits_attempted" json:"credits_attempted"`
	CreditsEarned    int       `db:"credits_earned" json:"credits_earned"`
	GeneratedAt      time.Time `db:"generated_at" json:"generated_at"`
}

// GradedCourse is one enrollment as seen by GPA computation.
type GradedCourse struct {
	EnrollmentID string           `db:"enrollment_id" json:"enrollment_id"`
	CourseCode   string           `db:"course_code" json:"course_code"`
	CourseName   string           `db:"course_name" json:"course_name"`
	Credits      int              `db:"credits" json:"credits"`
	Status       EnrollmentStatus `db:"status" json:"status"`
	Semester     Semester         `db:"semester" json:"semester"`
	Year         int              `db:"year" json:"year"`
	FinalGrade   *float64         `db:"final_grade" json:"final_grade"`
	LetterGrade  string           `db:"letter_grade" json:"letter_grade"`
}

// TranscriptDetail is a transcript with the courses it was computed from.
type TranscriptDetail struct {
	Transcript
	StudentNumber string         `json:"student_number"`
	StudentName   string         `json:"student_name"`
	Courses       []GradedCourse `json:"courses"`
}
