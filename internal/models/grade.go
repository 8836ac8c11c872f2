package models

import "time"

// Grade component names.
const (
	ComponentMidterm       = "midterm_exam"
	ComponentFinalExam     = "final_exam"
	ComponentAssignments   = "assignments"
	ComponentParticipation = "participation"
	ComponentProject       = "project"
)

// ComponentNames lists the components in display order.
var ComponentNames = []string{
	ComponentMidterm,
	ComponentFinalExam,
	ComponentAssignments,
	ComponentParticipation,
	ComponentProject,
}

// GradeComponents holds the optional scores of one enrollment.
type GradeComponents struct {
	MidtermExam   *float64 `db:"midterm_exam" json:"midterm_exam"`
	FinalExam     *float64 `db:"final_exam" json:"final_exam"`
	Assignments   *float64 `db:"assignments" json:"assignments"`
	Participation *float64 `db:"participation" json:"participation"`
	Project       *float64 `db:"project" json:"project"`
}

// Get returns the score stored for a component name.
func (c GradeComponents) Get(name string) *float64 {
	switch name {
	case ComponentMidterm:
		return c.MidtermExam
	case ComponentFinalExam:
		return c.FinalExam
	case ComponentAssignments:
		return c.Assignments
	case ComponentParticipation:
		return c.Participation
	case ComponentProject:
		return c.Project
	}
	return nil
}

// Set stores value for a component name. Unknown names are ignored.
func (c *GradeComponents) Set(name string, value *float64) {
	switch name {
	case ComponentMidterm:
		c.MidtermExam = value
	case ComponentFinalExam:
		c.FinalExam = value
	case ComponentAssignments:
		c.Assignments = value
	case ComponentParticipation:
		c.Participation = value
	case ComponentProject:
		c.Project = value
	}
}

// Grade is the grade sheet of one enrollment. FinalGrade and LetterGrade are
// derived from the components on every write.
type Grade struct {
	ID           string `db:"id" json:"id"`
	EnrollmentID string `db:"enrollment_id" json:"enrollment_id"`
	GradeComponents
	FinalGrade  *float64  `db:"final_grade" json:"final_grade"`
	LetterGrade string    `db:"letter_grade" json:"letter_grade"`
	Comments    string    `db:"comments" json:"comments"`
	GradedBy    *string   `db:"graded_by" json:"graded_by,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// GradeDetail joins a grade with its enrollment context.
type GradeDetail struct {
	Grade
	StudentID        string           `db:"student_id" json:"student_id"`
	StudentUserID    string           `db:"student_user_id" json:"-"`
	StudentEmail     string           `db:"student_email" json:"-"`
	StudentName      string           `db:"student_name" json:"student_name"`
	SectionID        string           `db:"section_id" json:"section_id"`
	CourseCode       string           `db:"course_code" json:"course_code"`
	CourseName       string           `db:"course_name" json:"course_name"`
	EnrollmentStatus EnrollmentStatus `db:"enrollment_status" json:"enrollment_status"`
}

// GradeHistory records one component change.
type GradeHistory struct {
	ID         string    `db:"id" json:"id"`
	GradeID    string    `db:"grade_id" json:"grade_id"`
	Component  string    `db:"component" json:"component"`
	OldValue   *float64  `db:"old_value" json:"old_value"`
	NewValue   *float64  `db:"new_value" json:"new_value"`
	ModifiedBy *string   `db:"modified_by" json:"modified_by,omitempty"`
	Reason     string    `db:"reason" json:"reason"`
	ModifiedAt time.Time `db:"modified_at" json:"modified_at"`
}

// GradeChange describes a component that changed in one write.
type GradeChange struct {
	Component string   `json:"component"`
	OldValue  *float64 `json:"old_value"`
	NewValue  *float64 `json:"new_value"`
}

// CourseStatistics aggregates the grades of one section.
type CourseStatistics struct {
	SectionID    string         `json:"section_id"`
	Count        int            `json:"count"`
	Average      *float64       `json:"average"`
	Distribution map[string]int `json:"distribution"`
	SuccessRate  *float64       `json:"success_rate"`
}
