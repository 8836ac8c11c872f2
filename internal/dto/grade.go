package dto

// GradeEntryRequest sets grade components of one enrollment. Omitted
// components keep their value; ClearComponents lists components to unset.
type GradeEntryRequest struct {
	MidtermExam     *float64 `json:"midterm_exam"`
	FinalExam       *float64 `json:"final_exam"`
	Assignments     *float64 `json:"assignments"`
	Participation   *float64 `json:"participation"`
	Project         *float64 `json:"project"`
	ClearComponents []string `json:"clear_components" validate:"omitempty,dive,oneof=midterm_exam final_exam assignments participation project"`
	Comments        *string  `json:"comments" validate:"omitempty,max=2000"`
	Reason          string   `json:"reason" validate:"max=500"`
}

// BulkGradeEntry is one line of a section grade sheet.
type BulkGradeEntry struct {
	EnrollmentID string `json:"enrollment_id" validate:"required,uuid"`
	GradeEntryRequest
}

// BulkGradeRequest records grades for several enrollments of a section.
type BulkGradeRequest struct {
	Entries []BulkGradeEntry `json:"entries" validate:"required,min=1,dive"`
}

// RecalculateGradesRequest recomputes cached finals for an explicit id set.
type RecalculateGradesRequest struct {
	GradeIDs []string `json:"grade_ids" validate:"required,min=1,dive,uuid"`
}

// GenerateTranscriptRequest selects the term to aggregate.
type GenerateTranscriptRequest struct {
	StudentID string `json:"student_id" validate:"required,uuid"`
	Semester  string `json:"semester" validate:"required,oneof=FALL SPRING SUMMER"`
	Year      int    `json:"year" validate:"required,min=2000,max=2100"`
}
