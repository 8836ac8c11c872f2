package service

import (
	"fmt"
	"math"

	"github.com/noah-isme/fasch-registrar-api/internal/models"
	appErrors "github.com/noah-isme/fasch-registrar-api/pkg/errors"
)

// ComponentWeights are the contributions of each component to the final grade.
var ComponentWeights = map[string]float64{
	models.ComponentMidterm:       0.25,
	models.ComponentFinalExam:     0.35,
	models.ComponentAssignments:   0.20,
	models.ComponentParticipation: 0.10,
	models.ComponentProject:       0.10,
}

// PassingGrade is the lowest passing final grade.
const PassingGrade = 60.0

var letterThresholds = []struct {
	min    float64
	letter string
	points float64
}{
	{90, "A", 4},
	{80, "B", 3},
	{70, "C", 2},
	{60, "D", 1},
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ValidateComponents rejects scores outside [0, 100].
func ValidateComponents(c models.GradeComponents) error {
	details := map[string]string{}
	for _, name := range models.ComponentNames {
		if v := c.Get(name); v != nil && (*v < 0 || *v > 100 || math.IsNaN(*v)) {
			details[name] = fmt.Sprintf("score %.2f outside 0..100", *v)
		}
	}
	if len(details) > 0 {
		return appErrors.Validation("grade components out of range", details)
	}
	return nil
}

// ComputeFinal returns the weighted average of the present components,
// renormalised over their weights and rounded to two decimals. It returns nil
// when no component is present.
func ComputeFinal(c models.GradeComponents) (*float64, error) {
	if err := ValidateComponents(c); err != nil {
		return nil, err
	}
	var sum, weights float64
	for _, name := range models.ComponentNames {
		if v := c.Get(name); v != nil {
			w := ComponentWeights[name]
			sum += *v * w
			weights += w
		}
	}
	if weights == 0 {
		return nil, nil
	}
	final := round2(sum / weights)
	return &final, nil
}

// LetterGrade maps a final grade to its letter; nil maps to "".
func LetterGrade(final *float64) string {
	if final == nil {
		return ""
	}
	for _, t := range letterThresholds {
		if *final >= t.min {
			return t.letter
		}
	}
	return "F"
}

// GradePoints maps a final grade to its GPA points.
func GradePoints(final float64) float64 {
	for _, t := range letterThresholds {
		if final >= t.min {
			return t.points
		}
	}
	return 0
}

// IsPassing reports whether a final grade passes.
func IsPassing(final float64) bool {
	return final >= PassingGrade
}

// GPAResult is the outcome of ComputeGPA.
type GPAResult struct {
	GPA              *float64
	CreditsAttempted int
	CreditsEarned    int
}

// ComputeGPA aggregates COMPLETED courses having a final grade, weighted by
// credits. GPA is nil when no credits contribute.
func ComputeGPA(courses []models.GradedCourse) GPAResult {
	var result GPAResult
	var points float64
	for _, course := range courses {
		if course.Status != models.EnrollmentStatusCompleted || course.FinalGrade == nil {
			continue
		}
		result.CreditsAttempted += course.Credits
		points += GradePoints(*course.FinalGrade) * float64(course.Credits)
		if IsPassing(*course.FinalGrade) {
			result.CreditsEarned += course.Credits
		}
	}
	if result.CreditsAttempted > 0 {
		gpa := round2(points / float64(result.CreditsAttempted))
		result.GPA = &gpa
	}
	return result
}

// SectionStatistics summarises the final grades of a section. Average and
// success rate are nil without grades; the success rate is the percentage of
// passing finals rounded to a whole number.
func SectionStatistics(sectionID string, finals []float64) models.CourseStatistics {
	stats := models.CourseStatistics{
		SectionID:    sectionID,
		Count:        len(finals),
		Distribution: map[string]int{"A": 0, "B": 0, "C": 0, "D": 0, "F": 0},
	}
	if len(finals) == 0 {
		return stats
	}
	var sum float64
	passing := 0
	for _, f := range finals {
		final := f
		sum += final
		stats.Distribution[LetterGrade(&final)]++
		if IsPassing(final) {
			passing++
		}
	}
	average := round2(sum / float64(len(finals)))
	rate := math.Round(float64(passing) * 100 / float64(len(finals)))
	stats.Average = &average
	stats.SuccessRate = &rate
	return stats
}
