package service

import (
	"github.com/noah-isme/fasch-registrar-api/internal/models"
	appErrors "github.com/noah-isme/fasch-registrar-api/pkg/errors"
)

// DefaultMaxCoursesPerSession bounds the ENROLLED rows a student may hold in
// one (session, semester, year).
const DefaultMaxCoursesPerSession = 8

// Overlaps reports whether two meetings on the same day intersect. Touching
// intervals do not overlap.
func Overlaps(startA, endA, startB, endB models.ClockTime) bool {
	return !(endA <= startB || startA >= endB)
}

// CheckAdmission evaluates the enrollment rules against a snapshot in their
// fixed order and returns the first violation.
func CheckAdmission(snapshot *models.AdmissionSnapshot, maxPerSession int) error {
	if maxPerSession <= 0 {
		maxPerSession = DefaultMaxCoursesPerSession
	}
	section := snapshot.Section

	for _, active := range snapshot.Active {
		if active.CourseID == section.CourseID {
			e := appErrors.Clone(appErrors.ErrDuplicateCourse, "")
			e.Details = map[string]string{"course": active.CourseCode, "enrollment_id": active.EnrollmentID}
			return e
		}
	}

	sameTerm := 0
	for _, active := range snapshot.Active {
		if sameSession(active, section) {
			sameTerm++
		}
	}
	if sameTerm >= maxPerSession {
		e := appErrors.Clone(appErrors.ErrSessionCapExceeded, "")
		e.Details = map[string]string{"session": string(section.Session)}
		return e
	}

	if !section.IsOpen {
		return appErrors.Clone(appErrors.ErrSectionClosed, "")
	}

	if snapshot.SectionEnrolled >= section.MaxStudents {
		return appErrors.Clone(appErrors.ErrSectionFull, "")
	}

	for _, active := range snapshot.Active {
		if !sameSession(active, section) || active.Day != section.Day {
			continue
		}
		if Overlaps(section.StartTime, section.EndTime, active.StartTime, active.EndTime) {
			e := appErrors.Clone(appErrors.ErrScheduleConflict, "")
			e.Details = map[string]string{
				"course":   active.CourseCode,
				"day":      string(active.Day),
				"schedule": active.StartTime.String() + "-" + active.EndTime.String(),
			}
			return e
		}
	}

	// a DROPPED/COMPLETED/FAILED row still holds the (student, section) key
	if snapshot.ExistingInSection != nil {
		e := appErrors.Clone(appErrors.ErrAlreadyEnrolled, "")
		e.Details = map[string]string{"status": string(snapshot.ExistingInSection.Status)}
		return e
	}
	return nil
}

func sameSession(active models.ScheduledEnrollment, section models.CourseSection) bool {
	return active.Session == section.Session && active.Semester == section.Semester && active.Year == section.Year
}

// CheckTransition validates a status change of an enrollment.
func CheckTransition(current, next models.EnrollmentStatus) error {
	if !next.Valid() {
		return appErrors.Validation("invalid enrollment status", map[string]string{"status": "unknown status " + string(next)})
	}
	if current.IsTerminal() || current == next {
		e := appErrors.Clone(appErrors.ErrInvalidTransition, "")
		e.Details = map[string]string{"from": string(current), "to": string(next)}
		return e
	}
	return nil
}
