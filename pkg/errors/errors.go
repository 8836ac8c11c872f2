package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Status  int               `json:"status"`
	Details map[string]string `json:"details,omitempty"`
	Err     error             `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches errors sharing the same code so callers can use errors.Is
// against the predefined values even after Clone.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Kind values group error codes into the families callers branch on.
const (
	KindValidation   = "validation"
	KindBusinessRule = "business_rule"
	KindIntegrity    = "integrity"
	KindNotFound     = "not_found"
	KindAuth         = "auth"
	KindInternal     = "internal"
)

// Predefined errors for common scenarios.
var (
	ErrInvalidCredentials = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid email or password")
	ErrInactiveAccount    = New("ACCOUNT_INACTIVE", http.StatusForbidden, "account is inactive")
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrIntegrityConflict  = New("INTEGRITY_CONFLICT", http.StatusConflict, "the record was changed concurrently or violates a uniqueness constraint")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss          = New("CACHE_MISS", http.StatusNotFound, "cache miss")

	// Business rules.
	ErrDuplicateCourse      = New("DUPLICATE_COURSE", http.StatusUnprocessableEntity, "student is already enrolled in a section of this course")
	ErrSessionCapExceeded   = New("SESSION_CAP_EXCEEDED", http.StatusUnprocessableEntity, "student reached the maximum number of courses for this session")
	ErrSectionClosed        = New("SECTION_CLOSED", http.StatusUnprocessableEntity, "section is closed for enrollment")
	ErrSectionFull          = New("SECTION_FULL", http.StatusUnprocessableEntity, "section is full")
	ErrScheduleConflict     = New("SCHEDULE_CONFLICT", http.StatusUnprocessableEntity, "section overlaps another enrolled section")
	ErrAlreadyEnrolled      = New("ALREADY_ENROLLED", http.StatusUnprocessableEntity, "student already has an enrollment record for this section")
	ErrInvalidTransition    = New("INVALID_TRANSITION", http.StatusUnprocessableEntity, "enrollment status transition not allowed")
	ErrGradeNotAllowed      = New("GRADE_NOT_ALLOWED", http.StatusUnprocessableEntity, "grades cannot be recorded for a dropped enrollment")
	ErrCandidatureLocked    = New("CANDIDATURE_LOCKED", http.StatusUnprocessableEntity, "candidature can no longer be edited")
	ErrTermsNotAccepted     = New("TERMS_NOT_ACCEPTED", http.StatusUnprocessableEntity, "terms must be accepted before submitting")
	ErrSelfPrerequisite     = New("SELF_PREREQUISITE", http.StatusUnprocessableEntity, "a course cannot be its own prerequisite")
	ErrCircularPrerequisite = New("CIRCULAR_PREREQUISITE", http.StatusUnprocessableEntity, "prerequisite would create a cycle")
	ErrProfileInUse         = New("PROFILE_IN_USE", http.StatusUnprocessableEntity, "profile is still referenced and cannot be removed")
)

var businessRuleCodes = map[string]struct{}{
	ErrDuplicateCourse.Code:      {},
	ErrSessionCapExceeded.Code:   {},
	ErrSectionClosed.Code:        {},
	ErrSectionFull.Code:          {},
	ErrScheduleConflict.Code:     {},
	ErrAlreadyEnrolled.Code:      {},
	ErrInvalidTransition.Code:    {},
	ErrGradeNotAllowed.Code:      {},
	ErrCandidatureLocked.Code:    {},
	ErrTermsNotAccepted.Code:     {},
	ErrSelfPrerequisite.Code:     {},
	ErrCircularPrerequisite.Code: {},
	ErrProfileInUse.Code:         {},
}

// Kind reports which family an error belongs to.
func Kind(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return KindInternal
	}
	if _, ok := businessRuleCodes[e.Code]; ok {
		return KindBusinessRule
	}
	switch e.Code {
	case ErrValidation.Code:
		return KindValidation
	case ErrIntegrityConflict.Code, ErrConflict.Code:
		return KindIntegrity
	case ErrNotFound.Code:
		return KindNotFound
	case ErrUnauthorized.Code, ErrForbidden.Code, ErrInvalidCredentials.Code, ErrInactiveAccount.Code:
		return KindAuth
	}
	return KindInternal
}

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// Validation builds a VALIDATION_ERROR carrying field level messages.
func Validation(message string, details map[string]string) *Error {
	e := Clone(ErrValidation, message)
	e.Details = details
	return e
}

// FromValidation converts validator failures into a VALIDATION_ERROR with one
// message per offending field.
func FromValidation(err error, message string) *Error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return Wrap(err, ErrValidation.Code, ErrValidation.Status, message)
	}
	details := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		if fe.Param() != "" {
			details[field] = fmt.Sprintf("failed %s=%s", fe.Tag(), fe.Param())
		} else {
			details[field] = "failed " + fe.Tag()
		}
	}
	e := Validation(message, details)
	e.Err = err
	return e
}
