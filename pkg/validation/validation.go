package validation

import (
	"regexp"

	"github.com/go-playground/validator/v10"
)

var (
	phonePattern      = regexp.MustCompile(`^\+?1?\d{9,15}$`)
	haitiPhonePattern = regexp.MustCompile(`^\+?509?\d{8,10}$`)
)

// New returns a validator with the registrar's custom tags registered:
// phone for user phone numbers and haitiphone for admission contacts.
func New() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("haitiphone", func(fl validator.FieldLevel) bool {
		return haitiPhonePattern.MatchString(fl.Field().String())
	})
	return v
}
