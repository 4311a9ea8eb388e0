package shared

import (
	"errors"
	"regexp"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var roleNamePattern = regexp.MustCompile(`^[a-z0-9_-]{2,50}$`)

// NewValidator returns a validator with the platform's custom rules:
// "strongpassword" (8+ characters with an upper, a lower and a digit) and
// "rolename" (2 to 50 characters of lower-case letters, digits, - and _).
func NewValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("strongpassword", func(fl validator.FieldLevel) bool {
		return StrongPassword(fl.Field().String())
	})
	_ = v.RegisterValidation("rolename", func(fl validator.FieldLevel) bool {
		return roleNamePattern.MatchString(fl.Field().String())
	})
	return v
}

// StrongPassword reports whether password satisfies the password policy.
func StrongPassword(password string) bool {
	if len(password) < 8 {
		return false
	}
	var upper, lower, digit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	return upper && lower && digit
}

// ValidateStruct runs v against s and converts failures into a validation
// error naming each offending field.
func ValidateStruct(v *validator.Validate, s any) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return Validation(err.Error())
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, describeFieldError(fe))
	}
	return Validation(strings.Join(msgs, "; "))
}

func describeFieldError(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email address"
	case "uuid":
		return field + " must be a UUID"
	case "strongpassword":
		return field + " must be at least 8 characters with an uppercase letter, a lowercase letter and a digit"
	case "rolename":
		return field + " must be 2-50 characters of lowercase letters, digits, hyphens or underscores"
	case "min", "max", "gt", "gte", "lte":
		return field + " must satisfy " + fe.Tag() + "=" + fe.Param()
	}
	return field + " is invalid"
}
