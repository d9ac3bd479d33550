// Package validation wraps a shared go-playground validator with the
// account rules used across the API. Failures come back as apperr
// validation errors keyed by JSON field name.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/tsiken/backend/internal/apperr"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

var phMobile = regexp.MustCompile(`^09\d{9}$`)

// GetValidator returns the singleton validator instance.
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return f.Name
			}
			return name
		})
		_ = validate.RegisterValidation("ph_mobile", func(fl validator.FieldLevel) bool {
			return IsPHMobile(fl.Field().String())
		})
		_ = validate.RegisterValidation("strong_password", func(fl validator.FieldLevel) bool {
			return IsStrongPassword(fl.Field().String())
		})
	})
	return validate
}

// IsPHMobile accepts 11-digit local numbers such as 09171234567.
func IsPHMobile(s string) bool {
	return phMobile.MatchString(s)
}

// IsStrongPassword requires 8+ characters with an upper, a lower and a digit.
func IsStrongPassword(s string) bool {
	if len(s) < 8 {
		return false
	}
	var upper, lower, digit bool
	for _, r := range s {
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

// Struct validates s and returns an *apperr.Error on failure.
func Struct(s any) error {
	err := GetValidator().Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Wrap(apperr.KindValidation, "invalid request", err)
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = message(fe)
	}
	if len(fields) == 1 {
		for _, msg := range fields {
			return apperr.Validation(msg, fields)
		}
	}
	return apperr.Validation("validation failed", fields)
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "email":
		return "invalid email address"
	case "ph_mobile":
		return "mobile number must be 11 digits starting with 09"
	case "strong_password":
		return "password must be at least 8 characters with uppercase, lowercase and a number"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "eqfield":
		return fmt.Sprintf("%s does not match", fe.Field())
	case "uuid":
		return fmt.Sprintf("%s must be a valid id", fe.Field())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}

func IsEmail(s string) bool {
	return GetValidator().Var(s, "required,email") == nil
}
