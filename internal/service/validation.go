package service

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/timmy/examforge/internal/domain"
)

var placeholderRe = regexp.MustCompile(`\{([^{}]*)\}`)

var knownPlaceholders = map[string]bool{
	"prefix": true, "index": true, "set": true, "template": true,
	"batch": true, "date": true, "time": true,
}

// newValidator returns a validator that reports json field names and knows
// the file name pattern rule.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("file_pattern", validateFilePattern)
	return v
}

// validateFilePattern accepts patterns whose placeholders are all known and
// that contain no path separators.
func validateFilePattern(fl validator.FieldLevel) bool {
	pattern := fl.Field().String()
	if strings.ContainsAny(pattern, `/\`) {
		return false
	}
	for _, m := range placeholderRe.FindAllStringSubmatch(pattern, -1) {
		if !knownPlaceholders[m[1]] {
			return false
		}
	}
	return true
}

// toValidationError converts the first validator failure into a domain error.
func toValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return domain.NewValidationError("", err.Error())
	}

	fe := verrs[0]
	field := strings.TrimPrefix(fe.Namespace(), "BatchRequest.")
	var msg string
	switch fe.Tag() {
	case "required":
		msg = "is required"
	case "min":
		msg = fmt.Sprintf("must contain at least %s element(s)", fe.Param())
	case "gt":
		msg = fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte":
		msg = fmt.Sprintf("must be at least %s", fe.Param())
	case "oneof":
		msg = fmt.Sprintf("must be one of [%s]", fe.Param())
	case "email":
		msg = "must be a valid email address"
	case "url":
		msg = "must be a valid URL"
	case "file_pattern":
		msg = "contains an unknown placeholder or a path separator"
	default:
		msg = fmt.Sprintf("failed %q validation", fe.Tag())
	}
	return domain.NewValidationError(field, msg)
}
