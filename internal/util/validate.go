package util

import (
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/oszuidwest/zwfm-voicecapture/internal/types"
)

// NewValidator returns a validator that reports JSON field names and knows the
// "safepath" tag.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})

	if err := v.RegisterValidation("safepath", func(fl validator.FieldLevel) bool {
		path := fl.Field().String()
		return path == "" || ValidatePath(fl.FieldName(), path) == nil
	}); err != nil {
		panic(err)
	}

	return v
}

// ValidationMessage creates a human-readable message from a validator error.
func ValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "required_without":
		return fmt.Sprintf("is required when %s is empty", e.Param())
	case "excluded_with":
		return fmt.Sprintf("must be empty when %s is set", e.Param())
	case "min":
		return fmt.Sprintf("must be at least %s", e.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", e.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", e.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", e.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", e.Param())
	case "lt":
		return fmt.Sprintf("must be less than %s", e.Param())
	case "gtfield":
		return fmt.Sprintf("must be greater than %s", e.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", e.Param())
	case "safepath":
		return "must be a clean path without '..'"
	default:
		return fmt.Sprintf("failed validation '%s'", e.Tag())
	}
}

// CollectValidation converts a validator error into a ValidationError keyed by
// JSON field path. Other errors become a single entry without a field.
func CollectValidation(err error) *types.ValidationError {
	verr := types.NewValidationError()

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		verr.Add("", err.Error(), nil)
		return verr
	}
	for _, e := range fieldErrs {
		verr.Add(FieldPath(e), ValidationMessage(e), e.Value())
	}
	return verr
}

// FieldPath returns the JSON path of a validation error without the root struct name.
func FieldPath(e validator.FieldError) string {
	ns := e.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

// ValidatePath validates a file path for security.
func ValidatePath(field, path string) error {
	if path == "" {
		return fmt.Errorf("%s: is required", field)
	}

	// Reject path traversal attempts before cleaning.
	if strings.Contains(path, "..") {
		return fmt.Errorf("%s: path cannot contain '..'", field)
	}

	cleaned := filepath.Clean(path)
	if strings.Contains(cleaned, "..") {
		return fmt.Errorf("%s: invalid path", field)
	}

	return nil
}
