package types

import "strings"

// FieldError represents a validation error for a specific field.
type FieldError struct {
	Field   string `json:"field"`   // JSON path to the field (e.g., "spectrum.max_hz")
	Message string `json:"message"` // Human-readable error message
	Value   any    `json:"value"`   // The invalid value that was provided
}

// ValidationError collects multiple field validation errors.
type ValidationError struct {
	Errors []FieldError `json:"errors"`
}

// NewValidationError creates a new empty ValidationError.
func NewValidationError() *ValidationError {
	return &ValidationError{
		Errors: make([]FieldError, 0),
	}
}

// Add adds a field error to the collection.
func (v *ValidationError) Add(field, message string, value any) {
	v.Errors = append(v.Errors, FieldError{
		Field:   field,
		Message: message,
		Value:   value,
	})
}

// Len returns the number of collected field errors.
func (v *ValidationError) Len() int {
	return len(v.Errors)
}

// Error joins the field errors as "field message" pairs.
func (v *ValidationError) Error() string {
	msgs := make([]string, 0, len(v.Errors))
	for _, e := range v.Errors {
		if e.Field == "" {
			msgs = append(msgs, e.Message)
			continue
		}
		msgs = append(msgs, e.Field+" "+e.Message)
	}
	return strings.Join(msgs, "; ")
}
