package common

import (
	"fmt"
	"strings"
)

// Validator accumulates human-readable validation errors for one record.
// The pipeline joins them with "; " into a single error message.
type Validator struct {
	errors []string
}

// NewValidator creates a new validator instance
func NewValidator() *Validator {
	return &Validator{}
}

// Add records a validation error.
func (v *Validator) Add(message string) *Validator {
	v.errors = append(v.errors, message)
	return v
}

// Addf records a formatted validation error.
func (v *Validator) Addf(format string, args ...any) *Validator {
	return v.Add(fmt.Sprintf(format, args...))
}

// HasErrors returns true if there are validation errors
func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

// Errors returns all validation errors
func (v *Validator) Errors() []string {
	return v.errors
}

// ErrorMessage returns a combined error message as string
func (v *Validator) ErrorMessage() string {
	if !v.HasErrors() {
		return ""
	}
	return strings.Join(v.errors, "; ")
}
