package domain

import (
	"fmt"
	"strings"
)

// DuplicateCodeError is returned when an ACMG code is added while another
// included code shares its base code.
type DuplicateCodeError struct {
	Code     string `json:"code"`
	Existing string `json:"existing"`
}

// Error implements the error interface.
func (e *DuplicateCodeError) Error() string {
	return fmt.Sprintf("code %s duplicates included code %s (same base %s)",
		e.Code, e.Existing, ParseCode(e.Code).Base)
}

// NotFoundError is returned when an entity referenced by id does not exist.
type NotFoundError struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s: not found", e.Kind, e.ID)
}

// Unwrap allows errors.Is(err, ErrNotFound) checks.
func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// ValidationError represents input or state validation failures. Raised before
// any state mutation is committed, so a failed operation leaves no partial
// writes behind.
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}

// FinalizeRequirementError reports every unmet finalize requirement, not just
// the first one, so the caller can surface the complete list.
type FinalizeRequirementError struct {
	Unmet []string `json:"unmet"`
}

// Error implements the error interface.
func (e *FinalizeRequirementError) Error() string {
	return fmt.Sprintf("finalize requirements not met: %s", strings.Join(e.Unmet, "; "))
}
