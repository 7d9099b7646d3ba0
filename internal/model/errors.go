package model

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrFieldNotFound     = errors.New("field not found")
	ErrDuplicateResource = errors.New("duplicate resource")
	ErrSystemValue       = errors.New("system-managed value cannot be edited")
	ErrFieldInUse        = errors.New("field is in use")
	ErrWrongValueKind    = errors.New("wrong value kind")
)

// FieldNotFoundError is returned when a write names a field absent from
// the record type's effective schema.
type FieldNotFoundError struct {
	FieldID      string
	ResourceType ResourceType
}

func (e *FieldNotFoundError) Error() string {
	return fmt.Sprintf("field %s not found in %s schema", e.FieldID, e.ResourceType)
}

func (e *FieldNotFoundError) Is(target error) bool { return target == ErrFieldNotFound }

// DuplicateResourceError carries the canonical name that already exists.
type DuplicateResourceError struct {
	ResourceType ResourceType
	Value        string
}

func (e *DuplicateResourceError) Error() string {
	return fmt.Sprintf("a %s named %q already exists", e.ResourceType, e.Value)
}

func (e *DuplicateResourceError) Is(target error) bool { return target == ErrDuplicateResource }

// ValidationError holds a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation failure on a named field.
type FieldError struct {
	Field   string
	Message string
}

// Error formats the validation error as a semicolon-separated list of field messages.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// HasErrors reports whether the validation error contains any field errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

// Add appends a field error.
func (e *ValidationError) Add(field, format string, args ...any) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// ErrOrNil returns e when it has errors and nil otherwise.
func (e *ValidationError) ErrOrNil() error {
	if e.HasErrors() {
		return e
	}
	return nil
}
