// LOCATION: internal/errors/errors.go
//
// This file provides:
// - Sentinel errors for all error conditions
// - Error category checking functions
// - Error wrapping utilities

package errors

import (
	"errors"
	"fmt"
)

// ============================================================================
// Sentinel errors for common conditions
// ============================================================================

var (
	// Configuration errors - fatal, abort the run before any batch is written
	ErrDegeneratePolygon    = errors.New("degenerate polygon")
	ErrInvalidConfig        = errors.New("invalid configuration")
	ErrMissingField         = errors.New("missing required field")
	ErrUnsupportedCRS       = errors.New("unsupported coordinate reference system")
	ErrMalformedIdentifier  = errors.New("malformed granule identifier")
	ErrUnsupportedSchema    = errors.New("unsupported granule schema")
	ErrCellSizeMismatch     = errors.New("granule grid cell size mismatch")
	ErrMissingVariable      = errors.New("missing data variable")
	ErrMissingAttribute     = errors.New("missing attribute")
	ErrMalformedDate        = errors.New("malformed date value")

	// Batch consistency errors - fatal, the batch mixes incompatible
	// processing runs
	ErrInconsistentMapping      = errors.New("inconsistent grid mapping across batch")
	ErrInconsistentParamFile    = errors.New("inconsistent parameter file across batch")
	ErrInconsistentTimeStandard = errors.New("inconsistent time standard across batch")

	// Store errors
	ErrStoreClosed   = errors.New("store is closed")
	ErrStoreNotFound = errors.New("store not found")
	ErrEmptyBatch    = errors.New("empty batch")

	// Internal errors
	ErrInternal = errors.New("internal error")
)

// ============================================================================
// Helper functions for error checking
// ============================================================================

// Is is a convenience wrapper for errors.Is
var Is = errors.Is

// As is a convenience wrapper for errors.As
var As = errors.As

// New is a convenience wrapper for errors.New
var New = errors.New

// IsConfig returns true if err is a configuration error. Configuration
// errors abort the run without a partial-batch write.
func IsConfig(err error) bool {
	return errors.Is(err, ErrDegeneratePolygon) ||
		errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrMissingField) ||
		errors.Is(err, ErrUnsupportedCRS) ||
		errors.Is(err, ErrMalformedIdentifier) ||
		errors.Is(err, ErrUnsupportedSchema) ||
		errors.Is(err, ErrCellSizeMismatch)
}

// IsConsistency returns true if err is a cross-record consistency error
// detected during batch assembly.
func IsConsistency(err error) bool {
	return errors.Is(err, ErrInconsistentMapping) ||
		errors.Is(err, ErrInconsistentParamFile) ||
		errors.Is(err, ErrInconsistentTimeStandard)
}

// IsMalformed returns true if err indicates a malformed or internally
// inconsistent granule.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformedIdentifier) ||
		errors.Is(err, ErrMissingVariable) ||
		errors.Is(err, ErrMissingAttribute) ||
		errors.Is(err, ErrMalformedDate)
}

// ============================================================================
// Error wrapping utilities
// ============================================================================

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// ============================================================================
// Error constructors with context
// ============================================================================

// NewValidation creates a validation error with context.
func NewValidation(field, reason string) error {
	return fmt.Errorf("invalid %s: %s: %w", field, reason, ErrInvalidConfig)
}

// NewMissingField creates a missing field error.
func NewMissingField(field string) error {
	return fmt.Errorf("%s: %w", field, ErrMissingField)
}

// NewInvalidValue creates an invalid value error.
func NewInvalidValue(field string, value interface{}, reason string) error {
	return fmt.Errorf("invalid %s '%v': %s: %w", field, value, reason, ErrInvalidConfig)
}

// ============================================================================
// Validation Errors Collection
// ============================================================================

// ValidationErrors collects multiple validation errors.
type ValidationErrors struct {
	Errors []error
}

// NewValidationErrors creates a new ValidationErrors collector.
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{}
}

// Add adds an error to the collection.
func (v *ValidationErrors) Add(err error) {
	if err != nil {
		v.Errors = append(v.Errors, err)
	}
}

// AddField adds a field validation error.
func (v *ValidationErrors) AddField(field, reason string) {
	v.Errors = append(v.Errors, NewValidation(field, reason))
}

// AddMissing adds a missing field error.
func (v *ValidationErrors) AddMissing(field string) {
	v.Errors = append(v.Errors, NewMissingField(field))
}

// HasErrors returns true if there are any errors.
func (v *ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

// Error implements the error interface.
func (v *ValidationErrors) Error() string {
	if len(v.Errors) == 0 {
		return ""
	}
	if len(v.Errors) == 1 {
		return v.Errors[0].Error()
	}

	msg := fmt.Sprintf("validation failed with %d errors:", len(v.Errors))
	for _, err := range v.Errors {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Err returns nil if no errors, otherwise returns the ValidationErrors.
func (v *ValidationErrors) Err() error {
	if len(v.Errors) == 0 {
		return nil
	}
	return v
}

// Unwrap returns the first error for errors.Is/As support.
func (v *ValidationErrors) Unwrap() error {
	if len(v.Errors) == 0 {
		return nil
	}
	return v.Errors[0]
}
