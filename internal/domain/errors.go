package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation signals malformed or missing input.
	ErrValidation = errors.New("validation failed")
	// ErrEmptyQuery signals a query with no usable terms.
	ErrEmptyQuery = fmt.Errorf("%w: please enter at least one search term", ErrValidation)
	// ErrFileTooLarge signals a file above the download size cap.
	ErrFileTooLarge = fmt.Errorf("%w: file too large", ErrValidation)
	// ErrNoToken signals a request without an access token.
	ErrNoToken = errors.New("no access token provided")
	// ErrAuthExpired signals that the provider rejected the access token.
	ErrAuthExpired = errors.New("access token expired")
	// ErrTransient signals a network or provider failure worth retrying.
	ErrTransient = errors.New("transient provider error")
	// ErrProvider signals a non-retryable provider failure (permissions, missing file).
	ErrProvider = errors.New("provider error")
	// ErrExtraction signals an unreadable document.
	ErrExtraction = errors.New("extraction failed")
	// ErrNotFound signals a missing job or artifact.
	ErrNotFound = errors.New("not found")
	// ErrNoSpreadsheets signals that no spreadsheet in a job could be read.
	ErrNoSpreadsheets = errors.New("failed to process any Excel files")
	// ErrForbidden signals an email outside the allow-list.
	ErrForbidden = errors.New("email is not authorized")
)

// ValidationError wraps ErrValidation with the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrValidation.Error(), e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidation creates a validation error for a field.
func NewValidation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
