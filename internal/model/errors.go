package model

import "errors"

var (
	ErrJobNotFound      = errors.New("job not found")
	ErrAlreadyExists    = errors.New("job already exists")
	ErrStoreUnavailable = errors.New("job store unavailable")
	ErrDispatchFailed   = errors.New("stage dispatch failed")
	ErrStatusConflict   = errors.New("job status conflict")
	ErrProviderFailed   = errors.New("provider call failed")
)

// ValidationError reports the first invalid field of a request
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError creates a ValidationError for field
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}
