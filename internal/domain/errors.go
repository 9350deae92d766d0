package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation       = errors.New("validation failed")
	ErrRoomFull         = errors.New("room is full")
	ErrNotMember        = errors.New("user is not a member of the room")
	ErrRoomNotFound     = errors.New("room not found")
	ErrVersionConflict  = errors.New("room version conflict")
	ErrStoreUnavailable = errors.New("room store unavailable")
)

// ValidationError is returned for input rejected before any room state is touched.
type ValidationError struct {
	Field  string
	Reason string
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// IsTransient reports whether err came from the store layer rather than from a
// rejected transition.
func IsTransient(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}
