package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrLocationNotFound  = fmt.Errorf("location %w", ErrNotFound)
	ErrDeviceNotFound    = fmt.Errorf("device %w", ErrNotFound)
	ErrDailyMenuNotFound = fmt.Errorf("daily menu %w", ErrNotFound)
	ErrMenuItemNotFound  = fmt.Errorf("menu item %w", ErrNotFound)

	ErrInvalidTimeZone  = errors.New("invalid time zone")
	ErrDeviceDisabled   = errors.New("device disabled")
	ErrUnknownEventType = errors.New("unknown event type")
	ErrUnexpectedEvent  = errors.New("event does not belong to stream")
)

// ValidationError reports malformed command input.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func NewValidationError(field string, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// DecodingError means a stored payload does not match its declared type tag.
type DecodingError struct {
	Type string
	Err  error
}

func (e *DecodingError) Error() string {
	return fmt.Sprintf("decode %q event: %v", e.Type, e.Err)
}

func (e *DecodingError) Unwrap() error { return e.Err }

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsDecoding(err error) bool {
	var d *DecodingError
	return errors.As(err, &d)
}
