package domain

import "github.com/cockroachdb/errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidInput = errors.New("invalid input")
)

// Specific errors wrap one of the classes above so callers can match
// either the exact error or its class with errors.Is.
var (
	ErrMissingField                  = errors.Wrap(ErrInvalidInput, "missing required field")
	ErrTokenNotFound                 = errors.Wrap(ErrNotFound, "queue token")
	ErrInvalidOrExpiredExchangeToken = errors.Wrap(ErrNotFound, "exchange token invalid or expired")
	ErrReservationNotFound           = errors.Wrap(ErrNotFound, "reservation")
	ErrLeaseLost                     = errors.Wrap(ErrConflict, "scheduler lease lost")
	ErrSerializationFailure          = errors.Wrap(ErrConflict, "serialization failure")
)

// FieldError names the required field that was absent.
type FieldError struct {
	Field string
}

func (e *FieldError) Error() string { return "missing required field: " + e.Field }

func (e *FieldError) Unwrap() error { return ErrMissingField }

func MissingField(name string) error {
	return &FieldError{Field: name}
}
