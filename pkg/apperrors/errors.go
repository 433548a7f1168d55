package apperrors

import "errors"

var (
	ErrNotFound               = errors.New("not found")
	ErrConflict               = errors.New("conflict")
	ErrInvalidTransition      = errors.New("invalid incident transition")
	ErrMissingReason          = errors.New("dismiss requires a reason")
	ErrDuplicateEnrollment    = errors.New("table already enrolled")
	ErrCredentialsKeyMismatch = errors.New("connection URI was encrypted with a different key")
)
