package domain

import "errors"

// Typed domain errors. Callers match with errors.Is; the HTTP layer maps them
// to transport responses.
var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation error")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrForbidden         = errors.New("forbidden")
	ErrStorage           = errors.New("storage error")
)
