package domain

import "errors"

var (
	ErrValidation     = errors.New("validation error")
	ErrNotFound       = errors.New("not found")
	ErrInitialization = errors.New("transport initialization failed")
	ErrPersistence    = errors.New("persistence failed")
	ErrRunDeclined    = errors.New("delivery run declined by operator")
	ErrRunLocked      = errors.New("another delivery run holds the lock")
)
