package backend

import "errors"

// Error definitions for the backend package.
var (
	ErrNotFound          = errors.New("backend not found in registry")
	ErrAlreadyRegistered = errors.New("backend is already registered in the registry")
	ErrUnsupportedTask   = errors.New("backend does not support task")
	ErrEmptyOutput       = errors.New("backend returned no output")
)
