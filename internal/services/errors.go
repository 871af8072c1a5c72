package services

import "errors"

var (
	// ErrInvalidCredentials never says whether the email or the password was wrong.
	ErrInvalidCredentials = errors.New("email or password incorrect")
	// ErrEmailTaken is returned when registering an email that already exists.
	ErrEmailTaken = errors.New("email already registered")
	// ErrExportsDisabled is returned when no object storage backend is configured.
	ErrExportsDisabled = errors.New("export storage not configured")
)

// ValidationError reports missing or out-of-range input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(message string) error {
	return &ValidationError{Message: message}
}
