package recognition

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	// ErrEmptyFrame is returned when a request carries no image data.
	ErrEmptyFrame = errors.New("recognition: empty frame")

	// ErrDecode is returned when the frame cannot be decoded.
	ErrDecode = errors.New("recognition: cannot decode frame")

	// ErrUnavailable is returned when the recognizer backend cannot be reached.
	ErrUnavailable = errors.New("recognition: recognizer unavailable")
)

// BackendError wraps an error with the recognizer backend that produced it.
type BackendError struct {
	Backend string
	Err     error
}

// Error implements the error interface.
func (e *BackendError) Error() string {
	return fmt.Sprintf("recognition [%s]: %v", e.Backend, e.Err)
}

// Unwrap returns the underlying error.
func (e *BackendError) Unwrap() error {
	return e.Err
}

// WrapError wraps err with backend context.
func WrapError(backend string, err error) error {
	if err == nil {
		return nil
	}
	return &BackendError{Backend: backend, Err: err}
}
