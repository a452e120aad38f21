package overlay

import "errors"

// Sentinel errors for rejected updates. None of them are fatal: the caller
// logs and drops the update.
var (
	// ErrEmptyText is returned when the recognized text is blank.
	ErrEmptyText = errors.New("overlay: empty recognized text")

	// ErrEmptyTranslation is returned when there is nothing to display.
	ErrEmptyTranslation = errors.New("overlay: empty translated text")

	// ErrInvalidSize is returned when the mapped size has a non-positive dimension.
	ErrInvalidSize = errors.New("overlay: non-positive overlay size")
)
