package engine

import "errors"

var (
	ErrNoRecognizer       = errors.New("engine: recognizer is required")
	ErrNoTranslator       = errors.New("engine: translator or cache is required")
	ErrNoCapture          = errors.New("engine: capture is required")
	ErrAlreadyRunning     = errors.New("engine: already running")
	ErrStopped            = errors.New("engine: stopped")
	ErrInvalidOrientation = errors.New("engine: invalid orientation")
	ErrInvalidViewport    = errors.New("engine: viewport dimensions must be positive")
	ErrInvalidROI         = errors.New("engine: region of interest must have positive area")
)
