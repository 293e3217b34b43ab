package services

import (
	"errors"
	"fmt"
)

// ErrValidation marks input rejected before any pipeline state is created.
var ErrValidation = errors.New("validation failed")

var (
	ErrUnsupportedFormat = fmt.Errorf("%w: unsupported image format", ErrValidation)
	ErrTooLarge          = fmt.Errorf("%w: upload exceeds size limit", ErrValidation)
	ErrCorruptImage      = fmt.Errorf("%w: image cannot be decoded", ErrValidation)
)

var (
	ErrPhotoNotFound     = errors.New("inspection photo not found")
	ErrAnomalyNotFound   = errors.New("anomaly not found")
	ErrReadingNotFound   = errors.New("meter reading not found")
	ErrInvalidTransition = errors.New("invalid photo status transition")
	ErrHumanValidated    = errors.New("reading already validated by a reviewer")
)
