package models

import (
	"errors"
	"fmt"
)

// Asset pipeline errors. Callers classify with errors.Is only.
var (
	ErrValidation      = errors.New("validation failed")
	ErrFileTooLarge    = fmt.Errorf("%w: file too large", ErrValidation)
	ErrUnsupportedType = fmt.Errorf("%w: unsupported file type", ErrValidation)
	ErrMissingFile     = fmt.Errorf("%w: no file uploaded", ErrValidation)

	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrRemoteUpload = errors.New("remote upload failed")
	ErrPersistence  = errors.New("persistence failed")
)

// ErrorKind returns a stable, machine-readable name for err's class.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrFileTooLarge):
		return "file_too_large"
	case errors.Is(err, ErrUnsupportedType):
		return "unsupported_type"
	case errors.Is(err, ErrMissingFile):
		return "missing_file"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrRemoteUpload):
		return "remote_upload"
	case errors.Is(err, ErrPersistence):
		return "persistence"
	}
	return "internal"
}
