package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	// Workflow guards.
	ErrNoCheckpoint    = errors.New("no checkpoint for this stage")
	ErrStaleCheckpoint = errors.New("checkpoint is older than the last apply")

	// External collaborators.
	ErrBackendUnavailable = errors.New("summarization backend unavailable")
	ErrOCRUnavailable     = errors.New("ocr binary unavailable")

	ErrNoAnchor = errors.New("document has no anchor for new category sections")
)
