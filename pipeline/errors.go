package pipeline

import "errors"

var (
	// ErrStageTimeout marks a stage cut short by the request deadline or
	// cancellation. The context error is wrapped alongside it.
	ErrStageTimeout = errors.New("stage timed out")

	// ErrNotConfigured is returned by an enabled stage whose collaborator
	// was not provided.
	ErrNotConfigured = errors.New("stage collaborator not configured")

	// ErrUnknownStage is returned when a request names a stage that does
	// not exist.
	ErrUnknownStage = errors.New("unknown stage")

	// ErrEmptyGeneration is returned when a language model answers with
	// nothing usable.
	ErrEmptyGeneration = errors.New("empty generation")

	errNegativeLimit = errors.New("limits must not be negative")
)
