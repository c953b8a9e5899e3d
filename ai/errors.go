package ai

import "errors"

var (
	// ErrMalformedResponse indicates a model answer could not be parsed.
	ErrMalformedResponse = errors.New("malformed model response")

	// ErrEmptyResponse indicates a model returned no choices.
	ErrEmptyResponse = errors.New("empty model response")
)
