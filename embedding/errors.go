package embedding

import "errors"

var (
	// ErrEmbedderRequired is returned when New is called without an embedder.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrInvalidBatchSize is returned when the sub-batch size is not positive.
	ErrInvalidBatchSize = errors.New("batch size must be greater than 0")

	// ErrInvalidDimension is returned when a pinned dimension is not positive.
	ErrInvalidDimension = errors.New("dimension must be greater than 0")

	// ErrCountMismatch is returned when the provider answers with a different
	// number of vectors than texts it was given.
	ErrCountMismatch = errors.New("embedding count mismatch")

	// ErrEmptyVector is returned when the provider answers with a zero-length vector.
	ErrEmptyVector = errors.New("empty embedding vector")
)
