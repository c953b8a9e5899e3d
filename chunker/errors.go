package chunker

import "errors"

var (
	// ErrInvalidChunkSize is returned when the chunk size is not positive.
	ErrInvalidChunkSize = errors.New("chunk size must be greater than 0")

	// ErrInvalidOverlap is returned when overlap is negative or not smaller
	// than the chunk size.
	ErrInvalidOverlap = errors.New("overlap must be in [0, chunk size)")

	// ErrNoSeparators is returned when WithSeparators is given an empty list.
	ErrNoSeparators = errors.New("separator list cannot be empty")
)
