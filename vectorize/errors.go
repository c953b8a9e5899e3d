package vectorize

import "errors"

var (
	// ErrNewsRepositoryRequired is returned when a news repository is not provided.
	ErrNewsRepositoryRequired = errors.New("news repository required")

	// ErrIndexRegistryRequired is returned when an index registry is not provided.
	ErrIndexRegistryRequired = errors.New("index registry required")

	// ErrChunkerRequired is returned when a chunker is not provided.
	ErrChunkerRequired = errors.New("chunker required")

	// ErrEmbedderRequired is returned when a chunk embedder is not provided.
	ErrEmbedderRequired = errors.New("chunk embedder required")

	// ErrCheckpointRepositoryRequired is returned when a reindexer has no
	// checkpoint repository.
	ErrCheckpointRepositoryRequired = errors.New("checkpoint repository required")

	// ErrProcessorRequired is returned when a reindexer has no batch processor.
	ErrProcessorRequired = errors.New("batch processor required")
)
