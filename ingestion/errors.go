package ingestion

import "errors"

var (
	// ErrNewsRepositoryRequired is returned when a news repository is not provided.
	ErrNewsRepositoryRequired = errors.New("news repository required")

	// ErrServiceRequired is returned when a Sweeper is created without a Service.
	ErrServiceRequired = errors.New("ingestion service required")

	// ErrInvalidSchedule is returned when a sweep schedule cannot be parsed
	// or has no future run.
	ErrInvalidSchedule = errors.New("invalid sweep schedule")
)
