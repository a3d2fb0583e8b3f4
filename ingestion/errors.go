package ingestion

import "errors"

var (
	// ErrRepositoryRequired is returned when a repository is not provided.
	ErrRepositoryRequired = errors.New("repository required")

	// ErrRunRepositoryRequired is returned when a run repository is not provided.
	ErrRunRepositoryRequired = errors.New("run repository required")

	// ErrAIProviderRequired is returned when an AI provider is not provided.
	ErrAIProviderRequired = errors.New("AI provider required")

	// ErrUnexpectedWriter wraps any writer failure that is not a known item error.
	// The folder's unit of work is rolled back and the run continues.
	ErrUnexpectedWriter = errors.New("unexpected writer error")
)
