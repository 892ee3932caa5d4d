package domain

import "errors"

// Common domain errors
var (
	// Conversation errors
	ErrConversationNotFound = errors.New("conversation not found")
	ErrConversationExists   = errors.New("conversation already exists")

	// Memory unit errors
	ErrMemoryUnitNotFound = errors.New("memory unit not found")
	ErrEmbeddingsFailed   = errors.New("failed to generate embeddings")
	ErrSearchFailed       = errors.New("memory search failed")
	ErrCompressionFailed  = errors.New("conversation compression failed")

	// Gateway errors
	ErrModelNotConfigured = errors.New("model not configured")
	ErrAllProvidersFailed = errors.New("all providers failed")
	ErrDimensionMismatch  = errors.New("embedding dimension mismatch")

	// Validation errors
	ErrInvalidID      = errors.New("invalid ID format")
	ErrEmptyContent   = errors.New("content cannot be empty")
	ErrEmptyQuery     = errors.New("search query cannot be empty")
	ErrInvalidInput   = errors.New("invalid input")
	ErrNegativeLimit  = errors.New("limit cannot be negative")
	ErrNotFound       = errors.New("resource not found")
	ErrInvalidState   = errors.New("invalid state transition")

	// Lifecycle errors
	ErrNotStarted      = errors.New("component not started")
	ErrAlreadyStarted  = errors.New("component already started")
	ErrShuttingDown    = errors.New("service is shutting down")
	ErrDeadlineReached = errors.New("operation deadline exceeded")
)

// DomainError wraps a domain error with additional context
type DomainError struct {
	Err     error
	Message string
	Code    string
}

func (e *DomainError) Error() string {
	if e.Message != "" {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Err.Error()
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

func NewDomainError(err error, message string) *DomainError {
	return &DomainError{
		Err:     err,
		Message: message,
	}
}

func NewDomainErrorWithCode(err error, message, code string) *DomainError {
	return &DomainError{
		Err:     err,
		Message: message,
		Code:    code,
	}
}
