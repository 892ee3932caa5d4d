package llm

import (
	"errors"
	"fmt"
)

// ProviderError records a failed call against one provider
type ProviderError struct {
	Provider  string
	Operation string
	Status    int
	Retryable bool
	Err       error
}

func (e *ProviderError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("provider %s: %s failed with status %d: %v", e.Provider, e.Operation, e.Status, e.Err)
	}
	return fmt.Sprintf("provider %s: %s failed: %v", e.Provider, e.Operation, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// FallbackError aggregates the per-provider failures from one exhausted
// fallback chain
type FallbackError struct {
	Operation string
	Attempts  []error
}

func (e *FallbackError) Error() string {
	return fmt.Sprintf("%s: all %d providers failed: %v", e.Operation, len(e.Attempts), errors.Join(e.Attempts...))
}

func (e *FallbackError) Unwrap() error {
	return errors.Join(e.Attempts...)
}
