package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest signals a malformed generation request.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrNoModelConfig signals that no active model config serves a usage type.
	ErrNoModelConfig = errors.New("no active model config")
	// ErrTransientProvider signals a retryable provider failure (timeout, rate limit, 5xx).
	ErrTransientProvider = errors.New("transient provider error")
	// ErrPermanentProvider signals a non-retryable provider failure (bad request, rejection, auth).
	ErrPermanentProvider = errors.New("permanent provider error")
	// ErrChainExhausted signals that every config in a fallback chain failed.
	ErrChainExhausted = errors.New("fallback chain exhausted")
	// ErrCacheUnavailable signals a cache backend failure. Never surfaced to callers.
	ErrCacheUnavailable = errors.New("cache unavailable")
	// ErrSimilarityUnavailable signals a similarity store failure. Never surfaced to callers.
	ErrSimilarityUnavailable = errors.New("similarity store unavailable")
	// ErrEmptyFilter signals a bulk delete without any filter condition.
	ErrEmptyFilter = errors.New("refusing to delete with an empty filter")
	// ErrEmptyScope signals a dedup call without a project scope.
	ErrEmptyScope = errors.New("scope project id is required")
	// ErrVectorDimMismatch signals a vector dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrDocumentNotFound signals a missing similarity document.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrBudgetExceeded signals an exhausted token budget.
	ErrBudgetExceeded = errors.New("token budget exceeded")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrEmbedderClosed signals use of an embedding handle after Close.
	ErrEmbedderClosed = errors.New("embedder closed")
)

// ProviderError is a provider failure classified at the client boundary.
type ProviderError struct {
	Provider   string
	StatusCode int
	Transient  bool
	Err        error
}

func (e *ProviderError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s %s error (status %d): %v", e.Provider, kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s error: %v", e.Provider, kind, e.Err)
}

func (e *ProviderError) Unwrap() []error {
	if e.Transient {
		return []error{ErrTransientProvider, e.Err}
	}
	return []error{ErrPermanentProvider, e.Err}
}

// NewTransientError wraps err as a retryable provider failure.
func NewTransientError(provider string, status int, err error) error {
	return &ProviderError{Provider: provider, StatusCode: status, Transient: true, Err: err}
}

// NewPermanentError wraps err as a non-retryable provider failure.
func NewPermanentError(provider string, status int, err error) error {
	return &ProviderError{Provider: provider, StatusCode: status, Err: err}
}

// IsTransientStatus reports whether an HTTP status from a provider is worth a fallback.
func IsTransientStatus(status int) bool {
	return status == 408 || status == 425 || status == 429 || status >= 500
}

// ChainExhaustedError is returned when every fallback config failed transiently.
type ChainExhaustedError struct {
	UsageType string
	Attempts  int
	Last      error
}

func (e *ChainExhaustedError) Error() string {
	return fmt.Sprintf("%s for usage type %q after %d attempt(s): %v",
		ErrChainExhausted.Error(), e.UsageType, e.Attempts, e.Last)
}

func (e *ChainExhaustedError) Unwrap() []error { return []error{ErrChainExhausted, e.Last} }
