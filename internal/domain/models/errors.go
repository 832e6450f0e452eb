package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnsupported is returned by adapters for operations their provider lacks.
	ErrUnsupported = errors.New("operation not supported by source")
	// ErrMissingField marks a response without a required field such as price.
	ErrMissingField = errors.New("required field missing")
	// ErrNoData marks an empty but well-formed provider response.
	ErrNoData = errors.New("no data returned")
	// ErrRateLimited is returned when the local budget for a source is exhausted.
	ErrRateLimited = errors.New("source rate limit exhausted")
	// ErrNoSources means the registry has nothing configured for an operation.
	ErrNoSources = errors.New("no sources configured")
	// ErrInvalidSymbol rejects empty or malformed tickers before any source is called.
	ErrInvalidSymbol = errors.New("invalid symbol")
)

// ProviderError is the failure of a single adapter call.
type ProviderError struct {
	Source     string
	Op         Operation
	Symbol     string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s %s: status %d: %v", e.Source, e.Op, e.Symbol, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s %s: %v", e.Source, e.Op, e.Symbol, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Retryable reports whether another attempt against the same source could succeed.
func (e *ProviderError) Retryable() bool {
	if errors.Is(e.Err, ErrUnsupported) || errors.Is(e.Err, ErrRateLimited) ||
		errors.Is(e.Err, ErrMissingField) || errors.Is(e.Err, ErrNoData) {
		return false
	}
	switch {
	case e.StatusCode == 429:
		return true
	case e.StatusCode >= 400 && e.StatusCode < 500:
		return false
	}
	return true
}

// NewProviderError builds a ProviderError without a status code.
func NewProviderError(source string, op Operation, symbol string, err error) *ProviderError {
	return &ProviderError{Source: source, Op: op, Symbol: symbol, Err: err}
}

// SourceError records why one source did not satisfy a request.
// Reasons is set when the source answered but its data was rejected by validation.
type SourceError struct {
	Source  string   `json:"source"`
	Error   string   `json:"error"`
	Reasons []string `json:"reasons,omitempty"`
}

// AllSourcesFailedError is returned when no source produced an acceptable result.
type AllSourcesFailedError struct {
	Op     Operation
	Symbol string
	Errors []SourceError
}

func (e *AllSourcesFailedError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, se := range e.Errors {
		parts = append(parts, se.Source+": "+se.Error)
	}
	if len(parts) == 0 {
		return fmt.Sprintf("all sources failed for %s %s: %v", e.Op, e.Symbol, ErrNoSources)
	}
	return fmt.Sprintf("all sources failed for %s %s: %s", e.Op, e.Symbol, strings.Join(parts, "; "))
}

// IsAllSourcesFailed reports whether err carries an AllSourcesFailedError.
func IsAllSourcesFailed(err error) bool {
	var asf *AllSourcesFailedError
	return errors.As(err, &asf)
}
