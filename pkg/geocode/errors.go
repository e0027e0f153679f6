package geocode

import (
	"errors"
	"fmt"

	"github.com/sells-group/microarea-cli/internal/resilience"
)

// ErrorKind classifies why a provider produced no usable coordinate.
type ErrorKind string

const (
	// KindUnavailable is a transient failure: timeout, throttling, 5xx.
	KindUnavailable ErrorKind = "unavailable"
	// KindRejected covers quota, auth and malformed-request answers.
	KindRejected ErrorKind = "rejected"
	// KindZeroResults means the provider ran and found nothing.
	KindZeroResults ErrorKind = "zero_results"
	// KindOutOfBounds means a coordinate was found outside the region box.
	KindOutOfBounds ErrorKind = "out_of_bounds"
)

// ProviderError is the error every Provider returns.
type ProviderError struct {
	Kind     ErrorKind
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("geocode: %s: %s", e.Provider, e.Kind)
	}
	return fmt.Sprintf("geocode: %s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func newError(kind ErrorKind, provider string, err error) *ProviderError {
	return &ProviderError{Kind: kind, Provider: provider, Err: err}
}

// KindOf extracts the kind from err. Errors that are not a ProviderError are
// classified as unavailable when transient and rejected otherwise.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	if resilience.IsTransient(err) {
		return KindUnavailable
	}
	return KindRejected
}

// retryable reports whether err should be tried again.
func retryable(err error) bool {
	return KindOf(err) == KindUnavailable
}
