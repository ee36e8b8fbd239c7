package domain

import (
	"errors"
	"fmt"
)

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidExecContext = errors.New("invalid execution context")

	// Provider failures. Adapters wrap them in ProviderError.
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrAuth                = errors.New("provider rejected credentials")
	ErrRateLimited         = errors.New("provider rate limited")
	ErrTimeout             = errors.New("provider timeout")
	ErrTransport           = errors.New("provider transport error")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrUnknownProvider     = errors.New("unknown provider")

	ErrEmptyInput  = errors.New("empty input")
	ErrJobConflict = errors.New("training job already running")
)

// ProviderError carries the failure kind (one of the sentinels above) plus the
// HTTP status when the provider reported one.
type ProviderError struct {
	Provider string
	Kind     error
	Status   int
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %v (http %d): %v", e.Provider, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func NewProviderError(provider string, kind error, status int, cause error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: kind, Status: status, Err: cause}
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrTransport) || errors.Is(err, ErrRateLimited)
}

// Kind returns the taxonomy label of err, used for logs and metrics.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrAuth):
		return "auth"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrTransport):
		return "transport"
	case errors.Is(err, ErrProviderUnavailable):
		return "unavailable"
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrInvalidArgument), errors.Is(err, ErrEmptyInput):
		return "invalid_request"
	case errors.Is(err, ErrUnknownProvider):
		return "unknown_provider"
	case errors.Is(err, ErrJobConflict):
		return "job_conflict"
	default:
		return "internal"
	}
}
