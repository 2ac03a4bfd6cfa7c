package types

import (
	"errors"
	"fmt"
)

// Error kinds. Component errors wrap one of these so callers can branch
// with errors.Is.
var (
	// ErrNotFound means the DOI is absent from the upstream source.
	ErrNotFound = errors.New("not found")

	// ErrTransient is a non-2xx or transport failure from a best-effort
	// lookup. Callers degrade to an empty result.
	ErrTransient = errors.New("transient service error")

	// ErrFatalConfig means a required reference file or feed is missing or
	// corrupt. The run must abort.
	ErrFatalConfig = errors.New("fatal configuration error")

	// ErrWrite means the repository rejected a write.
	ErrWrite = errors.New("repository write failed")
)

// ServiceError is an error returned by an external service.
type ServiceError struct {
	Service    string
	StatusCode int
	Message    string
	Kind       error
}

func (e *ServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s returned HTTP %d: %s", e.Service, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Service, e.Message)
}

// Unwrap exposes the error kind.
func (e *ServiceError) Unwrap() error { return e.Kind }

// IsNotFound reports whether err means the resource does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsFatal reports whether err must abort the whole run.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatalConfig)
}

// StatusCode returns the HTTP status carried by a ServiceError, or 0.
func StatusCode(err error) int {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}
