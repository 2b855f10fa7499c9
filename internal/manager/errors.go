package manager

import "errors"

// ErrOverloaded is returned when the queue is full. Callers should retry
// later (HTTP 429).
var ErrOverloaded = errors.New("overloaded: request queue is full")

// ErrShuttingDown is returned for requests submitted after Close began.
var ErrShuttingDown = errors.New("coordinator is shutting down")

// IsOverloaded reports whether err indicates backpressure (return 429).
func IsOverloaded(err error) bool { return errors.Is(err, ErrOverloaded) }

// modelNotFoundError is returned when a requested model id is not present in the registry.
type modelNotFoundError struct{ id string }

func (e modelNotFoundError) Error() string { return "model not found: " + e.id }

// ErrModelNotFound returns an error for a model id missing from the registry.
func ErrModelNotFound(id string) error { return modelNotFoundError{id: id} }

// IsModelNotFound reports whether the error indicates a missing model id.
func IsModelNotFound(err error) bool {
	var e modelNotFoundError
	return errors.As(err, &e)
}
