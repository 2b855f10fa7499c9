package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidParameters is wrapped by every *InvalidParamsError.
	ErrInvalidParameters = errors.New("invalid parameters")
	// ErrTimeout marks a generation stopped by its deadline.
	ErrTimeout = errors.New("generation timed out")
	// ErrCancelled marks a request abandoned by its caller. It is not a
	// failure: results carry StopCancelled and no error.
	ErrCancelled = errors.New("generation cancelled")

	ErrSessionBusy     = errors.New("session is in use by another generation")
	ErrSessionEnded    = errors.New("session has ended")
	ErrSessionNotReset = errors.New("session must be reset before reuse")
)

// InvalidParamsError names the first request field that failed validation.
type InvalidParamsError struct {
	Field  string
	Reason string
}

func (e *InvalidParamsError) Error() string {
	return fmt.Sprintf("invalid parameters: %s %s", e.Field, e.Reason)
}

func (e *InvalidParamsError) Unwrap() error { return ErrInvalidParameters }

// IsInvalidParams reports whether err is a parameter validation failure.
func IsInvalidParams(err error) bool { return errors.Is(err, ErrInvalidParameters) }

// DecodeError is a failure of the runtime while producing a token.
type DecodeError struct {
	// Step is the number of tokens produced before the failure; -1 means
	// the prompt could not be ingested.
	Step int
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Step < 0 {
		return fmt.Sprintf("decode prompt: %v", e.Err)
	}
	return fmt.Sprintf("decode step %d: %v", e.Step, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// IsDecodeError reports whether err contains a *DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}
