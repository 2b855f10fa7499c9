package model

import (
	"errors"
	"fmt"
)

// ErrBackendUnavailable is returned when the configured runtime is not part
// of this build or its dependency cannot be found.
var ErrBackendUnavailable = errors.New("model backend unavailable")

// ErrClosed is returned by Acquire after Close.
var ErrClosed = errors.New("model store closed")

// Load failure reasons.
const (
	ReasonNotFound        = "not found"
	ReasonNotFile         = "not a regular file"
	ReasonCorrupt         = "corrupt artifact"
	ReasonUnsupportedArch = "unsupported architecture"
	ReasonBackend         = "backend failure"
)

// LoadError reports why a model artifact could not be made available.
type LoadError struct {
	Path   string
	Reason string
	Err    error
}

func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("load model %q: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("load model %q: %s", e.Path, e.Reason)
}

func (e *LoadError) Unwrap() error { return e.Err }

// IsLoadError reports whether err contains a *LoadError.
func IsLoadError(err error) bool {
	var le *LoadError
	return errors.As(err, &le)
}
