package manager

import "promptd/internal/engine"

// Stream is the caller's side of an admitted request.
type Stream struct {
	m *Manager
	j *job
}

func (s *Stream) ID() string      { return s.j.id }
func (s *Stream) ModelID() string { return s.j.modelID }

// Events delivers token events in order. The channel is closed when the
// request reaches a terminal state. A consumer that stops reading should
// call Cancel.
func (s *Stream) Events() <-chan engine.TokenEvent { return s.j.events }

// Done is closed when the request is terminal.
func (s *Stream) Done() <-chan struct{} { return s.j.done }

// Cancel aborts the request. Text produced so far is kept in the result.
func (s *Stream) Cancel() { s.j.cancel() }

// Result blocks until the request is terminal. The error is Result.Err.
func (s *Stream) Result() (engine.Result, error) {
	<-s.j.done
	return s.j.result, s.j.result.Err
}
