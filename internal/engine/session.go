package engine

import (
	"sync"
	"sync/atomic"

	"promptd/internal/model"
)

// Session owns the mutable decode state of one request against a shared
// model handle. A session serves one generation at a time; running it again
// requires Reset.
type Session struct {
	handle *model.Handle
	dc     model.DecodeContext

	busy  atomic.Bool
	mu    sync.Mutex
	used  bool
	ended bool
}

// Begin allocates fresh decode state for handle.
func Begin(h *model.Handle) (*Session, error) {
	dc, err := h.NewContext()
	if err != nil {
		return nil, err
	}
	return &Session{handle: h, dc: dc}, nil
}

func (s *Session) Handle() *model.Handle { return s.handle }

// Reset clears accumulated state so the session can serve another
// generation. It fails while a generation is running.
func (s *Session) Reset() error {
	if !s.busy.CompareAndSwap(false, true) {
		return ErrSessionBusy
	}
	defer s.busy.Store(false)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return ErrSessionEnded
	}
	if err := s.dc.Reset(); err != nil {
		return err
	}
	s.used = false
	return nil
}

// End releases the decode state. It is idempotent.
func (s *Session) End() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return nil
	}
	s.ended = true
	return s.dc.Close()
}

// Ended reports whether End has been called.
func (s *Session) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

// acquire claims the session for one generation.
func (s *Session) acquire() error {
	if !s.busy.CompareAndSwap(false, true) {
		return ErrSessionBusy
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.ended:
		s.busy.Store(false)
		return ErrSessionEnded
	case s.used:
		s.busy.Store(false)
		return ErrSessionNotReset
	}
	s.used = true
	return nil
}

func (s *Session) release() { s.busy.Store(false) }

// check reports the error acquire would return, without claiming.
func (s *Session) check() error {
	if s.busy.Load() {
		return ErrSessionBusy
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.ended:
		return ErrSessionEnded
	case s.used:
		return ErrSessionNotReset
	}
	return nil
}
