package engine

import (
	"errors"
	"strings"
	"time"

	"promptd/internal/sample"
)

// StopReason says why a generation ended.
type StopReason string

const (
	StopMaxTokens     StopReason = "max-tokens"
	StopEndOfSequence StopReason = "end-of-sequence"
	StopCancelled     StopReason = "cancelled"
	StopError         StopReason = "error"
)

// Request is one generation's input. It is copied on Start and never
// modified afterwards.
type Request struct {
	Prompt string
	// MaxTokens bounds the produced token count; 0 returns immediately.
	MaxTokens int
	Sampling  sample.Params
	// Stop sequences end generation with StopEndOfSequence when produced.
	// The matched text is not part of the result.
	Stop []string
}

// Validate checks the request without touching any session. Zero sampling
// fields are accepted as unset.
func (r Request) Validate() error { return r.validate(r.Sampling.Validate) }

// ValidateResolved is Validate for a request whose sampling fields were all
// filled in by the caller; a zero sampling field is rejected.
func (r Request) ValidateResolved() error { return r.validate(r.Sampling.ValidateResolved) }

func (r Request) validate(sampling func() error) error {
	if strings.TrimSpace(r.Prompt) == "" {
		return &InvalidParamsError{Field: "prompt", Reason: "must not be empty"}
	}
	if r.MaxTokens < 0 {
		return &InvalidParamsError{Field: "max_tokens", Reason: "must be >= 0"}
	}
	for _, s := range r.Stop {
		if s == "" {
			return &InvalidParamsError{Field: "stop", Reason: "sequences must not be empty"}
		}
	}
	if err := sampling(); err != nil {
		var fe *sample.FieldError
		if errors.As(err, &fe) {
			return &InvalidParamsError{Field: fe.Field, Reason: fe.Reason}
		}
		return &InvalidParamsError{Field: "sampling", Reason: err.Error()}
	}
	return nil
}

func (r Request) clone() Request {
	r.Stop = append([]string(nil), r.Stop...)
	return r
}

// TokenEvent is one step of a generation as seen by the consumer. Index is
// the 0-based position of the newest token whose text the event carries.
// The last event of every stream has Final set; its Text holds any text
// released at the end and may be empty.
type TokenEvent struct {
	Text  string
	Index int
	Final bool
}

// Result is the assembled outcome of a generation. On StopCancelled and
// StopError it holds the text produced so far.
type Result struct {
	Text         string
	Tokens       int
	Reason       StopReason
	Err          error
	PromptLength int
	Duration     time.Duration
}
