package model

import (
	"context"

	"promptd/internal/gguf"
	"promptd/internal/sample"
)

// Backend turns a validated artifact into a Runtime that owns the weights.
// Load is called at most once per path by the Store.
type Backend interface {
	Name() string
	Load(ctx context.Context, path string, meta *gguf.File) (Runtime, error)
}

// Checker is implemented by backends that can report whether their
// dependency (shared library, server binary) is usable.
type Checker interface {
	Check() error
}

// Runtime holds loaded weights. It is shared read-only by every decode
// context created from it.
type Runtime interface {
	NewContext() (DecodeContext, error)
	Close() error
}

// DecodeOptions configures one generation on a DecodeContext.
type DecodeOptions struct {
	Sampling sample.Params
	// MaxTokens is a hint for runtimes that need an upper bound up front.
	// The caller still enforces the limit itself.
	MaxTokens int
}

// DecodeContext is the per-generation mutable state: KV cache, position,
// sampler state. It is not safe for concurrent use.
type DecodeContext interface {
	// Prompt clears previous state and ingests prompt.
	Prompt(ctx context.Context, prompt string, opts DecodeOptions) error
	// Next runs one decode step and returns the sampled token.
	Next(ctx context.Context) (Token, error)
	// Reset drops accumulated state without releasing resources.
	Reset() error
	Close() error
}

// Token is one decode step's output.
type Token struct {
	ID   int32
	Text string
	// EOS marks the end-of-sequence token; Text is empty.
	EOS bool
}
