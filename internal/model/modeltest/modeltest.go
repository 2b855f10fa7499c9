// Package modeltest provides a scripted model backend and artifact fixtures
// for tests of packages that decode through model.Handle.
package modeltest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"promptd/internal/gguf"
	"promptd/internal/model"
)

// ErrStep is returned by Next at Backend.FailAt.
var ErrStep = errors.New("scripted decode failure")

// Backend is a model.Backend whose contexts replay Script.
type Backend struct {
	// Script is emitted token by token, followed by end-of-sequence.
	Script []string
	// Endless emits "t<i> " forever instead of Script.
	Endless bool
	// Echo emits each whitespace-separated word of the prompt, followed
	// by a space, instead of Script.
	Echo bool
	// FailAt makes the n-th Next call (1-based) of a generation fail.
	FailAt int
	// StepDelay is slept (respecting ctx) before each token.
	StepDelay time.Duration
	// Gate, when set, must be received from before each token.
	Gate chan struct{}
	// PanicAt makes the n-th Next call (1-based) of a generation panic.
	PanicAt int
	// LoadErr fails every Load.
	LoadErr error
	// LoadDelay is slept before Load returns.
	LoadDelay time.Duration

	mu       sync.Mutex
	loads    int
	contexts int
	open     int
	prompts  []string
	opts     []model.DecodeOptions
	inNext   int
	maxNext  int
}

func (b *Backend) Name() string { return "scripted" }

func (b *Backend) Load(ctx context.Context, path string, meta *gguf.File) (model.Runtime, error) {
	b.mu.Lock()
	b.loads++
	b.mu.Unlock()
	if b.LoadDelay > 0 {
		time.Sleep(b.LoadDelay)
	}
	if b.LoadErr != nil {
		return nil, b.LoadErr
	}
	return runtime{b: b}, nil
}

// Loads returns how many times Load ran.
func (b *Backend) Loads() int { b.mu.Lock(); defer b.mu.Unlock(); return b.loads }

// Contexts returns how many decode contexts were created.
func (b *Backend) Contexts() int { b.mu.Lock(); defer b.mu.Unlock(); return b.contexts }

// Open returns how many decode contexts are not yet closed.
func (b *Backend) Open() int { b.mu.Lock(); defer b.mu.Unlock(); return b.open }

// MaxConcurrentNext returns the highest number of Next calls that were in
// flight at the same time.
func (b *Backend) MaxConcurrentNext() int { b.mu.Lock(); defer b.mu.Unlock(); return b.maxNext }

// Prompts returns every prompt ingested, in order.
func (b *Backend) Prompts() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.prompts...)
}

// Options returns the decode options of every prompt, in order.
func (b *Backend) Options() []model.DecodeOptions {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]model.DecodeOptions(nil), b.opts...)
}

type runtime struct{ b *Backend }

func (r runtime) NewContext() (model.DecodeContext, error) {
	r.b.mu.Lock()
	r.b.contexts++
	r.b.open++
	r.b.mu.Unlock()
	return &decodeContext{b: r.b}, nil
}

func (r runtime) Close() error { return nil }

type decodeContext struct {
	b      *Backend
	pos    int
	words  []string
	closed bool
}

func (c *decodeContext) Prompt(ctx context.Context, prompt string, opts model.DecodeOptions) error {
	c.b.mu.Lock()
	c.b.prompts = append(c.b.prompts, prompt)
	c.b.opts = append(c.b.opts, opts)
	c.b.mu.Unlock()
	c.pos = 0
	c.words = strings.Fields(prompt)
	return nil
}

func (c *decodeContext) Next(ctx context.Context) (model.Token, error) {
	c.b.mu.Lock()
	c.b.inNext++
	c.b.maxNext = max(c.b.maxNext, c.b.inNext)
	c.b.mu.Unlock()
	defer func() {
		c.b.mu.Lock()
		c.b.inNext--
		c.b.mu.Unlock()
	}()
	if c.b.Gate != nil {
		select {
		case <-c.b.Gate:
		case <-ctx.Done():
			return model.Token{}, ctx.Err()
		}
	}
	if c.b.StepDelay > 0 {
		t := time.NewTimer(c.b.StepDelay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return model.Token{}, ctx.Err()
		}
	}
	c.pos++
	if c.b.PanicAt > 0 && c.pos == c.b.PanicAt {
		panic("scripted decode panic")
	}
	if c.b.FailAt > 0 && c.pos == c.b.FailAt {
		return model.Token{}, ErrStep
	}
	if c.b.Endless {
		return model.Token{ID: int32(c.pos), Text: fmt.Sprintf("t%d ", c.pos-1)}, nil
	}
	if c.b.Echo {
		if c.pos > len(c.words) {
			return model.Token{ID: 1, EOS: true}, nil
		}
		return model.Token{ID: int32(c.pos + 1), Text: c.words[c.pos-1] + " "}, nil
	}
	if c.pos > len(c.b.Script) {
		return model.Token{ID: 1, EOS: true}, nil
	}
	return model.Token{ID: int32(c.pos + 1), Text: c.b.Script[c.pos-1]}, nil
}

func (c *decodeContext) Reset() error {
	c.pos = 0
	c.words = nil
	return nil
}

func (c *decodeContext) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.b.mu.Lock()
	c.b.open--
	c.b.mu.Unlock()
	return nil
}

// WriteArtifact writes a small valid GGUF file with the given architecture
// into dir and returns its path.
func WriteArtifact(tb testing.TB, dir, name, arch string) string {
	tb.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		tb.Fatalf("create artifact: %v", err)
	}
	defer f.Close()
	kv := map[string]any{
		"general.architecture":        arch,
		"general.name":                name,
		"general.file_type":           uint32(15),
		arch + ".context_length":      uint32(2048),
		arch + ".embedding_length":    uint32(64),
		arch + ".block_count":         uint32(2),
		"tokenizer.ggml.model":        "llama",
		"tokenizer.ggml.tokens":       []string{"<unk>", "</s>", "hello", "world"},
		"tokenizer.ggml.bos_token_id": uint32(0),
		"tokenizer.ggml.eos_token_id": uint32(1),
	}
	tensors := []gguf.TensorInfo{
		{Name: "token_embd.weight", Dims: []uint64{64, 4}, Type: gguf.TypeF32},
	}
	if err := gguf.Write(f, kv, tensors); err != nil {
		tb.Fatalf("write artifact: %v", err)
	}
	return path
}
