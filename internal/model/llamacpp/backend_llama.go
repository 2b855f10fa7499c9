//go:build llama

package llamacpp

import (
	"context"
	"errors"
	"sync"

	llama "github.com/go-skynet/go-llama.cpp"

	"promptd/internal/gguf"
	"promptd/internal/model"
)

// Built reports whether this binary includes the in-process runtime.
const Built = true

type Backend struct {
	cfg Config
}

func New(cfg Config) *Backend { return &Backend{cfg: cfg.withDefaults()} }

func (b *Backend) Name() string { return "llama" }

func (b *Backend) Check() error { return nil }

func (b *Backend) Load(ctx context.Context, path string, meta *gguf.File) (model.Runtime, error) {
	opts := []llama.ModelOption{llama.SetContext(b.cfg.ContextSize)}
	if b.cfg.GPULayers > 0 {
		opts = append(opts, llama.SetGPULayers(b.cfg.GPULayers))
	}
	m, err := llama.New(path, opts...)
	if err != nil {
		return nil, err
	}
	return &runtime{m: m, threads: b.cfg.Threads}, nil
}

// runtime owns one llama.cpp model. Predict is not reentrant, so decode
// contexts take mu for the whole of a generation.
type runtime struct {
	mu      sync.Mutex
	m       *llama.LLama
	threads int
}

func (r *runtime) NewContext() (model.DecodeContext, error) {
	if r.m == nil {
		return nil, errors.New("llama runtime closed")
	}
	return &decodeContext{rt: r}, nil
}

func (r *runtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.m != nil {
		r.m.Free()
		r.m = nil
	}
	return nil
}

// decodeContext turns go-llama.cpp's callback-driven Predict into single
// steps: the token callback parks on resume until Next asks for more.
type decodeContext struct {
	rt      *runtime
	tokens  chan string
	resume  chan bool
	err     error
	pending bool
}

func (c *decodeContext) Prompt(ctx context.Context, prompt string, opts model.DecodeOptions) error {
	c.stop()
	if c.rt.m == nil {
		return errors.New("llama runtime closed")
	}
	tokens := make(chan string)
	resume := make(chan bool)
	c.tokens, c.resume, c.err = tokens, resume, nil

	po := predictOptions(opts, c.rt.threads)
	c.rt.mu.Lock()
	m := c.rt.m
	m.SetTokenCallback(func(tok string) bool {
		tokens <- tok
		return <-resume
	})
	go func() {
		_, err := m.Predict(prompt, po...)
		m.SetTokenCallback(nil)
		c.rt.mu.Unlock()
		c.err = err
		close(tokens)
	}()
	return nil
}

func (c *decodeContext) Next(ctx context.Context) (model.Token, error) {
	if c.tokens == nil {
		return model.Token{}, errors.New("llama: no prompt")
	}
	if c.pending {
		c.pending = false
		c.resume <- true
	}
	select {
	case tok, ok := <-c.tokens:
		if !ok {
			c.tokens = nil
			if c.err != nil {
				return model.Token{}, c.err
			}
			return model.Token{ID: -1, EOS: true}, nil
		}
		c.pending = true
		return model.Token{ID: -1, Text: tok}, nil
	case <-ctx.Done():
		return model.Token{}, ctx.Err()
	}
}

// stop ends an in-flight Predict and waits for it to release the runtime.
func (c *decodeContext) stop() {
	if c.tokens == nil {
		return
	}
	if c.pending {
		c.pending = false
		c.resume <- false
	}
	for range c.tokens {
		c.resume <- false
	}
	c.tokens = nil
}

func (c *decodeContext) Reset() error {
	c.stop()
	return nil
}

func (c *decodeContext) Close() error {
	c.stop()
	return nil
}

func predictOptions(opts model.DecodeOptions, threads int) []llama.PredictOption {
	p := opts.Sampling.WithDefaults()
	po := []llama.PredictOption{
		// One past the limit so the caller's max-tokens check fires first.
		llama.SetTokens(max(1, opts.MaxTokens+1)),
		llama.SetThreads(max(1, threads)),
		llama.SetTopP(p.TopP),
		llama.SetTopK(p.TopK),
		llama.SetTemperature(p.Temperature),
		llama.SetPenalty(p.RepeatPenalty),
	}
	if p.Seed != 0 {
		po = append(po, llama.SetSeed(int(p.Seed)))
	}
	return po
}
