package model

import (
	"time"

	"promptd/internal/gguf"
)

// Info is a copy of a handle's descriptive metadata.
type Info struct {
	Path            string
	Architecture    string
	Name            string
	Quant           string
	ContextLength   uint64
	EmbeddingLength uint64
	BlockCount      uint64
	VocabSize       int
	// BOS and EOS are -1 when the artifact does not declare them.
	BOS       int32
	EOS       int32
	Tensors   int
	SizeBytes int64
	LoadedAt  time.Time
}

// Handle is a loaded model. It never changes after the store publishes it;
// every session created from it sees the same weights.
type Handle struct {
	info  Info
	vocab []string
	rt    Runtime
}

func newHandle(path string, f *gguf.File, rt Runtime, now time.Time) *Handle {
	vocab := f.Tokens()
	bos, ok := f.BOS()
	if !ok {
		bos = -1
	}
	eos, ok := f.EOS()
	if !ok {
		eos = -1
	}
	return &Handle{
		info: Info{
			Path:            path,
			Architecture:    f.Architecture(),
			Name:            f.Name(),
			Quant:           f.FileType(),
			ContextLength:   f.ContextLength(),
			EmbeddingLength: f.EmbeddingLength(),
			BlockCount:      f.BlockCount(),
			VocabSize:       len(vocab),
			BOS:             bos,
			EOS:             eos,
			Tensors:         len(f.Tensors),
			SizeBytes:       f.Size,
			LoadedAt:        now,
		},
		vocab: vocab,
		rt:    rt,
	}
}

func (h *Handle) Info() Info   { return h.info }
func (h *Handle) Path() string { return h.info.Path }

// Vocab returns the token table. Callers must not modify it.
func (h *Handle) Vocab() []string { return h.vocab }

// NewContext allocates fresh decode state against the shared weights.
func (h *Handle) NewContext() (DecodeContext, error) {
	return h.rt.NewContext()
}
