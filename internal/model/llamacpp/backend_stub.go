//go:build !llama

package llamacpp

import (
	"context"
	"fmt"

	"promptd/internal/gguf"
	"promptd/internal/model"
)

// Built reports whether this binary includes the in-process runtime.
const Built = false

var errNotBuilt = fmt.Errorf("%w: llama support not built (missing 'llama' build tag)", model.ErrBackendUnavailable)

// Backend refuses to load models without the 'llama' build tag.
type Backend struct {
	cfg Config
}

func New(cfg Config) *Backend { return &Backend{cfg: cfg.withDefaults()} }

func (b *Backend) Name() string { return "llama" }

func (b *Backend) Check() error { return errNotBuilt }

func (b *Backend) Load(ctx context.Context, path string, meta *gguf.File) (model.Runtime, error) {
	return nil, errNotBuilt
}
