// Package llamacpp runs GGUF models in-process through go-llama.cpp.
//
// The real backend is compiled with the 'llama' build tag and links against
// libllama. Default builds get a stub whose Load fails with
// model.ErrBackendUnavailable, which keeps them CGO-free.
package llamacpp

// Config configures the in-process runtime.
type Config struct {
	// ContextSize is the KV cache size in tokens.
	ContextSize int
	Threads     int
	// GPULayers is the number of layers offloaded to the GPU.
	GPULayers int
}

const (
	defaultContextSize = 2048
	defaultThreads     = 4
)

func (c Config) withDefaults() Config {
	if c.ContextSize <= 0 {
		c.ContextSize = defaultContextSize
	}
	if c.Threads <= 0 {
		c.Threads = defaultThreads
	}
	return c
}
