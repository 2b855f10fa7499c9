// Package llamaserver runs models in a llama.cpp `llama-server` process and
// decodes over its OpenAI-compatible streaming completions endpoint.
//
// In spawn mode one server process is started per model path when the store
// loads it and stopped when the store closes. With Config.URL set, an
// already-running server is used instead and nothing is spawned.
package llamaserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"promptd/internal/events"
	"promptd/internal/gguf"
	"promptd/internal/model"
)

const defaultReadyTimeout = 30 * time.Second

// Config configures the llama-server backend.
type Config struct {
	// Bin is the llama-server executable used in spawn mode.
	Bin string
	// URL of an existing server. When set, nothing is spawned.
	URL    string
	APIKey string

	Host      string
	PortStart int
	PortEnd   int

	ContextSize int
	GPULayers   int
	Threads     int
	ExtraArgs   []string

	// ReadyTimeout bounds the wait for a spawned server to answer health checks.
	ReadyTimeout time.Duration

	Logger    zerolog.Logger
	Publisher events.Publisher
}

type Backend struct {
	cfg       Config
	client    *http.Client
	publisher events.Publisher
}

func New(cfg Config) *Backend {
	if strings.TrimSpace(cfg.Host) == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = defaultReadyTimeout
	}
	cfg.URL = strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          16,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	// Timeout stays 0: streams are bounded by the request context.
	return &Backend{
		cfg:       cfg,
		client:    &http.Client{Transport: tr, Timeout: 0},
		publisher: events.OrNoop(cfg.Publisher),
	}
}

func (b *Backend) Name() string { return "llama-server" }

// Check reports whether the server binary can be found (spawn mode) or the
// configured server answers health checks.
func (b *Backend) Check() error {
	if b.cfg.URL != "" {
		if !b.healthy(b.cfg.URL, 2*time.Second) {
			return fmt.Errorf("%w: llama-server at %s is not healthy", model.ErrBackendUnavailable, b.cfg.URL)
		}
		return nil
	}
	if strings.TrimSpace(b.cfg.Bin) == "" {
		return fmt.Errorf("%w: llama_bin not configured", model.ErrBackendUnavailable)
	}
	if _, err := exec.LookPath(b.cfg.Bin); err != nil {
		return fmt.Errorf("%w: %v", model.ErrBackendUnavailable, err)
	}
	return nil
}

func (b *Backend) Load(ctx context.Context, path string, meta *gguf.File) (model.Runtime, error) {
	if b.cfg.URL != "" {
		if !b.healthy(b.cfg.URL, 5*time.Second) {
			return nil, fmt.Errorf("%w: llama-server at %s is not healthy", model.ErrBackendUnavailable, b.cfg.URL)
		}
		return &serverRuntime{b: b, baseURL: b.cfg.URL}, nil
	}
	if strings.TrimSpace(b.cfg.Bin) == "" {
		return nil, fmt.Errorf("%w: llama_bin not configured", model.ErrBackendUnavailable)
	}
	p, err := b.spawn(ctx, path)
	if err != nil {
		return nil, err
	}
	return &serverRuntime{b: b, baseURL: p.baseURL, proc: p}, nil
}

// healthy checks whether the server at baseURL responds OK to /v1/models.
func (b *Backend) healthy(baseURL string, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/v1/models", nil)
	if err != nil {
		return false
	}
	b.authorize(req)
	resp, err := b.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

func (b *Backend) authorize(req *http.Request) {
	if b.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.cfg.APIKey)
	}
}

type serverRuntime struct {
	b       *Backend
	baseURL string
	proc    *process
}

func (r *serverRuntime) NewContext() (model.DecodeContext, error) {
	return &decodeContext{b: r.b, baseURL: r.baseURL}, nil
}

func (r *serverRuntime) Close() error {
	if r.proc == nil {
		return nil
	}
	return r.proc.stop(r.b)
}
