// Package model loads quantized model artifacts once per path and hands out
// shared, read-only handles to them.
package model

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"promptd/internal/common/fsutil"
	"promptd/internal/events"
	"promptd/internal/gguf"
)

// DefaultArchitectures is the set of `general.architecture` values accepted
// when StoreConfig.Architectures is empty.
var DefaultArchitectures = []string{
	"llama", "mistral", "mixtral", "gemma", "gemma2", "gemma3", "phi2", "phi3",
	"qwen", "qwen2", "qwen3", "starcoder", "starcoder2", "falcon", "gpt2",
	"gptneox", "bloom", "mpt", "stablelm", "command-r", "deepseek", "deepseek2",
	"baichuan", "internlm2", "olmo", "granite",
}

// StoreConfig configures a Store.
type StoreConfig struct {
	Backend Backend
	// Architectures overrides DefaultArchitectures.
	Architectures []string
	Logger        zerolog.Logger
	Publisher     events.Publisher
}

// Store loads artifacts lazily, exactly once per distinct path.
type Store struct {
	backend   Backend
	archs     map[string]struct{}
	log       zerolog.Logger
	publisher events.Publisher

	// open is swapped in tests to count artifact reads.
	open func(string) (*gguf.File, error)
	now  func() time.Time

	group   singleflight.Group
	mu      sync.RWMutex
	handles map[string]*Handle
	closed  bool
}

func NewStore(cfg StoreConfig) *Store {
	archs := cfg.Architectures
	if len(archs) == 0 {
		archs = DefaultArchitectures
	}
	set := make(map[string]struct{}, len(archs))
	for _, a := range archs {
		set[strings.ToLower(strings.TrimSpace(a))] = struct{}{}
	}
	return &Store{
		backend:   cfg.Backend,
		archs:     set,
		log:       cfg.Logger,
		publisher: events.OrNoop(cfg.Publisher),
		open:      gguf.Open,
		now:       time.Now,
		handles:   make(map[string]*Handle),
	}
}

// Backend returns the configured runtime backend.
func (s *Store) Backend() Backend { return s.backend }

// Acquire returns the handle for path, loading it on first use. Concurrent
// first calls for the same path share one load. A failed load is not cached;
// the next call retries. If ctx ends while waiting, Acquire returns ctx.Err()
// and the load continues for the other waiters.
func (s *Store) Acquire(ctx context.Context, path string) (*Handle, error) {
	key, err := fsutil.Resolve(path)
	if err != nil {
		return nil, &LoadError{Path: path, Reason: ReasonNotFound, Err: err}
	}
	s.mu.RLock()
	h, closed := s.handles[key], s.closed
	s.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}
	if h != nil {
		return h, nil
	}
	ch := s.group.DoChan(key, func() (any, error) {
		s.mu.RLock()
		h := s.handles[key]
		s.mu.RUnlock()
		if h != nil {
			return h, nil
		}
		return s.load(context.WithoutCancel(ctx), key)
	})
	select {
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*Handle), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Store) load(ctx context.Context, path string) (*Handle, error) {
	start := s.now()
	s.publisher.Publish(events.Event{Name: "load_start", ModelID: path})
	s.log.Info().Str("model", path).Msg("model load start")

	h, err := s.loadArtifact(ctx, path, start)
	if err != nil {
		var le *LoadError
		reason := ReasonBackend
		if errors.As(err, &le) {
			reason = le.Reason
		}
		loadsTotal.WithLabelValues(resultLabel(reason)).Inc()
		s.publisher.Publish(events.Event{Name: "load_error", ModelID: path, Fields: map[string]any{"reason": reason, "error": err.Error()}})
		s.log.Error().Err(err).Str("model", path).Str("reason", reason).Msg("model load failed")
		return nil, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = h.rt.Close()
		return nil, ErrClosed
	}
	s.handles[path] = h
	s.mu.Unlock()

	dur := s.now().Sub(start)
	loadsTotal.WithLabelValues("ok").Inc()
	loadDuration.Observe(dur.Seconds())
	s.publisher.Publish(events.Event{Name: "load_done", ModelID: path, Fields: map[string]any{"duration_ms": dur.Milliseconds(), "arch": h.info.Architecture}})
	s.log.Info().Str("model", path).Str("arch", h.info.Architecture).Str("quant", h.info.Quant).Dur("took", dur).Msg("model loaded")
	return h, nil
}

func (s *Store) loadArtifact(ctx context.Context, path string, now time.Time) (*Handle, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, &LoadError{Path: path, Reason: ReasonNotFound, Err: err}
	}
	if !fi.Mode().IsRegular() {
		return nil, &LoadError{Path: path, Reason: ReasonNotFile}
	}
	f, err := s.open(path)
	if err != nil {
		return nil, &LoadError{Path: path, Reason: ReasonCorrupt, Err: err}
	}
	arch := f.Architecture()
	s.publisher.Publish(events.Event{Name: "load_metadata", ModelID: path, Fields: map[string]any{
		"arch": arch, "version": f.Version, "tensors": len(f.Tensors), "vocab": len(f.Tokens()),
	}})
	if _, ok := s.archs[strings.ToLower(arch)]; !ok {
		return nil, &LoadError{Path: path, Reason: ReasonUnsupportedArch, Err: fmt.Errorf("architecture %q", arch)}
	}
	if s.backend == nil {
		return nil, &LoadError{Path: path, Reason: ReasonBackend, Err: ErrBackendUnavailable}
	}
	rt, err := s.backend.Load(ctx, path, f)
	if err != nil {
		return nil, &LoadError{Path: path, Reason: ReasonBackend, Err: err}
	}
	return newHandle(path, f, rt, now), nil
}

// Loaded returns the handles currently held, ordered by path.
func (s *Store) Loaded() []*Handle {
	s.mu.RLock()
	out := make([]*Handle, 0, len(s.handles))
	for _, h := range s.handles {
		out = append(out, h)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].info.Path < out[j].info.Path })
	return out
}

// IsLoaded reports whether path has a published handle.
func (s *Store) IsLoaded(path string) bool {
	key, err := fsutil.Resolve(path)
	if err != nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.handles[key]
	return ok
}

// SupportedArchitectures returns the accepted architectures, sorted.
func (s *Store) SupportedArchitectures() []string {
	out := make([]string, 0, len(s.archs))
	for a := range s.archs {
		out = append(out, a)
	}
	slices.Sort(out)
	return out
}

// Close releases every runtime. Subsequent Acquire calls fail with ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	handles := s.handles
	s.handles = map[string]*Handle{}
	s.mu.Unlock()

	var errs []error
	for path, h := range handles {
		if err := h.rt.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", path, err))
		}
		s.publisher.Publish(events.Event{Name: "unload", ModelID: path})
	}
	return errors.Join(errs...)
}

func resultLabel(reason string) string {
	switch reason {
	case ReasonNotFound, ReasonNotFile:
		return "not_found"
	case ReasonCorrupt:
		return "corrupt"
	case ReasonUnsupportedArch:
		return "unsupported"
	default:
		return "backend_error"
	}
}
