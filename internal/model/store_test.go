package model_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"promptd/internal/events"
	"promptd/internal/gguf"
	"promptd/internal/model"
	"promptd/internal/model/modeltest"
)

func newStore(t *testing.T, b model.Backend) (*model.Store, *events.Memory, *atomic.Int32) {
	t.Helper()
	pub := events.NewMemory()
	s := model.NewStore(model.StoreConfig{Backend: b, Publisher: pub})
	var reads atomic.Int32
	model.SetOpen(s, func(p string) (*gguf.File, error) {
		reads.Add(1)
		return gguf.Open(p)
	})
	t.Cleanup(func() { _ = s.Close() })
	return s, pub, &reads
}

func TestAcquireLoadsOnceAndCaches(t *testing.T) {
	b := &modeltest.Backend{}
	s, pub, reads := newStore(t, b)
	path := modeltest.WriteArtifact(t, t.TempDir(), "tiny.gguf", "llama")

	h1, err := s.Acquire(context.Background(), path)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	h2, err := s.Acquire(context.Background(), path)
	if err != nil {
		t.Fatalf("acquire again: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("expected the same handle for the same path")
	}
	if reads.Load() != 1 || b.Loads() != 1 {
		t.Fatalf("expected 1 read and 1 load, got %d reads %d loads", reads.Load(), b.Loads())
	}
	info := h1.Info()
	if info.Architecture != "llama" || info.VocabSize != 4 || info.EOS != 1 || info.ContextLength != 2048 || info.Quant != "Q4_K_M" {
		t.Fatalf("unexpected info: %+v", info)
	}
	if got := pub.Names(); len(got) != 3 || got[0] != "load_start" || got[1] != "load_metadata" || got[2] != "load_done" {
		t.Fatalf("unexpected events: %v", got)
	}
	if !s.IsLoaded(path) || len(s.Loaded()) != 1 {
		t.Fatalf("expected path to be reported as loaded")
	}
}

func TestAcquireConcurrentFirstAccessCollapses(t *testing.T) {
	b := &modeltest.Backend{LoadDelay: 50 * time.Millisecond}
	s, _, reads := newStore(t, b)
	path := modeltest.WriteArtifact(t, t.TempDir(), "tiny.gguf", "llama")

	const n = 16
	handles := make([]*model.Handle, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := s.Acquire(context.Background(), path)
			if err != nil {
				t.Errorf("acquire %d: %v", i, err)
				return
			}
			handles[i] = h
		}(i)
	}
	wg.Wait()
	for i := 1; i < n; i++ {
		if handles[i] != handles[0] {
			t.Fatalf("caller %d got a different handle", i)
		}
	}
	if reads.Load() != 1 || b.Loads() != 1 {
		t.Fatalf("expected exactly one read and load, got %d reads %d loads", reads.Load(), b.Loads())
	}
}

func TestAcquireRelativeAndAbsolutePathsShareHandle(t *testing.T) {
	b := &modeltest.Backend{}
	s, _, _ := newStore(t, b)
	dir := t.TempDir()
	path := modeltest.WriteArtifact(t, dir, "tiny.gguf", "llama")
	h1, err := s.Acquire(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := s.Acquire(context.Background(), filepath.Join(dir, ".", "tiny.gguf"))
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 || b.Loads() != 1 {
		t.Fatalf("expected a single handle for equivalent paths")
	}
}

func TestAcquireErrors(t *testing.T) {
	dir := t.TempDir()
	corrupt := filepath.Join(dir, "bad.gguf")
	if err := os.WriteFile(corrupt, []byte("not a gguf file at all, definitely"), 0o644); err != nil {
		t.Fatal(err)
	}
	unsupported := modeltest.WriteArtifact(t, dir, "bert.gguf", "bert")

	cases := []struct {
		name   string
		path   string
		reason string
	}{
		{"missing", filepath.Join(dir, "nope.gguf"), model.ReasonNotFound},
		{"directory", dir, model.ReasonNotFile},
		{"corrupt", corrupt, model.ReasonCorrupt},
		{"unsupported arch", unsupported, model.ReasonUnsupportedArch},
		{"empty", "  ", model.ReasonNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, pub, _ := newStore(t, &modeltest.Backend{})
			_, err := s.Acquire(context.Background(), tc.path)
			var le *model.LoadError
			if !errors.As(err, &le) {
				t.Fatalf("expected *LoadError, got %v", err)
			}
			if le.Reason != tc.reason {
				t.Fatalf("expected reason %q, got %q (%v)", tc.reason, le.Reason, err)
			}
			if !model.IsLoadError(err) {
				t.Fatalf("IsLoadError should match")
			}
			if tc.path != "  " && pub.Count("load_error") != 1 {
				t.Fatalf("expected load_error event, got %v", pub.Names())
			}
		})
	}
	t.Run("corrupt wraps gguf error", func(t *testing.T) {
		s, _, _ := newStore(t, &modeltest.Backend{})
		_, err := s.Acquire(context.Background(), corrupt)
		if !errors.Is(err, gguf.ErrBadMagic) {
			t.Fatalf("expected ErrBadMagic in chain, got %v", err)
		}
	})
}

func TestFailedLoadIsNotCached(t *testing.T) {
	b := &modeltest.Backend{LoadErr: errors.New("boom")}
	s, _, _ := newStore(t, b)
	path := modeltest.WriteArtifact(t, t.TempDir(), "tiny.gguf", "llama")
	if _, err := s.Acquire(context.Background(), path); err == nil {
		t.Fatalf("expected backend failure")
	}
	if _, err := s.Acquire(context.Background(), path); err == nil {
		t.Fatalf("expected backend failure again")
	}
	if b.Loads() != 2 {
		t.Fatalf("expected a retry per call, got %d loads", b.Loads())
	}
	if s.IsLoaded(path) {
		t.Fatalf("failed load must not be published")
	}
}

func TestAcquireMissingBackend(t *testing.T) {
	s := model.NewStore(model.StoreConfig{})
	path := modeltest.WriteArtifact(t, t.TempDir(), "tiny.gguf", "llama")
	_, err := s.Acquire(context.Background(), path)
	if !errors.Is(err, model.ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}
}

func TestAcquireWaiterHonorsContext(t *testing.T) {
	b := &modeltest.Backend{LoadDelay: 200 * time.Millisecond}
	s, _, _ := newStore(t, b)
	path := modeltest.WriteArtifact(t, t.TempDir(), "tiny.gguf", "llama")
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := s.Acquire(ctx, path); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	// The load keeps going and is published for later callers.
	h, err := s.Acquire(context.Background(), path)
	if err != nil || h == nil {
		t.Fatalf("expected handle after background load, got %v", err)
	}
	if b.Loads() != 1 {
		t.Fatalf("expected one load, got %d", b.Loads())
	}
}

func TestCloseRejectsAcquire(t *testing.T) {
	s := model.NewStore(model.StoreConfig{Backend: &modeltest.Backend{}})
	path := modeltest.WriteArtifact(t, t.TempDir(), "tiny.gguf", "llama")
	if _, err := s.Acquire(context.Background(), path); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := s.Acquire(context.Background(), path); !errors.Is(err, model.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if len(s.Loaded()) != 0 {
		t.Fatalf("expected no handles after close")
	}
}

func TestCustomArchitectures(t *testing.T) {
	s := model.NewStore(model.StoreConfig{Backend: &modeltest.Backend{}, Architectures: []string{" BERT "}})
	defer s.Close()
	path := modeltest.WriteArtifact(t, t.TempDir(), "bert.gguf", "bert")
	if _, err := s.Acquire(context.Background(), path); err != nil {
		t.Fatalf("expected bert to be accepted: %v", err)
	}
	if got := s.SupportedArchitectures(); len(got) != 1 || got[0] != "bert" {
		t.Fatalf("unexpected archs: %v", got)
	}
}
