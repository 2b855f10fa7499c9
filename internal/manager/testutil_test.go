package manager

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"promptd/internal/events"
	"promptd/internal/model"
	"promptd/internal/model/modeltest"
	"promptd/pkg/types"
)

// newTestManager builds a Manager over a scripted backend and a real store
// with one registered model, "m.gguf".
func newTestManager(t *testing.T, b *modeltest.Backend, mut func(*ManagerConfig)) (*Manager, *events.Memory) {
	t.Helper()
	path := modeltest.WriteArtifact(t, t.TempDir(), "m.gguf", "llama")
	pub := events.NewMemory()
	store := model.NewStore(model.StoreConfig{Backend: b, Publisher: pub, Logger: zerolog.Nop()})
	cfg := ManagerConfig{
		Store:         store,
		Registry:      []types.Model{{ID: "m.gguf", Name: "m.gguf", Path: path}},
		DefaultModel:  "m.gguf",
		MaxQueueDepth: 4,
		Logger:        zerolog.Nop(),
		Publisher:     pub,
	}
	if mut != nil {
		mut(&cfg)
	}
	m := NewWithConfig(cfg)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.Close(ctx)
	})
	return m, pub
}

func missingModel(t *testing.T) types.Model {
	return types.Model{ID: "gone.gguf", Path: filepath.Join(t.TempDir(), "gone.gguf")}
}

func intp(n int) *int { return &n }

func fp(x float64) *float64 { return &x }

// waitState polls until request id reaches state.
func waitState(t *testing.T, m *Manager, id string, state RequestState) types.RequestStatus {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if st, ok := m.Lookup(id); ok && st.State == string(state) {
			return st
		}
		time.Sleep(2 * time.Millisecond)
	}
	st, _ := m.Lookup(id)
	t.Fatalf("request %s did not reach %s (now %q)", id, state, st.State)
	return st
}

// errWriter writes once, then returns an error on subsequent writes.
type errWriter struct{ wrote int }

func (e *errWriter) Write(p []byte) (int, error) {
	if e.wrote == 0 {
		e.wrote += len(p)
		return len(p), nil
	}
	return 0, errors.New("write fail")
}

// testCtx returns a context with a short timeout, canceled on test cleanup.
func testCtx(t *testing.T) context.Context {
	t.Helper()
	c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return c
}
