package e2e

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"promptd/internal/httpapi"
	"promptd/internal/manager"
	"promptd/internal/model"
	"promptd/internal/model/modeltest"
	"promptd/internal/registry"
)

// createTempModelsDir writes small valid GGUF artifacts into a temp dir.
func createTempModelsDir(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, n := range names {
		modeltest.WriteArtifact(t, dir, n, "llama")
	}
	return dir
}

// newServerForDir scans modelsDir and serves it through backend.
func newServerForDir(t *testing.T, modelsDir string, backend model.Backend, cfg manager.ManagerConfig) (*httptest.Server, *manager.Manager) {
	t.Helper()
	reg, defaultID, err := registry.Build(&registry.GGUFScanner{ReadMetadata: true}, "", modelsDir, cfg.DefaultModel)
	if err != nil {
		t.Fatalf("scan models: %v", err)
	}
	cfg.Registry = reg
	cfg.DefaultModel = defaultID
	cfg.Store = model.NewStore(model.StoreConfig{Backend: backend, Logger: zerolog.Nop()})
	mgr := manager.NewWithConfig(cfg)
	srv := httptest.NewServer(httpapi.NewMux(mgr, httpapi.Options{}))
	t.Cleanup(func() {
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mgr.Close(ctx)
	})
	return srv, mgr
}

func httpGet(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

func httpPostJSON(t *testing.T, url string, payload []byte) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}
