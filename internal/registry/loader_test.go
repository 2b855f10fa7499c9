package registry

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"promptd/internal/model/modeltest"
)

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, f := range names {
		if err := os.WriteFile(filepath.Join(dir, f), []byte(""), 0o644); err != nil {
			t.Fatalf("write temp file: %v", err)
		}
	}
}

func TestGGUFScanner_ScanFiltersGGUF(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "b.GGUF", "a.gguf", "not-model.txt", "model.bin")
	if err := os.Mkdir(filepath.Join(dir, "dir.gguf"), 0o755); err != nil {
		t.Fatal(err)
	}
	models, err := NewGGUFScanner().Scan(dir)
	if err != nil {
		t.Fatalf("scan error: %v", err)
	}
	if len(models) != 2 || models[0].ID != "a.gguf" || models[1].ID != "b.GGUF" {
		t.Fatalf("unexpected models: %+v", models)
	}
	for _, m := range models {
		if !filepath.IsAbs(m.Path) {
			t.Fatalf("path not absolute: %s", m.Path)
		}
	}
}

func TestGGUFScanner_ExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home dir on this platform: %v", err)
	}
	hTmp, err := os.MkdirTemp(home, "promptd-registry-*")
	if err != nil {
		t.Skipf("cannot create temp under home: %v", err)
	}
	defer os.RemoveAll(hTmp)
	touch(t, hTmp, "x.gguf")
	tildePath := "~/" + filepath.Base(hTmp)
	if runtime.GOOS == "windows" {
		tildePath = filepath.Join("~", filepath.Base(hTmp))
	}
	models, err := NewGGUFScanner().Scan(tildePath)
	if err != nil {
		t.Fatalf("scan error: %v", err)
	}
	if len(models) != 1 || models[0].ID != "x.gguf" {
		t.Fatalf("unexpected models: %+v", models)
	}
}

func TestScanReadsMetadata(t *testing.T) {
	dir := t.TempDir()
	modeltest.WriteArtifact(t, dir, "tiny.gguf", "llama")
	touch(t, dir, "broken.gguf")
	models, err := (&GGUFScanner{ReadMetadata: true}).Scan(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(models) != 2 {
		t.Fatalf("unreadable headers must still be listed: %+v", models)
	}
	if models[0].ID != "broken.gguf" || models[0].Family != "" {
		t.Fatalf("unexpected broken entry: %+v", models[0])
	}
	if m := models[1]; m.Family != "llama" || m.Quant != "Q4_K_M" {
		t.Fatalf("metadata not read: %+v", m)
	}
}

func TestBuild(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a.gguf", "b.gguf")
	single := t.TempDir()
	touch(t, single, "solo.gguf")
	s := NewGGUFScanner()

	models, def, err := Build(s, filepath.Join(single, "solo.gguf"), dir, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(models) != 3 || def != "solo.gguf" {
		t.Fatalf("unexpected registry %+v default %q", models, def)
	}

	if _, def, err = Build(s, "", dir, "b.gguf"); err != nil || def != "b.gguf" {
		t.Fatalf("explicit default: %q %v", def, err)
	}
	if _, def, err = Build(s, "", dir, ""); err != nil || def != "" {
		t.Fatalf("several models and no default should leave it empty: %q %v", def, err)
	}
	if _, _, err = Build(s, "", dir, "zzz.gguf"); err == nil || !strings.Contains(err.Error(), "zzz.gguf") {
		t.Fatalf("expected unknown default error, got %v", err)
	}
	if _, _, err = Build(s, filepath.Join(dir, "missing.gguf"), "", ""); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
	if _, _, err = Build(s, dir, "", ""); err == nil {
		t.Fatalf("a directory is not a model file")
	}

	// A model path replaces a scanned entry with the same id.
	models, _, err = Build(s, filepath.Join(dir, "a.gguf"), dir, "")
	if err != nil || len(models) != 2 {
		t.Fatalf("expected de-duplicated registry: %+v %v", models, err)
	}
}
