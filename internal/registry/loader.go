// Package registry builds the list of models a client may name, from a
// single configured artifact and/or a directory of *.gguf files.
package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"promptd/internal/common/fsutil"
	"promptd/internal/gguf"
	"promptd/pkg/types"
)

// GGUFScanner finds *.gguf files. With ReadMetadata set, each file's header
// is parsed to fill Family and Quant; unreadable headers leave them empty.
type GGUFScanner struct {
	ReadMetadata bool
}

func NewGGUFScanner() *GGUFScanner { return &GGUFScanner{} }

// Scan lists the *.gguf files directly inside dir, sorted by ID. The ID is
// the file name including extension; Path is absolute.
func (s *GGUFScanner) Scan(dir string) ([]types.Model, error) {
	abs, err := fsutil.Resolve(dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var models []types.Model
	for _, e := range entries {
		if e.IsDir() || !fsutil.HasExt(e.Name(), ".gguf") {
			continue
		}
		models = append(models, s.entry(filepath.Join(abs, e.Name())))
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	return models, nil
}

// File registers a single artifact. The file must exist and be regular.
func (s *GGUFScanner) File(path string) (types.Model, error) {
	abs, err := fsutil.Resolve(path)
	if err != nil {
		return types.Model{}, err
	}
	if err := fsutil.RegularFile(abs); err != nil {
		return types.Model{}, err
	}
	return s.entry(abs), nil
}

func (s *GGUFScanner) entry(path string) types.Model {
	id := filepath.Base(path)
	m := types.Model{ID: id, Name: id, Path: path}
	if !s.ReadMetadata {
		return m
	}
	if f, err := gguf.Open(path); err == nil {
		m.Family, m.Quant = f.Architecture(), f.FileType()
		if n := f.Name(); n != "" {
			m.Name = n
		}
	}
	return m
}

// Build combines modelPath and modelsDir into one registry and picks the
// default model id: defaultID if given, else modelPath's entry, else the
// only scanned model. A modelPath whose file name collides with a scanned
// entry replaces it.
func Build(s *GGUFScanner, modelPath, modelsDir, defaultID string) ([]types.Model, string, error) {
	var models []types.Model
	if modelsDir != "" {
		scanned, err := s.Scan(modelsDir)
		if err != nil {
			return nil, "", fmt.Errorf("scan %s: %w", modelsDir, err)
		}
		models = scanned
	}
	if modelPath != "" {
		m, err := s.File(modelPath)
		if err != nil {
			return nil, "", fmt.Errorf("model_path: %w", err)
		}
		models = replaceOrAppend(models, m)
		if defaultID == "" {
			defaultID = m.ID
		}
	}
	if defaultID == "" && len(models) == 1 {
		defaultID = models[0].ID
	}
	if defaultID != "" && !contains(models, defaultID) {
		return nil, "", fmt.Errorf("default model %q is not in the registry", defaultID)
	}
	return models, defaultID, nil
}

func replaceOrAppend(models []types.Model, m types.Model) []types.Model {
	for i := range models {
		if models[i].ID == m.ID {
			models[i] = m
			return models
		}
	}
	return append(models, m)
}

func contains(models []types.Model, id string) bool {
	for _, m := range models {
		if m.ID == id {
			return true
		}
	}
	return false
}
