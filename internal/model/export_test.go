package model

import "promptd/internal/gguf"

// SetOpen replaces the artifact reader so tests can count reads.
func SetOpen(s *Store, open func(string) (*gguf.File, error)) { s.open = open }
