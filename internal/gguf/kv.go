package gguf

import "fmt"

const (
	keyArchitecture = "general.architecture"
	keyName         = "general.name"
	keyFileType     = "general.file_type"
	keyAlignment    = "general.alignment"
	keyTokens       = "tokenizer.ggml.tokens"
	keyTokenizer    = "tokenizer.ggml.model"
	keyBOS          = "tokenizer.ggml.bos_token_id"
	keyEOS          = "tokenizer.ggml.eos_token_id"
)

// Architecture returns general.architecture, or "" when absent.
func (f *File) Architecture() string { return f.String(keyArchitecture, "") }

// Name returns general.name, or "" when absent.
func (f *File) Name() string { return f.String(keyName, "") }

// TokenizerModel returns tokenizer.ggml.model (e.g. "llama", "gpt2").
func (f *File) TokenizerModel() string { return f.String(keyTokenizer, "") }

// ContextLength is the trained context window of the architecture.
func (f *File) ContextLength() uint64 { return f.archUint("context_length") }

// EmbeddingLength is the hidden size of the architecture.
func (f *File) EmbeddingLength() uint64 { return f.archUint("embedding_length") }

// BlockCount is the number of transformer blocks.
func (f *File) BlockCount() uint64 { return f.archUint("block_count") }

// HeadCount is the number of attention heads.
func (f *File) HeadCount() uint64 { return f.archUint("attention.head_count") }

// BOS returns the beginning-of-sequence token id and whether it is set.
func (f *File) BOS() (int32, bool) { return f.tokenID(keyBOS) }

// EOS returns the end-of-sequence token id and whether it is set.
func (f *File) EOS() (int32, bool) { return f.tokenID(keyEOS) }

// Tokens returns the vocabulary table.
func (f *File) Tokens() []string { return f.Strings(keyTokens) }

// FileType returns the quantization label of the whole artifact.
func (f *File) FileType() string {
	v, ok := f.KV[keyFileType]
	if !ok {
		return ""
	}
	n, ok := toUint(v)
	if !ok {
		return ""
	}
	if s, ok := fileTypes[n]; ok {
		return s
	}
	return fmt.Sprintf("unknown(%d)", n)
}

// String returns the string value of key, or def.
func (f *File) String(key, def string) string {
	if s, ok := f.KV[key].(string); ok {
		return s
	}
	return def
}

// Uint returns key as an unsigned integer, or def when absent or not numeric.
func (f *File) Uint(key string, def uint64) uint64 {
	if n, ok := toUint(f.KV[key]); ok {
		return n
	}
	return def
}

// Strings returns a string array value. Arrays dropped by the retention
// limit return nil.
func (f *File) Strings(key string) []string {
	a, ok := f.KV[key].(*Array)
	if !ok || a.Values == nil {
		return nil
	}
	out := make([]string, 0, len(a.Values))
	for _, v := range a.Values {
		s, _ := v.(string)
		out = append(out, s)
	}
	return out
}

func (f *File) archUint(suffix string) uint64 {
	arch := f.Architecture()
	if arch == "" {
		return 0
	}
	return f.Uint(arch+"."+suffix, 0)
}

func (f *File) tokenID(key string) (int32, bool) {
	n, ok := toUint(f.KV[key])
	if !ok {
		return -1, false
	}
	return int32(n), true
}

func toUint(v any) (uint64, bool) {
	switch n := v.(type) {
	case uint8:
		return uint64(n), true
	case uint16:
		return uint64(n), true
	case uint32:
		return uint64(n), true
	case uint64:
		return n, true
	case int8:
		return uint64(n), n >= 0
	case int16:
		return uint64(n), n >= 0
	case int32:
		return uint64(n), n >= 0
	case int64:
		return uint64(n), n >= 0
	}
	return 0, false
}

var fileTypes = map[uint64]string{
	0: "F32", 1: "F16", 2: "Q4_0", 3: "Q4_1", 7: "Q8_0", 8: "Q5_0", 9: "Q5_1",
	10: "Q2_K", 11: "Q3_K_S", 12: "Q3_K_M", 13: "Q3_K_L", 14: "Q4_K_S",
	15: "Q4_K_M", 16: "Q5_K_S", 17: "Q5_K_M", 18: "Q6_K", 32: "BF16",
}
