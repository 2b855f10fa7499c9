package gguf

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"slices"
	"sort"
)

// Write encodes a GGUF v3 artifact with the given metadata and tensor
// table. Tensor data is written as zeros; it is meant for fixtures and
// metadata-only artifacts.
func Write(w io.Writer, kv map[string]any, tensors []TensorInfo) error {
	bw := bufio.NewWriter(w)
	e := &encoder{w: bw}

	e.put(uint32(magicLE))
	e.put(uint32(3))
	e.put(uint64(len(tensors)))
	e.put(uint64(len(kv)))

	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		e.str(k)
		if err := e.value(kv[k]); err != nil {
			return fmt.Errorf("gguf: key %q: %w", k, err)
		}
	}

	var offset uint64
	for i := range tensors {
		t := &tensors[i]
		t.Offset = offset
		e.str(t.Name)
		e.put(uint32(len(t.Dims)))
		for _, d := range t.Dims {
			e.put(d)
		}
		e.put(uint32(t.Type))
		e.put(t.Offset)
		offset += pad(t.Bytes(), defaultAlignment)
	}
	e.zeros(pad(e.n, defaultAlignment) - e.n)
	e.zeros(offset)

	if e.err != nil {
		return e.err
	}
	return bw.Flush()
}

type encoder struct {
	w   io.Writer
	n   uint64
	err error
}

func (e *encoder) put(v any) {
	if e.err != nil {
		return
	}
	e.err = binary.Write(e.w, binary.LittleEndian, v)
	e.n += uint64(binary.Size(v))
}

func (e *encoder) str(s string) {
	e.put(uint64(len(s)))
	if e.err != nil {
		return
	}
	_, e.err = io.WriteString(e.w, s)
	e.n += uint64(len(s))
}

func (e *encoder) zeros(n uint64) {
	if n == 0 || e.err != nil {
		return
	}
	_, e.err = io.CopyN(e.w, zeroReader{}, int64(n))
	e.n += n
}

func (e *encoder) value(v any) error {
	switch v := v.(type) {
	case string:
		e.put(typeString)
		e.str(v)
	case uint32:
		e.put(typeUint32)
		e.put(v)
	case int32:
		e.put(typeInt32)
		e.put(v)
	case uint64:
		e.put(typeUint64)
		e.put(v)
	case float32:
		e.put(typeFloat32)
		e.put(v)
	case bool:
		e.put(typeBool)
		e.put(v)
	case []string:
		e.put(typeArray)
		e.put(typeString)
		e.put(uint64(len(v)))
		for _, s := range v {
			e.str(s)
		}
	case []int32:
		e.put(typeArray)
		e.put(typeInt32)
		e.put(uint64(len(v)))
		e.put(slices.Clone(v))
	case []float32:
		e.put(typeArray)
		e.put(typeFloat32)
		e.put(uint64(len(v)))
		e.put(slices.Clone(v))
	default:
		return fmt.Errorf("unsupported value type %T", v)
	}
	return nil
}

func pad(n, align uint64) uint64 { return (n + align - 1) / align * align }

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}
