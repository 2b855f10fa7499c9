// Package gguf reads the header of GGUF model artifacts: the metadata
// key/value table and the tensor table. Tensor data is never read; its
// extent is only checked against the file size so truncated downloads are
// rejected before a runtime tries to map them.
package gguf

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

const (
	magicLE = 0x46554747 // "GGUF" read little-endian
	magicBE = 0x47475546

	defaultAlignment = 32

	// arrays longer than this are counted but not kept, except the token table
	maxArrayValues = 1024
)

var (
	ErrBadMagic           = errors.New("gguf: not a gguf file")
	ErrUnsupportedVersion = errors.New("gguf: unsupported version")
	ErrTruncated          = errors.New("gguf: file is truncated")
)

// File is the decoded header of a GGUF artifact.
type File struct {
	Version    uint32
	KV         map[string]any
	Tensors    []TensorInfo
	DataOffset uint64
	Size       int64
}

// TensorInfo describes one tensor of the data section.
type TensorInfo struct {
	Name   string
	Dims   []uint64
	Type   TensorType
	Offset uint64
}

// Elements returns the number of values in the tensor.
func (t TensorInfo) Elements() uint64 {
	n := uint64(1)
	for _, d := range t.Dims {
		n *= d
	}
	return n
}

// Bytes returns the encoded size of the tensor, or 0 if the type is unknown.
func (t TensorInfo) Bytes() uint64 {
	bs, ts := t.Type.blockSize(), t.Type.typeSize()
	if bs == 0 || ts == 0 {
		return 0
	}
	return t.Elements() * ts / bs
}

// Open reads and validates the header of the artifact at path.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if fi.IsDir() {
		return nil, fmt.Errorf("%s: is a directory", path)
	}
	return Decode(f, fi.Size())
}

// Decode reads a GGUF header from r. size is the total artifact size and is
// used to verify that every tensor lies inside the file.
func Decode(r io.Reader, size int64) (*File, error) {
	d := &decoder{r: bufio.NewReaderSize(r, 32<<10)}

	var magic uint32
	if err := d.read(&magic); err != nil {
		return nil, err
	}
	switch magic {
	case magicLE:
	case magicBE:
		return nil, fmt.Errorf("%w: big-endian artifacts", ErrUnsupportedVersion)
	default:
		return nil, ErrBadMagic
	}

	gf := &File{KV: make(map[string]any), Size: size}
	if err := d.read(&gf.Version); err != nil {
		return nil, err
	}
	if gf.Version < 2 || gf.Version > 3 {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, gf.Version)
	}

	var numTensors, numKV uint64
	if err := d.read(&numTensors); err != nil {
		return nil, err
	}
	if err := d.read(&numKV); err != nil {
		return nil, err
	}

	for i := uint64(0); i < numKV; i++ {
		key, err := d.string()
		if err != nil {
			return nil, err
		}
		var typ uint32
		if err := d.read(&typ); err != nil {
			return nil, err
		}
		v, err := d.value(typ, key == keyTokens)
		if err != nil {
			return nil, fmt.Errorf("gguf: key %q: %w", key, err)
		}
		gf.KV[key] = v
	}

	gf.Tensors = make([]TensorInfo, 0, min(numTensors, 1<<16))
	for i := uint64(0); i < numTensors; i++ {
		t, err := d.tensor()
		if err != nil {
			return nil, err
		}
		gf.Tensors = append(gf.Tensors, t)
	}

	align := gf.Uint(keyAlignment, defaultAlignment)
	if align == 0 {
		align = defaultAlignment
	}
	gf.DataOffset = (d.n + align - 1) / align * align

	if size > 0 {
		if gf.DataOffset > uint64(size) {
			return nil, ErrTruncated
		}
		for _, t := range gf.Tensors {
			if end := gf.DataOffset + t.Offset + t.Bytes(); end > uint64(size) {
				return nil, fmt.Errorf("%w: tensor %q ends at %d, file has %d bytes", ErrTruncated, t.Name, end, size)
			}
		}
	}
	return gf, nil
}

type decoder struct {
	r *bufio.Reader
	n uint64
}

func (d *decoder) read(v any) error {
	if err := binary.Read(d.r, binary.LittleEndian, v); err != nil {
		return truncated(err)
	}
	d.n += uint64(binary.Size(v))
	return nil
}

func (d *decoder) string() (string, error) {
	var n uint64
	if err := d.read(&n); err != nil {
		return "", err
	}
	if n > 1<<26 {
		return "", fmt.Errorf("gguf: string length %d out of range", n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(d.r, b); err != nil {
		return "", truncated(err)
	}
	d.n += n
	return string(b), nil
}

func (d *decoder) tensor() (TensorInfo, error) {
	var t TensorInfo
	var err error
	if t.Name, err = d.string(); err != nil {
		return t, err
	}
	var ndims uint32
	if err := d.read(&ndims); err != nil {
		return t, err
	}
	if ndims > 8 {
		return t, fmt.Errorf("gguf: tensor %q has %d dimensions", t.Name, ndims)
	}
	t.Dims = make([]uint64, ndims)
	for i := range t.Dims {
		if err := d.read(&t.Dims[i]); err != nil {
			return t, err
		}
	}
	var typ uint32
	if err := d.read(&typ); err != nil {
		return t, err
	}
	t.Type = TensorType(typ)
	if err := d.read(&t.Offset); err != nil {
		return t, err
	}
	return t, nil
}

func truncated(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrTruncated
	}
	return err
}
