package gguf

import "fmt"

// TensorType is the ggml storage type of a tensor.
type TensorType uint32

const (
	TypeF32  TensorType = 0
	TypeF16  TensorType = 1
	TypeQ4_0 TensorType = 2
	TypeQ4_1 TensorType = 3
	TypeQ5_0 TensorType = 6
	TypeQ5_1 TensorType = 7
	TypeQ8_0 TensorType = 8
	TypeQ8_1 TensorType = 9
	TypeQ2_K TensorType = 10
	TypeQ3_K TensorType = 11
	TypeQ4_K TensorType = 12
	TypeQ5_K TensorType = 13
	TypeQ6_K TensorType = 14
	TypeQ8_K TensorType = 15
	TypeI8   TensorType = 24
	TypeI16  TensorType = 25
	TypeI32  TensorType = 26
	TypeI64  TensorType = 27
	TypeF64  TensorType = 28
	TypeBF16 TensorType = 30
)

var typeNames = map[TensorType]string{
	TypeF32: "F32", TypeF16: "F16", TypeQ4_0: "Q4_0", TypeQ4_1: "Q4_1",
	TypeQ5_0: "Q5_0", TypeQ5_1: "Q5_1", TypeQ8_0: "Q8_0", TypeQ8_1: "Q8_1",
	TypeQ2_K: "Q2_K", TypeQ3_K: "Q3_K", TypeQ4_K: "Q4_K", TypeQ5_K: "Q5_K",
	TypeQ6_K: "Q6_K", TypeQ8_K: "Q8_K", TypeI8: "I8", TypeI16: "I16",
	TypeI32: "I32", TypeI64: "I64", TypeF64: "F64", TypeBF16: "BF16",
}

func (t TensorType) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("type(%d)", uint32(t))
}

// IsQuantized reports whether values are stored in quantized blocks.
func (t TensorType) IsQuantized() bool {
	switch t {
	case TypeF32, TypeF16, TypeBF16, TypeF64, TypeI8, TypeI16, TypeI32, TypeI64:
		return false
	}
	return true
}

func (t TensorType) blockSize() uint64 {
	switch t {
	case TypeF32, TypeF16, TypeBF16, TypeF64, TypeI8, TypeI16, TypeI32, TypeI64:
		return 1
	case TypeQ4_0, TypeQ4_1, TypeQ5_0, TypeQ5_1, TypeQ8_0, TypeQ8_1:
		return 32
	case TypeQ2_K, TypeQ3_K, TypeQ4_K, TypeQ5_K, TypeQ6_K, TypeQ8_K:
		return 256
	}
	return 0
}

// typeSize is the byte size of one block.
func (t TensorType) typeSize() uint64 {
	bs := t.blockSize()
	switch t {
	case TypeF32, TypeI32:
		return 4
	case TypeF16, TypeBF16, TypeI16:
		return 2
	case TypeI8:
		return 1
	case TypeF64, TypeI64:
		return 8
	case TypeQ4_0:
		return 2 + bs/2
	case TypeQ4_1:
		return 2 + 2 + bs/2
	case TypeQ5_0:
		return 2 + 4 + bs/2
	case TypeQ5_1:
		return 2 + 2 + 4 + bs/2
	case TypeQ8_0:
		return 2 + bs
	case TypeQ8_1:
		return 2 + 2 + bs
	case TypeQ2_K:
		return bs/16 + bs/4 + 2 + 2
	case TypeQ3_K:
		return bs/8 + bs/4 + 12 + 2
	case TypeQ4_K:
		return 2 + 2 + 12 + bs/2
	case TypeQ5_K:
		return 2 + 2 + 12 + bs/8 + bs/2
	case TypeQ6_K:
		return bs/2 + bs/4 + bs/16 + 2
	case TypeQ8_K:
		return 4 + bs + 2*bs/16
	}
	return 0
}
