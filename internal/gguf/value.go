package gguf

import "fmt"

const (
	typeUint8 uint32 = iota
	typeInt8
	typeUint16
	typeInt16
	typeUint32
	typeInt32
	typeFloat32
	typeBool
	typeString
	typeArray
	typeUint64
	typeInt64
	typeFloat64
)

// Array is a metadata array. Values is nil when the array was longer than
// the retention limit; Len always holds the element count.
type Array struct {
	Len    int
	Values []any
}

func (d *decoder) value(typ uint32, keepAll bool) (any, error) {
	switch typ {
	case typeUint8:
		return readAs[uint8](d)
	case typeInt8:
		return readAs[int8](d)
	case typeUint16:
		return readAs[uint16](d)
	case typeInt16:
		return readAs[int16](d)
	case typeUint32:
		return readAs[uint32](d)
	case typeInt32:
		return readAs[int32](d)
	case typeUint64:
		return readAs[uint64](d)
	case typeInt64:
		return readAs[int64](d)
	case typeFloat32:
		return readAs[float32](d)
	case typeFloat64:
		return readAs[float64](d)
	case typeBool:
		return readAs[bool](d)
	case typeString:
		return d.string()
	case typeArray:
		return d.array(keepAll)
	default:
		return nil, fmt.Errorf("invalid value type %d", typ)
	}
}

func (d *decoder) array(keepAll bool) (*Array, error) {
	var elem uint32
	if err := d.read(&elem); err != nil {
		return nil, err
	}
	if elem == typeArray {
		return nil, fmt.Errorf("nested arrays are not supported")
	}
	var n uint64
	if err := d.read(&n); err != nil {
		return nil, err
	}
	if n > 1<<24 {
		return nil, fmt.Errorf("array length %d out of range", n)
	}
	a := &Array{Len: int(n)}
	keep := keepAll || n <= maxArrayValues
	if keep {
		a.Values = make([]any, 0, n)
	}
	for i := uint64(0); i < n; i++ {
		v, err := d.value(elem, false)
		if err != nil {
			return nil, err
		}
		if keep {
			a.Values = append(a.Values, v)
		}
	}
	return a, nil
}

func readAs[T any](d *decoder) (T, error) {
	var v T
	err := d.read(&v)
	return v, err
}
