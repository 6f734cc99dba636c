// Package value defines the Go values that can be stored in the cache and
// converts them to and from raw segment bytes. Only fixed layout numeric
// data is supported so that a reader can view a segment in place.
package value

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/viant/shmcache/model"
)

// ErrUnsupported is returned for values that cannot be flattened to bytes
var ErrUnsupported = errors.New("unsupported value kind")

// Numeric lists element types that have a fixed in-memory layout
type Numeric interface {
	float64 | float32 | int64 | int32 | int16 | int8 | uint64 | uint32 | uint16 | uint8
}

// Meta describes flattened value layout
type Meta struct {
	Type  model.TypeTag
	Kind  model.ContainerKind
	Shape []int
}

// Array represents an n-dimensional numeric array stored in row-major order
type Array[T Numeric] struct {
	Data  []T
	Shape []int
}

// NewArray creates an array; shape defaults to one dimension of len(data)
func NewArray[T Numeric](data []T, shape ...int) *Array[T] {
	if len(shape) == 0 {
		shape = []int{len(data)}
	}
	return &Array[T]{Data: data, Shape: shape}
}

// Len returns number of elements implied by shape
func (a *Array[T]) Len() int {
	return product(a.Shape)
}

// Row returns i-th sub array along the first dimension, sharing the data
func (a *Array[T]) Row(i int) (*Array[T], error) {
	if len(a.Shape) == 0 {
		return nil, fmt.Errorf("scalar array has no rows")
	}
	if i < 0 || i >= a.Shape[0] {
		return nil, fmt.Errorf("row %d out of range [0,%d)", i, a.Shape[0])
	}
	inner := a.Shape[1:]
	width := product(inner)
	if len(inner) == 0 {
		inner = []int{1}
	}
	return &Array[T]{Data: a.Data[i*width : (i+1)*width], Shape: append([]int(nil), inner...)}, nil
}

// Tuple represents a homogeneous numeric tuple
type Tuple[T Numeric] []T

// Flatten returns layout metadata and a copy of the value bytes
func Flatten(v interface{}) (*Meta, []byte, error) {
	switch actual := v.(type) {
	case []byte:
		return &Meta{Type: model.TypeBytes, Kind: model.KindOpaque}, append([]byte{}, actual...), nil
	case []float64:
		return flattenList(actual, model.KindList)
	case []float32:
		return flattenList(actual, model.KindList)
	case []int64:
		return flattenList(actual, model.KindList)
	case []int32:
		return flattenList(actual, model.KindList)
	case []int16:
		return flattenList(actual, model.KindList)
	case []int8:
		return flattenList(actual, model.KindList)
	case []uint64:
		return flattenList(actual, model.KindList)
	case []uint32:
		return flattenList(actual, model.KindList)
	case []uint16:
		return flattenList(actual, model.KindList)
	case flattener:
		return actual.flatten()
	case nil:
		return nil, nil, fmt.Errorf("%w: nil", ErrUnsupported)
	}
	return nil, nil, fmt.Errorf("%w: %T", ErrUnsupported, v)
}

type flattener interface {
	flatten() (*Meta, []byte, error)
}

func (a *Array[T]) flatten() (*Meta, []byte, error) {
	if a == nil {
		return nil, nil, fmt.Errorf("%w: nil array", ErrUnsupported)
	}
	for _, dim := range a.Shape {
		if dim < 0 {
			return nil, nil, fmt.Errorf("invalid shape %v", a.Shape)
		}
	}
	if a.Len() != len(a.Data) {
		return nil, nil, fmt.Errorf("shape %v needs %d elements, but had %d", a.Shape, a.Len(), len(a.Data))
	}
	return &Meta{Type: TagOf[T](), Kind: model.KindArray, Shape: append([]int(nil), a.Shape...)}, toBytes(a.Data), nil
}

func (t Tuple[T]) flatten() (*Meta, []byte, error) {
	return flattenList([]T(t), model.KindTuple)
}

// Stack represents a homogeneous list of equally shaped arrays
type Stack[T Numeric] []*Array[T]

func (s Stack[T]) flatten() (*Meta, []byte, error) {
	if len(s) == 0 {
		return &Meta{Type: TagOf[T](), Kind: model.KindList, Shape: []int{0}}, []byte{}, nil
	}
	inner := s[0].Shape
	data := make([]byte, 0, len(s)*len(s[0].Data)*TagOf[T]().Size())
	for i, item := range s {
		if item == nil || !sameShape(item.Shape, inner) {
			return nil, nil, fmt.Errorf("%w: list element %d is not shaped %v", ErrUnsupported, i, inner)
		}
		_, raw, err := item.flatten()
		if err != nil {
			return nil, nil, err
		}
		data = append(data, raw...)
	}
	shape := append([]int{len(s)}, inner...)
	return &Meta{Type: TagOf[T](), Kind: model.KindList, Shape: shape}, data, nil
}

func flattenList[T Numeric](data []T, kind model.ContainerKind) (*Meta, []byte, error) {
	return &Meta{Type: TagOf[T](), Kind: kind, Shape: []int{len(data)}}, toBytes(data), nil
}

// toBytes copies numeric data into a new byte slice in native byte order
func toBytes[T Numeric](data []T) []byte {
	ret := make([]byte, len(data)*int(unsafe.Sizeof(*new(T))))
	if len(data) == 0 {
		return ret
	}
	copy(ret, unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), len(ret)))
	return ret
}

// TagOf returns the type tag of a numeric type
func TagOf[T Numeric]() model.TypeTag {
	var zero T
	switch any(zero).(type) {
	case float64:
		return model.TypeFloat64
	case float32:
		return model.TypeFloat32
	case int64:
		return model.TypeInt64
	case int32:
		return model.TypeInt32
	case int16:
		return model.TypeInt16
	case int8:
		return model.TypeInt8
	case uint64:
		return model.TypeUint64
	case uint32:
		return model.TypeUint32
	case uint16:
		return model.TypeUint16
	}
	return model.TypeUint8
}

func product(shape []int) int {
	ret := 1
	for _, dim := range shape {
		ret *= dim
	}
	return ret
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
