package value

import (
	"fmt"
	"unsafe"

	"github.com/viant/shmcache/model"
)

// Cast reinterprets data as a slice of T without copying. The returned slice
// aliases data and is only valid while the underlying memory stays mapped.
func Cast[T Numeric](tag model.TypeTag, data []byte) ([]T, error) {
	if expect := TagOf[T](); expect != tag && !(tag == model.TypeBytes && expect == model.TypeUint8) {
		return nil, fmt.Errorf("cannot view %s data as %s", tag, expect)
	}
	width := int(unsafe.Sizeof(*new(T)))
	if len(data)%width != 0 {
		return nil, fmt.Errorf("data length %d is not a multiple of %s width %d", len(data), tag, width)
	}
	if len(data) == 0 {
		return []T{}, nil
	}
	if uintptr(unsafe.Pointer(&data[0]))%unsafe.Alignof(*new(T)) != 0 {
		return nil, fmt.Errorf("data is not aligned for %s", tag)
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&data[0])), len(data)/width), nil
}

// View reconstructs an array over data without copying
func View[T Numeric](meta *Meta, data []byte) (*Array[T], error) {
	items, err := Cast[T](meta.Type, data)
	if err != nil {
		return nil, err
	}
	shape := append([]int(nil), meta.Shape...)
	if len(shape) == 0 && meta.Kind == model.KindOpaque {
		shape = []int{len(items)}
	}
	if product(shape) != len(items) {
		return nil, fmt.Errorf("shape %v does not match %d elements", shape, len(items))
	}
	return &Array[T]{Data: items, Shape: shape}, nil
}
