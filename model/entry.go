package model

import (
	"fmt"
	"time"
)

// TypeTag identifies the element type of a cached value
type TypeTag string

const (
	TypeFloat64 TypeTag = "float64"
	TypeFloat32 TypeTag = "float32"
	TypeInt64   TypeTag = "int64"
	TypeInt32   TypeTag = "int32"
	TypeInt16   TypeTag = "int16"
	TypeInt8    TypeTag = "int8"
	TypeUint64  TypeTag = "uint64"
	TypeUint32  TypeTag = "uint32"
	TypeUint16  TypeTag = "uint16"
	TypeUint8   TypeTag = "uint8"
	// TypeBytes marks an opaque byte blob without element structure.
	TypeBytes TypeTag = "bytes"
)

// Size returns element width in bytes, 0 for unknown tags
func (t TypeTag) Size() int {
	switch t {
	case TypeFloat64, TypeInt64, TypeUint64:
		return 8
	case TypeFloat32, TypeInt32, TypeUint32:
		return 4
	case TypeInt16, TypeUint16:
		return 2
	case TypeInt8, TypeUint8, TypeBytes:
		return 1
	}
	return 0
}

// IsValid returns true for known tags
func (t TypeTag) IsValid() bool {
	return t.Size() > 0
}

// ContainerKind represents the shape family a value is reconstructed as
type ContainerKind string

const (
	KindArray  ContainerKind = "array"
	KindList   ContainerKind = "list"
	KindTuple  ContainerKind = "tuple"
	KindOpaque ContainerKind = "opaque"
)

// IsValid returns true for known kinds
func (k ContainerKind) IsValid() bool {
	switch k {
	case KindArray, KindList, KindTuple, KindOpaque:
		return true
	}
	return false
}

// CacheEntry represents registry metadata of a cached object
type CacheEntry struct {
	Name        string        `json:"name"`
	SegmentID   string        `json:"segmentId"`
	ByteSize    int           `json:"byteSize"`
	ElementType TypeTag       `json:"elementType"`
	Shape       []int         `json:"shape,omitempty"`
	Kind        ContainerKind `json:"kind"`
	CreatedAt   time.Time     `json:"createdAt"`
}

// ElementCount returns the product of the shape dimensions. A scalar (empty
// shape) holds one element; opaque blobs report ByteSize elements of width one.
func (e *CacheEntry) ElementCount() int {
	if e.Kind == KindOpaque {
		return e.ByteSize
	}
	count := 1
	for _, dim := range e.Shape {
		count *= dim
	}
	return count
}

// Validate checks entry consistency
func (e *CacheEntry) Validate() error {
	if e.Name == "" {
		return fmt.Errorf("entry name was empty")
	}
	if e.SegmentID == "" {
		return fmt.Errorf("entry %q: segment id was empty", e.Name)
	}
	if !e.Kind.IsValid() {
		return fmt.Errorf("entry %q: unsupported container kind %q", e.Name, e.Kind)
	}
	if !e.ElementType.IsValid() {
		return fmt.Errorf("entry %q: unsupported element type %q", e.Name, e.ElementType)
	}
	if e.Kind == KindOpaque {
		return nil
	}
	for _, dim := range e.Shape {
		if dim < 0 {
			return fmt.Errorf("entry %q: negative dimension in shape %v", e.Name, e.Shape)
		}
	}
	if expect := e.ElementCount() * e.ElementType.Size(); expect != e.ByteSize {
		return fmt.Errorf("entry %q: shape %v of %s needs %d bytes, but had %d", e.Name, e.Shape, e.ElementType, expect, e.ByteSize)
	}
	return nil
}

// Clone returns a deep copy
func (e *CacheEntry) Clone() *CacheEntry {
	if e == nil {
		return nil
	}
	ret := *e
	if e.Shape != nil {
		ret.Shape = append([]int(nil), e.Shape...)
	}
	return &ret
}

// SegmentHandle represents a shared memory segment created by the allocator
type SegmentHandle struct {
	ID   string `json:"id"`
	Size int    `json:"size"`
}
