package worker

import (
	"github.com/viant/shmcache/model"
	"github.com/viant/shmcache/model/value"
	"github.com/viant/shmcache/service/allocator"
)

// View represents a retrieved object mapped from shared memory. Its bytes
// stay readable until the view is released, even if the entry is removed.
type View struct {
	entry      *model.CacheEntry
	attachment *allocator.Attachment
	cache      *Cache
}

// Name returns cache entry name
func (v *View) Name() string { return v.entry.Name }

// Type returns element type
func (v *View) Type() model.TypeTag { return v.entry.ElementType }

// Kind returns container kind
func (v *View) Kind() model.ContainerKind { return v.entry.Kind }

// Shape returns a copy of the value shape
func (v *View) Shape() []int { return append([]int(nil), v.entry.Shape...) }

// Entry returns a copy of the registry entry
func (v *View) Entry() *model.CacheEntry { return v.entry.Clone() }

// Bytes returns the value bytes, nil once released
func (v *View) Bytes() []byte {
	data := v.attachment.Bytes()
	if data == nil {
		return nil
	}
	return data[:v.entry.ByteSize]
}

// Close releases the view
func (v *View) Close() error {
	return v.cache.Release(v)
}

func (v *View) meta() *value.Meta {
	return &value.Meta{Type: v.entry.ElementType, Kind: v.entry.Kind, Shape: v.entry.Shape}
}

// Slice returns view elements as []T without copying
func Slice[T value.Numeric](view *View) ([]T, error) {
	if err := view.check(); err != nil {
		return nil, err
	}
	return value.Cast[T](view.Type(), view.Bytes())
}

// ArrayOf returns view as an array of T without copying
func ArrayOf[T value.Numeric](view *View) (*value.Array[T], error) {
	if err := view.check(); err != nil {
		return nil, err
	}
	return value.View[T](view.meta(), view.Bytes())
}

func (v *View) check() error {
	if v == nil || v.attachment.Closed() {
		return ErrClosed
	}
	return nil
}
