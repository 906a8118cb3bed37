package device

import (
	"fmt"
	"reflect"
	"unsafe"
)

// Given an interface{} containing a slice return a byte view of its backing
// array. Empty slices yield a nil view.
func sliceBytes(data interface{}) ([]byte, error) {
	if raw, ok := data.([]byte); ok {
		return raw, nil
	}

	reflVal := reflect.ValueOf(data)
	if reflVal.Kind() != reflect.Slice {
		return nil, fmt.Errorf("%w: got %T", ErrNotSlice, data)
	}

	sliceElemCount := reflVal.Len()
	if sliceElemCount == 0 {
		return nil, nil
	}

	return unsafe.Slice(
		(*byte)(unsafe.Pointer(reflVal.Index(0).Addr().Pointer())),
		sliceElemCount*int(reflVal.Type().Elem().Size()),
	), nil
}

// Reinterpret a byte slice as a slice of T. Any trailing bytes that do not
// fill a whole element are ignored.
func View[T any](raw []byte) []T {
	var zero T
	elemSize := int(unsafe.Sizeof(zero))
	if len(raw) < elemSize {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&raw[0])), len(raw)/elemSize)
}
