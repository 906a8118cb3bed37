package emulator

import (
	"fmt"
	"unsafe"

	"github.com/achilleasa/clbvh/device"
)

type buffer struct {
	backend *Backend
	data    []byte
}

// Allocate an 8-byte aligned zeroed buffer.
func newBuffer(b *Backend, size int) *buffer {
	words := make([]uint64, (size+7)/8)
	return &buffer{
		backend: b,
		data:    unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), size),
	}
}

func (buf *buffer) Size() int {
	return len(buf.data)
}

func (buf *buffer) Write(queue, offset int, data []byte) error {
	if err := buf.checkRange(offset, len(data)); err != nil {
		return err
	}
	copy(buf.data[offset:], data)
	buf.backend.queues[queue].Writes++
	return nil
}

func (buf *buffer) Read(queue, offset int, dst []byte) error {
	if err := buf.checkRange(offset, len(dst)); err != nil {
		return err
	}
	copy(dst, buf.data[offset:offset+len(dst)])
	buf.backend.queues[queue].Reads++
	return nil
}

func (buf *buffer) CopyTo(queue int, dst device.Buffer, srcOffset, dstOffset, size int) error {
	target, ok := dst.(*buffer)
	if !ok || target.backend != buf.backend {
		return ErrForeignBuffer
	}
	if err := buf.checkRange(srcOffset, size); err != nil {
		return err
	}
	if err := target.checkRange(dstOffset, size); err != nil {
		return err
	}
	copy(target.data[dstOffset:dstOffset+size], buf.data[srcOffset:srcOffset+size])
	buf.backend.queues[queue].Copies++
	return nil
}

func (buf *buffer) Release() {
	buf.data = nil
}

func (buf *buffer) checkRange(offset, size int) error {
	if buf.data == nil {
		return ErrReleasedBuffer
	}
	if offset < 0 || size < 0 || offset+size > len(buf.data) {
		return fmt.Errorf("%w: range [%d, %d) exceeds size %d", device.ErrOutOfBounds, offset, offset+size, len(buf.data))
	}
	return nil
}
