package device

import (
	"fmt"
)

// The shared object returned for unknown memory handles.
var invalidMemory = &Memory{id: InvalidMemory}

// Memory is a device buffer registered with a Context.
type Memory struct {
	ctx *Context
	id  MemoryID
	buf Buffer

	size  int
	usage Usage

	texture      uint32
	textureBound bool
}

// Get the handle of this buffer.
func (m *Memory) ID() MemoryID {
	return m.id
}

// Returns true if the buffer is allocated.
func (m *Memory) Valid() bool {
	return m.ctx != nil && m.buf != nil
}

// Get allocated size in bytes.
func (m *Memory) Size() int {
	return m.size
}

// Get buffer usage.
func (m *Memory) Usage() Usage {
	return m.usage
}

// Allocate a zeroed buffer of the given size. Any previous allocation is
// released first.
func (m *Memory) Initialize(size int, usage Usage) error {
	if m.ctx == nil {
		return ErrInvalidHandle
	}

	m.Release()

	buf, err := m.ctx.backend.Allocate(size, usage)
	if err != nil {
		return fmt.Errorf("device (%s): could not allocate buffer %d of size %d: %w", m.ctx.backend.Name(), m.id, size, err)
	}

	m.buf = buf
	m.size = size
	m.usage = usage
	m.ctx.trackAlloc(size)
	return nil
}

// Allocate a buffer large enough to hold the given host slice and copy the
// slice contents into it.
func (m *Memory) InitializeWithData(data interface{}, usage Usage) error {
	raw, err := sliceBytes(data)
	if err != nil {
		return err
	}
	if err := m.Initialize(len(raw), usage); err != nil {
		return err
	}

	if err := m.buf.Write(0, 0, raw); err != nil {
		m.Release()
		return fmt.Errorf("device (%s): could not upload data to buffer %d: %w", m.ctx.backend.Name(), m.id, err)
	}
	return nil
}

// Resize the buffer. The existing allocation is destroyed and a new one is
// created; contents are not preserved.
func (m *Memory) Resize(size int) error {
	if m.ctx == nil {
		return ErrInvalidHandle
	}
	return m.Initialize(size, m.usage)
}

// Copy host slice data into the buffer starting at the given byte offset.
func (m *Memory) Write(queue, offset int, data interface{}) error {
	raw, err := sliceBytes(data)
	if err != nil {
		return err
	}
	if err := m.checkRange(queue, offset, len(raw)); err != nil {
		return err
	}
	if err := m.buf.Write(queue, offset, raw); err != nil {
		return fmt.Errorf("device (%s): could not write to buffer %d: %w", m.ctx.backend.Name(), m.id, err)
	}
	return nil
}

// Blocking read from the buffer into a host slice starting at the given byte
// offset. The slice length determines the number of bytes read.
func (m *Memory) Read(queue, offset int, dst interface{}) error {
	raw, err := sliceBytes(dst)
	if err != nil {
		return err
	}
	if err := m.checkRange(queue, offset, len(raw)); err != nil {
		return err
	}
	if err := m.buf.Read(queue, offset, raw); err != nil {
		return fmt.Errorf("device (%s): could not read from buffer %d: %w", m.ctx.backend.Name(), m.id, err)
	}
	return nil
}

// Enqueue a device-side copy of size bytes into dst.
func (m *Memory) CopyTo(queue int, dst *Memory, srcOffset, dstOffset, size int) error {
	if err := m.checkRange(queue, srcOffset, size); err != nil {
		return err
	}
	if err := dst.checkRange(queue, dstOffset, size); err != nil {
		return err
	}
	if err := m.buf.CopyTo(queue, dst.buf, srcOffset, dstOffset, size); err != nil {
		return fmt.Errorf("device (%s): could not copy buffer %d to %d: %w", m.ctx.backend.Name(), m.id, dst.id, err)
	}
	return nil
}

// Bind the buffer to a graphics texture.
func (m *Memory) ShareTexture(texture uint32) error {
	if m.ctx == nil {
		return ErrInvalidHandle
	}
	if m.buf == nil {
		return ErrUninitialized
	}

	sharer, ok := m.ctx.backend.(TextureSharer)
	if !ok {
		return ErrUnsupported
	}
	if err := sharer.ShareTexture(m.buf, texture); err != nil {
		return err
	}

	m.texture = texture
	m.textureBound = true
	return nil
}

// Get the bound texture, if any.
func (m *Memory) TextureID() (uint32, bool) {
	return m.texture, m.textureBound
}

// Release the underlying allocation. The handle remains registered.
func (m *Memory) Release() {
	if m.buf == nil {
		return
	}

	m.buf.Release()
	m.ctx.trackRelease(m.size)
	m.buf = nil
	m.size = 0
	m.textureBound = false
}

func (m *Memory) checkRange(queue, offset, size int) error {
	if m.ctx == nil {
		return ErrInvalidHandle
	}
	if m.buf == nil {
		return fmt.Errorf("%w: memory %d", ErrUninitialized, m.id)
	}
	if err := m.ctx.checkQueue(queue); err != nil {
		return err
	}
	if offset < 0 || size < 0 || offset+size > m.size {
		return fmt.Errorf("%w: memory %d range [%d, %d) exceeds size %d", ErrOutOfBounds, m.id, offset, offset+size, m.size)
	}
	return nil
}
