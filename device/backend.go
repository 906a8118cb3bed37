package device

// Usage describes how kernels access a device buffer.
type Usage uint8

// Supported buffer usage modes.
const (
	ReadWrite Usage = iota
	ReadOnly
	WriteOnly
)

func (u Usage) String() string {
	switch u {
	case ReadWrite:
		return "read-write"
	case ReadOnly:
		return "read-only"
	case WriteOnly:
		return "write-only"
	}
	panic("device: unsupported usage")
}

// Local requests a work-group local scratch area of the given size in bytes
// when passed as a kernel argument.
type Local int

// Backend is implemented by compute devices that can host a Context.
type Backend interface {
	// Device name.
	Name() string

	// Number of in-order command queues.
	NumQueues() int

	// Max number of work items in a work-group.
	MaxWorkGroupSize() int

	// Max size in bytes of a single buffer allocation.
	MaxBufferSize() int

	// Allocate a zeroed buffer.
	Allocate(size int, usage Usage) (Buffer, error)

	// Compile the program and create a kernel for each of the given names.
	Compile(p *Program, names []string) ([]Kernel, error)

	// Enqueue a barrier on the given queue.
	Barrier(queue int) error

	// Block until all commands on the given queue complete.
	Finish(queue int) error

	// Release backend resources.
	Close() error
}

// Buffer is a backend buffer allocation.
type Buffer interface {
	Size() int

	// Copy host data to the buffer starting at the given byte offset.
	Write(queue, offset int, data []byte) error

	// Blocking read of len(dst) bytes starting at the given byte offset.
	Read(queue, offset int, dst []byte) error

	// Copy a byte range to another buffer of the same backend.
	CopyTo(queue int, dst Buffer, srcOffset, dstOffset, size int) error

	Release()
}

// Kernel is a compiled backend kernel.
type Kernel interface {
	Name() string

	NumArgs() int

	// Max number of work items per work-group for this kernel. It never
	// exceeds the backend limit and may be lower for register-heavy kernels.
	MaxWorkGroupSize() int

	// Bind an argument. Memory arguments are passed as backend Buffers.
	SetArg(index int, arg interface{}) error

	// Enqueue an ND-range dispatch. The dimensionality is len(global). A nil
	// local size lets the backend pick one.
	Enqueue(queue int, offset, global, local []int) error

	Release()
}

// TextureSharer is implemented by backends that support graphics interop.
type TextureSharer interface {
	ShareTexture(buf Buffer, texture uint32) error
}
