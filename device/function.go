package device

import (
	"fmt"
	"reflect"

	"github.com/achilleasa/clbvh/types"
)

// The shared object returned for unknown function handles.
var invalidFunction = &Function{id: InvalidFunction}

// Function is a compiled kernel registered with a Context. Arguments and
// work sizes persist between dispatches until overwritten.
type Function struct {
	ctx    *Context
	id     FunctionID
	name   string
	kernel Kernel

	args []interface{}

	dims         int
	globalSize   [3]int
	globalOffset [3]int
	localSize    [3]int
}

// Get the handle of this function.
func (f *Function) ID() FunctionID {
	return f.id
}

// Returns true if the function is bound to a compiled kernel.
func (f *Function) Valid() bool {
	return f.ctx != nil && f.kernel != nil
}

// Get the kernel name.
func (f *Function) Name() string {
	return f.name
}

// Get the max work-group size supported by the kernel or 0 for an invalid
// function.
func (f *Function) MaxWorkGroupSize() int {
	if !f.Valid() {
		return 0
	}
	return f.kernel.MaxWorkGroupSize()
}

// Compile a single kernel from the given program and bind it to this function.
func (f *Function) Initialize(p *Program, name string) error {
	if f.ctx == nil {
		return ErrInvalidHandle
	}

	kernels, err := f.ctx.backend.Compile(p, []string{name})
	if err != nil {
		return fmt.Errorf("device: could not build kernel %s: %w", name, err)
	}

	f.Release()
	f.kernel = kernels[0]
	f.name = name
	f.args = make([]interface{}, f.kernel.NumArgs())
	return nil
}

// Set a single kernel argument. Supported argument types are MemoryID,
// *Memory, uint32, int32, float32, types.Vec3, types.Vec4 and Local.
func (f *Function) SetArg(index int, arg interface{}) error {
	if err := f.check(); err != nil {
		return err
	}
	if index < 0 || index >= len(f.args) {
		return fmt.Errorf("device: kernel %s has %d args; cannot set arg %d", f.name, len(f.args), index)
	}

	switch arg.(type) {
	case MemoryID, *Memory, uint32, int32, float32, types.Vec3, types.Vec4, Local:
	default:
		return fmt.Errorf("%w: kernel %s arg %d has type %s", ErrUnsupportedArg, f.name, index, reflect.TypeOf(arg))
	}

	f.args[index] = arg
	return nil
}

// Set kernel arguments starting from index 0.
func (f *Function) SetArgs(args ...interface{}) error {
	for index, arg := range args {
		if err := f.SetArg(index, arg); err != nil {
			return err
		}
	}
	return nil
}

// Set the work dimensionality (1-3).
func (f *Function) SetDims(dims int) error {
	if err := f.check(); err != nil {
		return err
	}
	if dims < 1 || dims > 3 {
		return fmt.Errorf("device: kernel %s: invalid work dimensions %d", f.name, dims)
	}
	f.dims = dims
	return nil
}

// Set the global work size, one value per dimension.
func (f *Function) SetGlobalSize(sizes ...int) error {
	return f.setSizes(&f.globalSize, sizes)
}

// Set the global work offset, one value per dimension.
func (f *Function) SetGlobalOffset(offsets ...int) error {
	return f.setSizes(&f.globalOffset, offsets)
}

// Set the local work-group size, one value per dimension. A zero size lets
// the backend choose.
func (f *Function) SetLocalSize(sizes ...int) error {
	return f.setSizes(&f.localSize, sizes)
}

// Enqueue the kernel on the given queue using the current arguments and work
// sizes. Memory arguments are resolved at dispatch time so handles remain
// usable after their buffer is resized.
func (f *Function) Execute(queue int) error {
	if err := f.check(); err != nil {
		return err
	}
	if err := f.ctx.checkQueue(queue); err != nil {
		return err
	}
	if f.dims == 0 {
		return fmt.Errorf("device: kernel %s: work dimensions not set", f.name)
	}

	for index, arg := range f.args {
		resolved, err := f.resolveArg(index, arg)
		if err != nil {
			return err
		}
		if err = f.kernel.SetArg(index, resolved); err != nil {
			return fmt.Errorf("device (%s): could not set arg %d for kernel %s: %w", f.ctx.backend.Name(), index, f.name, err)
		}
	}

	var local []int
	for d := 0; d < f.dims; d++ {
		if f.localSize[d] != 0 {
			local = f.localSize[:f.dims]
			break
		}
	}

	if err := f.kernel.Enqueue(queue, f.globalOffset[:f.dims], f.globalSize[:f.dims], local); err != nil {
		return fmt.Errorf("device (%s): unable to execute kernel %s: %w", f.ctx.backend.Name(), f.name, err)
	}
	return nil
}

// Execute a 1D dispatch. If localWorkSize is 0 the backend picks the
// work-group size.
func (f *Function) Exec1D(queue, offset, globalWorkSize, localWorkSize int) error {
	if err := f.SetDims(1); err != nil {
		return err
	}
	f.globalOffset[0] = offset
	f.globalSize[0] = globalWorkSize
	f.localSize[0] = localWorkSize
	return f.Execute(queue)
}

// Release the compiled kernel. The handle remains registered.
func (f *Function) Release() {
	if f.kernel != nil {
		f.kernel.Release()
		f.kernel = nil
	}
	f.args = nil
}

func (f *Function) check() error {
	if f.ctx == nil {
		return ErrInvalidHandle
	}
	if f.kernel == nil {
		return fmt.Errorf("%w: function %d", ErrUninitialized, f.id)
	}
	return nil
}

func (f *Function) setSizes(dst *[3]int, sizes []int) error {
	if err := f.check(); err != nil {
		return err
	}
	if len(sizes) < 1 || len(sizes) > 3 {
		return fmt.Errorf("device: kernel %s: invalid work dimensions %d", f.name, len(sizes))
	}
	*dst = [3]int{}
	copy(dst[:], sizes)
	return nil
}

func (f *Function) resolveArg(index int, arg interface{}) (interface{}, error) {
	var mem *Memory
	switch t := arg.(type) {
	case nil:
		return nil, fmt.Errorf("%w: kernel %s arg %d", ErrArgNotSet, f.name, index)
	case MemoryID:
		mem = f.ctx.Memory(t)
	case *Memory:
		mem = t
	default:
		return arg, nil
	}

	if mem.ctx == nil {
		return nil, fmt.Errorf("%w: kernel %s arg %d", ErrInvalidHandle, f.name, index)
	}
	if mem.buf == nil {
		return nil, fmt.Errorf("%w: kernel %s arg %d references memory %d", ErrUninitialized, f.name, index, mem.id)
	}
	return mem.buf, nil
}
