package device

import (
	"fmt"
	"math"

	"github.com/achilleasa/clbvh/log"
)

// MemoryID is an opaque handle to a device buffer owned by a Context.
type MemoryID uint32

// FunctionID is an opaque handle to a device function owned by a Context.
type FunctionID uint32

// Sentinel handles.
const (
	InvalidMemory   = MemoryID(math.MaxUint32)
	InvalidFunction = FunctionID(math.MaxUint32)
)

// AllocStats tracks buffer allocations performed through a Context.
type AllocStats struct {
	// Number of currently allocated buffers.
	Live int

	// Max number of simultaneously allocated buffers.
	Peak int

	// Total number of allocations.
	Total int

	// Currently allocated bytes.
	Bytes int
}

// Context owns a compute backend and the handle tables for the buffers and
// functions created on it. A Context is initialized once and is not safe for
// concurrent use; parallelism happens inside kernel dispatches.
//
// Deleted handles leave a tombstone in their table. Tables never compact and
// slots are never reused, so a process that churns handles grows its tables
// without bound.
type Context struct {
	logger  log.Logger
	backend Backend
	ready   bool

	memories  []*Memory
	functions []*Function

	stats AllocStats
}

// Create a new uninitialized context.
func NewContext() *Context {
	return &Context{
		logger: log.New("device"),
	}
}

// Attach the context to a backend. A context can only be initialized once.
func (c *Context) Initialize(b Backend) error {
	if c.backend != nil {
		return ErrAlreadyInitialized
	}
	if b == nil {
		return fmt.Errorf("device: nil backend")
	}

	c.backend = b
	c.ready = true
	c.logger.Infof("initialized context on %s (%d queues, max work-group size %d)", b.Name(), b.NumQueues(), b.MaxWorkGroupSize())
	return nil
}

// Returns true if the context is initialized and not closed.
func (c *Context) Ready() bool {
	return c.ready
}

// Get the attached backend.
func (c *Context) Backend() Backend {
	return c.backend
}

// Release all live buffers and functions and close the backend.
func (c *Context) Close() error {
	if !c.ready {
		return nil
	}

	for id, m := range c.memories {
		if m != nil {
			m.Release()
			c.memories[id] = nil
		}
	}
	for id, f := range c.functions {
		if f != nil {
			f.Release()
			c.functions[id] = nil
		}
	}

	c.ready = false
	return c.backend.Close()
}

// Allocate a new memory slot. The returned buffer is not initialized.
// Returns InvalidMemory if the context is not ready.
func (c *Context) NewMemory() MemoryID {
	if !c.ready || int64(len(c.memories)) >= int64(InvalidMemory) {
		return InvalidMemory
	}

	id := MemoryID(len(c.memories))
	c.memories = append(c.memories, &Memory{ctx: c, id: id})
	return id
}

// Allocate a new function slot. The returned function is not initialized.
// Returns InvalidFunction if the context is not ready.
func (c *Context) NewFunction() FunctionID {
	if !c.ready || int64(len(c.functions)) >= int64(InvalidFunction) {
		return InvalidFunction
	}

	id := FunctionID(len(c.functions))
	c.functions = append(c.functions, &Function{ctx: c, id: id})
	return id
}

// Lookup a memory handle. Unknown or deleted handles resolve to a shared
// invalid object whose methods fail with ErrInvalidHandle.
func (c *Context) Memory(id MemoryID) *Memory {
	if !c.ready || int64(id) >= int64(len(c.memories)) || c.memories[id] == nil {
		return invalidMemory
	}
	return c.memories[id]
}

// Lookup a function handle. Unknown or deleted handles resolve to a shared
// invalid object whose methods fail with ErrInvalidHandle.
func (c *Context) Function(id FunctionID) *Function {
	if !c.ready || int64(id) >= int64(len(c.functions)) || c.functions[id] == nil {
		return invalidFunction
	}
	return c.functions[id]
}

// Release a buffer and tombstone its slot.
func (c *Context) DeleteMemory(id MemoryID) {
	if int64(id) >= int64(len(c.memories)) || c.memories[id] == nil {
		c.logger.Warningf("attempted to delete unknown memory handle %d", id)
		return
	}

	c.memories[id].Release()
	c.memories[id] = nil
}

// Release a function and tombstone its slot.
func (c *Context) DeleteFunction(id FunctionID) {
	if int64(id) >= int64(len(c.functions)) || c.functions[id] == nil {
		c.logger.Warningf("attempted to delete unknown function handle %d", id)
		return
	}

	c.functions[id].Release()
	c.functions[id] = nil
}

// Compile a program and register one function per kernel name. On failure
// every function created by this call is deleted.
func (c *Context) BuildFunctions(p *Program, names ...string) ([]FunctionID, error) {
	if !c.ready {
		return nil, ErrNotReady
	}

	kernels, err := c.backend.Compile(p, names)
	if err != nil {
		return nil, fmt.Errorf("device: could not build program %s: %w", p.Name, err)
	}

	ids := make([]FunctionID, 0, len(names))
	for idx, k := range kernels {
		id := c.NewFunction()
		if id == InvalidFunction {
			for _, rk := range kernels[idx:] {
				rk.Release()
			}
			for _, created := range ids {
				c.DeleteFunction(created)
			}
			return nil, fmt.Errorf("device: could not allocate function handle for kernel %s", names[idx])
		}
		c.functions[id].kernel = k
		c.functions[id].name = names[idx]
		c.functions[id].args = make([]interface{}, k.NumArgs())
		ids = append(ids, id)
	}

	return ids, nil
}

// Get the largest work-group size that every listed function can be
// dispatched with. Without arguments the backend limit is returned. Invalid
// functions yield 0.
func (c *Context) MaxWorkGroupSize(ids ...FunctionID) int {
	if !c.ready {
		return 0
	}

	limit := c.backend.MaxWorkGroupSize()
	for _, id := range ids {
		if fnLimit := c.Function(id).MaxWorkGroupSize(); fnLimit < limit {
			limit = fnLimit
		}
	}
	return limit
}

// Enqueue a barrier on a command queue.
func (c *Context) EnqueueBarrier(queue int) error {
	if err := c.checkQueue(queue); err != nil {
		return err
	}
	return c.backend.Barrier(queue)
}

// Block until all commands enqueued on a queue complete.
func (c *Context) FinishCommands(queue int) error {
	if err := c.checkQueue(queue); err != nil {
		return err
	}
	return c.backend.Finish(queue)
}

// Get allocation statistics.
func (c *Context) Stats() AllocStats {
	return c.stats
}

func (c *Context) checkQueue(queue int) error {
	if !c.ready {
		return ErrNotReady
	}
	if queue < 0 || queue >= c.backend.NumQueues() {
		return fmt.Errorf("%w: %d", ErrInvalidQueue, queue)
	}
	return nil
}

func (c *Context) trackAlloc(size int) {
	c.stats.Live++
	c.stats.Total++
	c.stats.Bytes += size
	if c.stats.Live > c.stats.Peak {
		c.stats.Peak = c.stats.Live
	}
}

func (c *Context) trackRelease(size int) {
	c.stats.Live--
	c.stats.Bytes -= size
}
