package emulator

import (
	"fmt"

	"github.com/achilleasa/clbvh/device"
	"github.com/achilleasa/clbvh/types"
	"golang.org/x/sync/errgroup"
)

type kernel struct {
	backend *Backend
	name    string
	host    device.HostKernel
	args    []interface{}
}

func (k *kernel) Name() string {
	return k.name
}

func (k *kernel) NumArgs() int {
	return len(k.args)
}

func (k *kernel) MaxWorkGroupSize() int {
	limit := k.backend.cfg.MaxWorkGroupSize
	if kl, ok := k.backend.cfg.KernelWorkGroupSize[k.name]; ok && kl > 0 && kl < limit {
		limit = kl
	}
	return limit
}

func (k *kernel) SetArg(index int, arg interface{}) error {
	if index < 0 || index >= len(k.args) {
		return fmt.Errorf("emulator: kernel %s has %d args; cannot set arg %d", k.name, len(k.args), index)
	}

	switch t := arg.(type) {
	case *buffer:
		if t.backend != k.backend {
			return ErrForeignBuffer
		}
	case device.Buffer:
		return ErrForeignBuffer
	case uint32, int32, float32, types.Vec3, types.Vec4:
	case device.Local:
		if t <= 0 {
			return fmt.Errorf("emulator: kernel %s arg %d: invalid local size %d", k.name, index, t)
		}
	default:
		return fmt.Errorf("%w: kernel %s arg %d has type %T", device.ErrUnsupportedArg, k.name, index, arg)
	}

	k.args[index] = arg
	return nil
}

func (k *kernel) Release() {
	k.args = nil
}

// Validate the dispatch geometry and run every work-group of the range.
func (k *kernel) Enqueue(queue int, offset, global, local []int) error {
	dims := len(global)
	if dims < 1 || dims > 3 || len(offset) != dims || (local != nil && len(local) != dims) {
		return fmt.Errorf("%w: kernel %s: invalid work dimensions", ErrWorkSize, k.name)
	}

	wg := device.WorkGroup{Dims: dims}
	groupItems := 1
	for d := 0; d < 3; d++ {
		wg.GlobalSize[d], wg.LocalSize[d], wg.NumGroups[d] = 1, 1, 1
	}
	for d := 0; d < dims; d++ {
		if global[d] <= 0 {
			return fmt.Errorf("%w: kernel %s: global size %d along dim %d", ErrWorkSize, k.name, global[d], d)
		}

		localSize := 0
		if local != nil {
			localSize = local[d]
		}
		if localSize <= 0 {
			localSize = k.pickLocalSize(global[d], k.MaxWorkGroupSize()/groupItems)
		}
		if global[d]%localSize != 0 {
			return fmt.Errorf("%w: kernel %s: local size %d does not divide global size %d", ErrWorkSize, k.name, localSize, global[d])
		}

		groupItems *= localSize
		wg.GlobalSize[d] = global[d]
		wg.GlobalOffset[d] = offset[d]
		wg.LocalSize[d] = localSize
		wg.NumGroups[d] = global[d] / localSize
	}
	if limit := k.MaxWorkGroupSize(); groupItems > limit {
		return fmt.Errorf("%w: kernel %s: work-group size %d exceeds max %d", ErrWorkSize, k.name, groupItems, limit)
	}

	for index, arg := range k.args {
		if arg == nil {
			return fmt.Errorf("%w: kernel %s arg %d", device.ErrArgNotSet, k.name, index)
		}
		if buf, ok := arg.(*buffer); ok && buf.data == nil {
			return fmt.Errorf("%w: kernel %s arg %d", ErrReleasedBuffer, k.name, index)
		}
	}

	k.backend.queues[queue].Dispatches++
	numGroups := wg.NumGroups[0] * wg.NumGroups[1] * wg.NumGroups[2]
	if k.host.Serial {
		for g := 0; g < numGroups; g++ {
			if err := k.runGroup(wg, g); err != nil {
				return err
			}
		}
		return nil
	}

	var eg errgroup.Group
	eg.SetLimit(k.backend.cfg.Workers)
	for g := 0; g < numGroups; g++ {
		g := g
		eg.Go(func() error {
			return k.runGroup(wg, g)
		})
	}
	return eg.Wait()
}

// Run the host replica for the flat group index g. Local scratch areas are
// private to the group and any panic is reported as an error.
func (k *kernel) runGroup(wg device.WorkGroup, g int) (err error) {
	wg.Group[0] = g % wg.NumGroups[0]
	wg.Group[1] = (g / wg.NumGroups[0]) % wg.NumGroups[1]
	wg.Group[2] = g / (wg.NumGroups[0] * wg.NumGroups[1])

	wg.Args = make([]interface{}, len(k.args))
	for index, arg := range k.args {
		switch t := arg.(type) {
		case *buffer:
			wg.Args[index] = t.data
		case device.Local:
			wg.Args[index] = newBuffer(k.backend, int(t)).data
		default:
			wg.Args[index] = arg
		}
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s (group %v): %v", ErrKernelPanic, k.name, wg.Group, r)
		}
	}()

	if err = k.host.Run(&wg); err != nil {
		return fmt.Errorf("emulator: kernel %s (group %v): %w", k.name, wg.Group, err)
	}
	return nil
}

// Pick the largest power of two work-group size that divides the global size.
func (k *kernel) pickLocalSize(global, limit int) int {
	size := 1
	for size*2 <= limit && global%(size*2) == 0 {
		size *= 2
	}
	return size
}
