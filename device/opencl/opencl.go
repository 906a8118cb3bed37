//go:build opencl

package opencl

import (
	"fmt"
	"strings"
	"unsafe"

	"github.com/achilleasa/clbvh/device"
	"github.com/achilleasa/clbvh/log"
	"github.com/achilleasa/clbvh/types"
	"github.com/jgillich/go-opencl/cl"
)

type deviceHandle struct {
	dev *cl.Device
}

// Get information about supported opencl platforms and devices.
func GetPlatformInfo() ([]PlatformInfo, error) {
	platforms, err := cl.GetPlatforms()
	if err != nil {
		return nil, fmt.Errorf("opencl: could not query platforms: %w", err)
	}

	infoList := make([]PlatformInfo, len(platforms))
	for pIdx, p := range platforms {
		infoList[pIdx] = PlatformInfo{
			Profile:    p.Profile(),
			Version:    p.Version(),
			Name:       p.Name(),
			Vendor:     p.Vendor(),
			Extensions: p.Extensions(),
		}

		for _, devType := range []DeviceType{CpuDevice, GpuDevice} {
			clType := cl.DeviceTypeCPU
			if devType == GpuDevice {
				clType = cl.DeviceTypeGPU
			}

			devices, err := p.GetDevices(clType)
			if err != nil && err != cl.ErrDeviceNotFound {
				return nil, fmt.Errorf("opencl: could not enumerate %s devices for platform %s: %w", devType, p.Name(), err)
			}

			for _, d := range devices {
				info := &DeviceInfo{
					Name:             strings.TrimSpace(d.Name()),
					Type:             devType,
					ComputeUnits:     d.MaxComputeUnits(),
					ClockSpeed:       d.MaxClockFrequency(),
					MaxWorkGroupSize: d.MaxWorkGroupSize(),
					MaxAllocSize:     d.MaxMemAllocSize(),
					handle:           deviceHandle{dev: d},
				}
				// Theoretical device speed: compute units * 2ops/cycle * clock speed
				info.Speed = info.ComputeUnits * info.ClockSpeed / 1000
				infoList[pIdx].Devices = append(infoList[pIdx].Devices, info)
			}
		}
	}

	return infoList, nil
}

// Backend is an opencl device context with a set of in-order command queues.
type Backend struct {
	logger log.Logger
	info   *DeviceInfo
	ctx    *cl.Context
	queues []*cl.CommandQueue
}

// Create a context for the given device with numQueues command queues.
func New(dev *DeviceInfo, numQueues int) (device.Backend, error) {
	if numQueues <= 0 {
		numQueues = 1
	}

	b := &Backend{
		logger: log.New("opencl"),
		info:   dev,
	}

	var err error
	b.ctx, err = cl.CreateContext([]*cl.Device{dev.handle.dev})
	if err != nil {
		return nil, fmt.Errorf("opencl device (%s): could not create opencl context: %w", dev.Name, err)
	}

	for i := 0; i < numQueues; i++ {
		queue, err := b.ctx.CreateCommandQueue(dev.handle.dev, 0)
		if err != nil {
			defer b.Close()
			return nil, fmt.Errorf("opencl device (%s): could not create command queue %d: %w", dev.Name, i, err)
		}
		b.queues = append(b.queues, queue)
	}

	return b, nil
}

func (b *Backend) Name() string {
	return b.info.Name
}

func (b *Backend) NumQueues() int {
	return len(b.queues)
}

func (b *Backend) MaxWorkGroupSize() int {
	return b.info.MaxWorkGroupSize
}

func (b *Backend) MaxBufferSize() int {
	return int(b.info.MaxAllocSize)
}

// Allocate an empty device buffer.
func (b *Backend) Allocate(size int, usage device.Usage) (device.Buffer, error) {
	flags := cl.MemReadWrite
	switch usage {
	case device.ReadOnly:
		flags = cl.MemReadOnly
	case device.WriteOnly:
		flags = cl.MemWriteOnly
	}

	mem, err := b.ctx.CreateEmptyBuffer(flags, size)
	if err != nil {
		return nil, fmt.Errorf("opencl device (%s): could not allocate buffer of size %d: %w", b.info.Name, size, err)
	}

	buf := &buffer{backend: b, mem: mem, size: size}

	// Buffers start zeroed like the emulated ones.
	zero := make([]byte, size)
	if err = buf.Write(0, 0, zero); err != nil {
		buf.Release()
		return nil, err
	}
	return buf, nil
}

// Build the program source and create the named kernels.
func (b *Backend) Compile(p *device.Program, names []string) ([]device.Kernel, error) {
	program, err := b.ctx.CreateProgramWithSource([]string{p.Source})
	if err != nil {
		return nil, fmt.Errorf("opencl device (%s): could not create program %s: %w", b.info.Name, p.Name, err)
	}
	defer program.Release()

	if err = program.BuildProgram([]*cl.Device{b.info.handle.dev}, ""); err != nil {
		if buildErr, ok := err.(cl.BuildError); ok {
			return nil, fmt.Errorf("opencl device (%s): could not build program %s:\n%s", b.info.Name, p.Name, string(buildErr))
		}
		return nil, fmt.Errorf("opencl device (%s): could not build program %s: %w", b.info.Name, p.Name, err)
	}

	kernels := make([]device.Kernel, 0, len(names))
	for _, name := range names {
		k, err := program.CreateKernel(name)
		if err != nil {
			for _, created := range kernels {
				created.Release()
			}
			return nil, fmt.Errorf("opencl device (%s): could not load kernel %s: %w", b.info.Name, name, err)
		}

		numArgs, err := k.NumArgs()
		if err != nil {
			k.Release()
			for _, created := range kernels {
				created.Release()
			}
			return nil, fmt.Errorf("opencl device (%s): could not query args for kernel %s: %w", b.info.Name, name, err)
		}

		wgSize, err := k.WorkGroupSize(b.info.handle.dev)
		if err != nil {
			k.Release()
			for _, created := range kernels {
				created.Release()
			}
			return nil, fmt.Errorf("opencl device (%s): could not query work-group size for kernel %s: %w", b.info.Name, name, err)
		}
		if wgSize <= 0 || wgSize > b.info.MaxWorkGroupSize {
			wgSize = b.info.MaxWorkGroupSize
		}

		kernels = append(kernels, &kernel{backend: b, name: name, handle: k, numArgs: numArgs, wgSize: wgSize})
	}

	b.logger.Debugf("built program %s (%d kernels)", p.Name, len(kernels))
	return kernels, nil
}

func (b *Backend) Barrier(queue int) error {
	ev, err := b.queues[queue].EnqueueBarrierWithWaitList(nil)
	if err != nil {
		return fmt.Errorf("opencl device (%s): could not enqueue barrier on queue %d: %w", b.info.Name, queue, err)
	}
	releaseEvent(ev)
	return nil
}

func (b *Backend) Finish(queue int) error {
	if err := b.queues[queue].Finish(); err != nil {
		return fmt.Errorf("opencl device (%s): queue %d did not complete successfully: %w", b.info.Name, queue, err)
	}
	return nil
}

// Shut down the device.
func (b *Backend) Close() error {
	for _, q := range b.queues {
		q.Release()
	}
	b.queues = nil

	if b.ctx != nil {
		b.ctx.Release()
		b.ctx = nil
	}
	return nil
}

type buffer struct {
	backend *Backend
	mem     *cl.MemObject
	size    int
}

func (buf *buffer) Size() int {
	return buf.size
}

func (buf *buffer) Write(queue, offset int, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	ev, err := buf.backend.queues[queue].EnqueueWriteBuffer(buf.mem, true, offset, len(data), unsafe.Pointer(&data[0]), nil)
	if err != nil {
		return fmt.Errorf("opencl device (%s): error copying host data to device buffer: %w", buf.backend.info.Name, err)
	}
	releaseEvent(ev)
	return nil
}

func (buf *buffer) Read(queue, offset int, dst []byte) error {
	if len(dst) == 0 {
		return nil
	}
	ev, err := buf.backend.queues[queue].EnqueueReadBuffer(buf.mem, true, offset, len(dst), unsafe.Pointer(&dst[0]), nil)
	if err != nil {
		return fmt.Errorf("opencl device (%s): error copying device data to host buffer: %w", buf.backend.info.Name, err)
	}
	releaseEvent(ev)
	return nil
}

func (buf *buffer) CopyTo(queue int, dst device.Buffer, srcOffset, dstOffset, size int) error {
	target, ok := dst.(*buffer)
	if !ok {
		return fmt.Errorf("opencl device (%s): copy target belongs to another backend", buf.backend.info.Name)
	}
	ev, err := buf.backend.queues[queue].EnqueueCopyBuffer(buf.mem, target.mem, srcOffset, dstOffset, size, nil)
	if err != nil {
		return fmt.Errorf("opencl device (%s): error copying device buffer: %w", buf.backend.info.Name, err)
	}
	releaseEvent(ev)
	return nil
}

func (buf *buffer) Release() {
	if buf.mem != nil {
		buf.mem.Release()
		buf.mem = nil
	}
}

type kernel struct {
	backend *Backend
	name    string
	handle  *cl.Kernel
	numArgs int
	wgSize  int
}

func (k *kernel) Name() string {
	return k.name
}

func (k *kernel) NumArgs() int {
	return k.numArgs
}

func (k *kernel) MaxWorkGroupSize() int {
	return k.wgSize
}

// Bind arguments to kernel.
func (k *kernel) SetArg(index int, arg interface{}) error {
	var err error
	switch t := arg.(type) {
	case *buffer:
		err = k.handle.SetArgBuffer(index, t.mem)
	case int32:
		err = k.handle.SetArgInt32(index, t)
	case uint32:
		err = k.handle.SetArgUint32(index, t)
	case float32:
		err = k.handle.SetArgFloat32(index, t)
	case types.Vec3:
		// float3 arguments occupy the same space as float4
		v := t.Vec4(0)
		err = k.handle.SetArgUnsafe(index, 16, unsafe.Pointer(&v[0]))
	case types.Vec4:
		err = k.handle.SetArgUnsafe(index, 16, unsafe.Pointer(&t[0]))
	case device.Local:
		err = k.handle.SetArgLocal(index, int(t))
	default:
		return fmt.Errorf("%w: %T", device.ErrUnsupportedArg, arg)
	}
	return err
}

func (k *kernel) Enqueue(queue int, offset, global, local []int) error {
	ev, err := k.backend.queues[queue].EnqueueNDRangeKernel(k.handle, offset, global, local, nil)
	if err != nil {
		return err
	}
	releaseEvent(ev)
	return nil
}

func (k *kernel) Release() {
	if k.handle != nil {
		k.handle.Release()
		k.handle = nil
	}
}

func releaseEvent(ev *cl.Event) {
	if ev != nil {
		ev.Release()
	}
}
